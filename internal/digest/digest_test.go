package digest

import (
	"crypto/sha1"
	"testing"
)

func TestSum_SHA1(t *testing.T) {
	data := []byte("hello world")
	want := sha1.Sum(data)

	got := Sum(SHA1, data)
	if got != Hash(want) {
		t.Errorf("Sum() = %s, want %x", got, want)
	}
}

func TestSum_BLAKE3(t *testing.T) {
	a := Sum(BLAKE3, []byte("abc"))
	b := Sum(BLAKE3, []byte("abc"))
	c := Sum(BLAKE3, []byte("abd"))

	if a != b {
		t.Error("Sum() is not deterministic")
	}
	if a == c {
		t.Error("Sum() collided for different inputs")
	}
	if a == Sum(SHA1, []byte("abc")) {
		t.Error("BLAKE3 and SHA1 produced the same digest")
	}
}

func TestFinish_MatchesSum(t *testing.T) {
	for _, h := range []Hasher{SHA1, BLAKE3} {
		t.Run(h.Name(), func(t *testing.T) {
			s := h.New()
			s.Write([]byte("split "))
			s.Write([]byte("input"))
			if got, want := Finish(s), Sum(h, []byte("split input")); got != want {
				t.Errorf("Finish() = %s, want %s", got, want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	h := Sum(SHA1, []byte("x"))

	got, err := Parse(h.String())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got != h {
		t.Errorf("Parse() = %s, want %s", got, h)
	}

	tests := []struct {
		name  string
		input string
	}{
		{name: "not hex", input: "zz"},
		{name: "too short", input: "abcd"},
		{name: "too long", input: h.String() + "00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input); err == nil {
				t.Errorf("Parse(%q) expected error", tt.input)
			}
		})
	}
}

func TestHash_IsZero(t *testing.T) {
	var h Hash
	if !h.IsZero() {
		t.Error("IsZero() = false for zero hash")
	}
	h[19] = 1
	if h.IsZero() {
		t.Error("IsZero() = true for non-zero hash")
	}
}

func TestByName(t *testing.T) {
	tests := []struct {
		name    string
		want    Hasher
		wantErr bool
	}{
		{name: "", want: SHA1},
		{name: "sha1", want: SHA1},
		{name: "blake3", want: BLAKE3},
		{name: "md5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ByName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ByName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ByName() = %v, want %v", got.Name(), tt.want.Name())
			}
		})
	}
}

func TestHasher_TagsDiffer(t *testing.T) {
	if SHA1.Tag() == BLAKE3.Tag() {
		t.Error("hashers share an application tag")
	}
}
