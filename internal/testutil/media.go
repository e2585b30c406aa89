package testutil

import (
	"bytes"
	"testing"

	"redun-go/internal/medium"
	"redun-go/internal/redun"
)

// TestMedia holds three in-memory media in role order.
type TestMedia struct {
	Primary    *medium.MemoryMedium
	Secondary  *medium.MemoryMedium
	Redundancy *medium.MemoryMedium
}

// NewTestMedia creates three empty in-memory media.
func NewTestMedia() *TestMedia {
	return &TestMedia{
		Primary:    medium.NewMemoryMedium("primary"),
		Secondary:  medium.NewMemoryMedium("secondary"),
		Redundancy: medium.NewMemoryMedium("redundancy"),
	}
}

// Media returns the media as a redun.Media.
func (m *TestMedia) Media() redun.Media {
	return redun.Media{Primary: m.Primary, Secondary: m.Secondary, Redundancy: m.Redundancy}
}

// ReadObject returns a copy of an object's contents, failing the test if it
// does not exist.
func ReadObject(t *testing.T, m redun.Medium, name string) []byte {
	t.Helper()

	obj, err := m.Open(name)
	if err != nil {
		t.Fatalf("opening %s on %s: %v", name, m.Name(), err)
	}
	defer obj.Close()
	return append([]byte(nil), obj.Bytes()...)
}

// PutObject stores data under name, failing the test on error.
func PutObject(t *testing.T, m redun.Medium, name string, data []byte) {
	t.Helper()

	if err := m.Put(name, bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("storing %s on %s: %v", name, m.Name(), err)
	}
}

// FlipByte inverts one byte of an object in place on the medium.
func FlipByte(t *testing.T, m redun.Medium, name string, off int) {
	t.Helper()

	data := ReadObject(t, m, name)
	if off < 0 || off >= len(data) {
		t.Fatalf("offset %d outside %s (%d bytes)", off, name, len(data))
	}
	data[off] ^= 0xff
	PutObject(t, m, name, data)
}

// Truncate cuts an object down to size bytes.
func Truncate(t *testing.T, m redun.Medium, name string, size int) {
	t.Helper()

	data := ReadObject(t, m, name)
	if size > len(data) {
		t.Fatalf("cannot truncate %s (%d bytes) to %d", name, len(data), size)
	}
	PutObject(t, m, name, data[:size])
}

// RemoveObject deletes an object, failing the test on error.
func RemoveObject(t *testing.T, m redun.Medium, name string) {
	t.Helper()

	if err := m.Remove(name); err != nil {
		t.Fatalf("removing %s on %s: %v", name, m.Name(), err)
	}
}
