package redun_test

import (
	"bytes"
	"errors"
	"testing"

	"redun-go/internal/block"
	"redun-go/internal/digest"
	"redun-go/internal/metadata"
	"redun-go/internal/redun"
	"redun-go/internal/testutil"
)

type serviceEnv struct {
	media   *testutil.TestMedia
	catalog redun.Catalog
	svc     *redun.Service
}

func newServiceEnv(t *testing.T, enc redun.Encryptor) *serviceEnv {
	t.Helper()

	media := testutil.NewTestMedia()
	catalog := testutil.NewTestCatalog(t)
	svc := redun.NewService(catalog, media.Media(), testutil.NewTestTempStorage(), enc,
		redun.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator(),
		redun.ServiceOptions{BlockSize: testBlockSize, MaxBlocks: 3})
	return &serviceEnv{media: media, catalog: catalog, svc: svc}
}

func input(name string, data []byte) redun.Input {
	return redun.Input{Name: name, R: bytes.NewReader(data), Size: int64(len(data))}
}

func (e *serviceEnv) get(t *testing.T, name string) []byte {
	t.Helper()

	var buf bytes.Buffer
	n, err := e.svc.Get(name, &buf)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", name, err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("Get(%s) reported %d bytes, wrote %d", name, n, buf.Len())
	}
	return buf.Bytes()
}

func TestService_PutSplit(t *testing.T) {
	env := newServiceEnv(t, nil)
	data := randomBytes(1, 101)

	ds, err := env.svc.PutSplit("docs", input("/home/user/report.pdf", data))
	if err != nil {
		t.Fatalf("PutSplit() error = %v", err)
	}
	if ds.Mode != redun.ModeSplit || ds.PrimaryPath != "docs/report.pdf.part1" || ds.SecondaryPath != "docs/report.pdf.part2" {
		t.Errorf("PutSplit() = %+v", ds)
	}
	if ds.ID != "id-2" || ds.RedundancyPath != "id-1.r" {
		t.Errorf("PutSplit() id %q, generation %q", ds.ID, ds.RedundancyPath)
	}
	if ds.Size != 101 || ds.Blocks != 4 {
		t.Errorf("PutSplit() size %d, redundancy %q, blocks %d", ds.Size, ds.RedundancyPath, ds.Blocks)
	}

	var first bytes.Buffer
	if _, err := env.svc.GetCopy("docs", metadata.Primary, &first); err != nil {
		t.Fatalf("GetCopy() error = %v", err)
	}
	if !bytes.Equal(first.Bytes(), data[:51]) {
		t.Errorf("primary half is %d bytes, want the first 51", first.Len())
	}
	if got := env.get(t, "docs"); !bytes.Equal(got, data) {
		t.Errorf("Get() returned %d bytes that differ from the input", len(got))
	}

	stored, err := env.catalog.FindDataSet("docs")
	if err != nil || stored == nil {
		t.Fatalf("FindDataSet() = %v, %v", stored, err)
	}
	if stored.ID != ds.ID || stored.RedundancyPath != ds.RedundancyPath {
		t.Errorf("catalog has %+v, want %+v", stored, ds)
	}
}

func TestService_PutPair(t *testing.T) {
	env := newServiceEnv(t, nil)
	a, b := randomBytes(1, 80), randomBytes(2, 33)

	ds, err := env.svc.PutPair("music", input("a.flac", a), input("b.flac", b))
	if err != nil {
		t.Fatalf("PutPair() error = %v", err)
	}
	if ds.Mode != redun.ModePair || ds.PrimaryPath != "music/a.flac" || ds.SecondaryPath != "music/b.flac" {
		t.Errorf("PutPair() = %+v", ds)
	}

	if got := env.get(t, "music"); !bytes.Equal(got, a) {
		t.Error("Get() of a pair did not return the primary input")
	}
	var second bytes.Buffer
	if _, err := env.svc.GetCopy("music", metadata.Secondary, &second); err != nil {
		t.Fatalf("GetCopy() error = %v", err)
	}
	if !bytes.Equal(second.Bytes(), b) {
		t.Error("GetCopy(secondary) did not return the secondary input")
	}
}

func (e *serviceEnv) blockSize(t *testing.T, ds *redun.DataSet) uint64 {
	t.Helper()

	f, _, err := redun.NewSession(e.media.Media(), testutil.NewTestTempStorage(), redun.Options{Hasher: digest.SHA1}).LoadMeta(ds.Paths())
	if err != nil {
		t.Fatalf("LoadMeta() error = %v", err)
	}
	return f.Manifest.BlockSize
}

func TestService_PutTree(t *testing.T) {
	env := newServiceEnv(t, nil)
	first, second := randomBytes(1, 40), randomBytes(2, 20)

	ds, err := env.svc.PutTree("photos", "/home/user/2019", bytes.NewReader(first), bytes.NewReader(second), 8)
	if err != nil {
		t.Fatalf("PutTree() error = %v", err)
	}
	if ds.Mode != redun.ModeTree || ds.PrimaryPath != "photos/2019.part1.tar" || ds.SecondaryPath != "photos/2019.part2.tar" {
		t.Errorf("PutTree() = %+v", ds)
	}
	if ds.Size != 60 || ds.Blocks != 5 {
		t.Errorf("PutTree() size %d, blocks %d, want 60 and 5", ds.Size, ds.Blocks)
	}
	if got := env.blockSize(t, ds); got != 8 {
		t.Errorf("manifest block size = %d, want 8", got)
	}
	if got := env.get(t, "photos"); !bytes.Equal(got, append(first, second...)) {
		t.Errorf("Get() returned %d bytes, want both parts in order", len(got))
	}

	updated, err := env.svc.Protect("photos")
	if err != nil {
		t.Fatalf("Protect() error = %v", err)
	}
	if got := env.blockSize(t, updated); got != 8 {
		t.Errorf("block size after Protect = %d, want 8", got)
	}
}

func TestService_PutTreeDefaultBlockSize(t *testing.T) {
	env := newServiceEnv(t, nil)
	ds, err := env.svc.PutTree("photos", "2019", bytes.NewReader(randomBytes(1, 40)), bytes.NewReader(randomBytes(2, 5)), 0)
	if err != nil {
		t.Fatalf("PutTree() error = %v", err)
	}
	if got := env.blockSize(t, ds); got != testBlockSize {
		t.Errorf("manifest block size = %d, want %d", got, testBlockSize)
	}
}

func TestService_PutDuplicateName(t *testing.T) {
	env := newServiceEnv(t, nil)
	if _, err := env.svc.PutSplit("docs", input("a", randomBytes(1, 20))); err != nil {
		t.Fatalf("PutSplit() error = %v", err)
	}

	if _, err := env.svc.PutSplit("docs", input("b", randomBytes(2, 20))); err == nil {
		t.Fatal("PutSplit() expected error for existing name")
	}
	if _, err := env.media.Primary.Stat("docs/b.part1"); !errors.Is(err, redun.ErrNotFound) {
		t.Errorf("rejected put stored data: %v", err)
	}
}

func TestService_PutInvalidName(t *testing.T) {
	tests := []struct {
		name    string
		setName string
	}{
		{"empty", ""},
		{"leading dot", ".redun"},
		{"slash", "a/b"},
		{"backslash", `a\b`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newServiceEnv(t, nil)
			if _, err := env.svc.PutSplit(tt.setName, input("f", randomBytes(1, 20))); err == nil {
				t.Fatalf("PutSplit(%q) expected error", tt.setName)
			}
			names, err := env.media.Primary.List("")
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(names) != 0 {
				t.Errorf("rejected put stored %v", names)
			}
		})
	}
}

// rejectingCatalog fails every CreateDataSet.
type rejectingCatalog struct {
	redun.Catalog
}

func (rejectingCatalog) CreateDataSet(*redun.DataSet) error {
	return errors.New("catalog is read-only")
}

func TestService_PutDiscardsUnrecordedDataSet(t *testing.T) {
	media := testutil.NewTestMedia()
	svc := redun.NewService(rejectingCatalog{testutil.NewTestCatalog(t)}, media.Media(), testutil.NewTestTempStorage(), nil,
		redun.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator(),
		redun.ServiceOptions{BlockSize: testBlockSize, MaxBlocks: 3})

	if _, err := svc.PutSplit("docs", input("a", randomBytes(1, 100))); err == nil {
		t.Fatal("PutSplit() expected error from the catalog")
	}

	for _, m := range []redun.Medium{media.Primary, media.Secondary, media.Redundancy} {
		names, err := m.List("")
		if err != nil {
			t.Fatalf("List() on %s error = %v", m.Name(), err)
		}
		if len(names) != 0 {
			t.Errorf("%s still holds %v", m.Name(), names)
		}
	}
}

func TestService_NotFound(t *testing.T) {
	env := newServiceEnv(t, nil)

	if _, err := env.svc.Check("missing"); !errors.Is(err, redun.ErrNotFound) {
		t.Errorf("Check() error = %v, want %v", err, redun.ErrNotFound)
	}
	if _, err := env.svc.Protect("missing"); !errors.Is(err, redun.ErrNotFound) {
		t.Errorf("Protect() error = %v, want %v", err, redun.ErrNotFound)
	}
	var buf bytes.Buffer
	if _, err := env.svc.Get("missing", &buf); !errors.Is(err, redun.ErrNotFound) {
		t.Errorf("Get() error = %v, want %v", err, redun.ErrNotFound)
	}
}

func TestService_Protect(t *testing.T) {
	env := newServiceEnv(t, nil)
	ds, err := env.svc.PutSplit("docs", input("a", randomBytes(1, 90)))
	if err != nil {
		t.Fatalf("PutSplit() error = %v", err)
	}
	old := ds.RedundancyPath

	updated, err := env.svc.Protect("docs")
	if err != nil {
		t.Fatalf("Protect() error = %v", err)
	}
	if updated.RedundancyPath == old {
		t.Errorf("Protect() kept generation %s", old)
	}
	if names, _ := env.media.Redundancy.List(old); len(names) != 0 {
		t.Errorf("previous generation remains: %v", names)
	}

	stored, err := env.catalog.FindDataSet("docs")
	if err != nil {
		t.Fatalf("FindDataSet() error = %v", err)
	}
	if stored.RedundancyPath != updated.RedundancyPath {
		t.Errorf("catalog redundancy path = %q, want %q", stored.RedundancyPath, updated.RedundancyPath)
	}
	if r, err := env.svc.Check("docs"); err != nil || !r.Healthy() {
		t.Errorf("Check() after Protect = %+v, %v", r, err)
	}
}

func TestService_CheckAndRepair(t *testing.T) {
	env := newServiceEnv(t, nil)
	data := randomBytes(1, 120)
	ds, err := env.svc.PutSplit("docs", input("a", data))
	if err != nil {
		t.Fatalf("PutSplit() error = %v", err)
	}

	if r, err := env.svc.Check("docs"); err != nil || !r.Healthy() {
		t.Fatalf("Check() = %+v, %v", r, err)
	}
	testutil.FlipByte(t, env.media.Primary, ds.PrimaryPath, block.HeaderSize+1)

	r, err := env.svc.Check("docs")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if r.Healthy() || !r.Recoverable() {
		t.Errorf("Check() after damage: healthy=%v recoverable=%v", r.Healthy(), r.Recoverable())
	}

	checks, err := env.svc.Checks("docs", 10)
	if err != nil {
		t.Fatalf("Checks() error = %v", err)
	}
	if len(checks) != 2 {
		t.Fatalf("Checks() returned %d results, want 2", len(checks))
	}
	var damaged *redun.CheckResult
	for _, c := range checks {
		if !c.Healthy {
			damaged = c
		}
	}
	if damaged == nil || damaged.Damaged != "primary" || !damaged.Recoverable {
		t.Errorf("recorded checks = %+v %+v", checks[0], checks[1])
	}

	// Reads go through the redundancy while the primary is damaged.
	if got := env.get(t, "docs"); !bytes.Equal(got, data) {
		t.Error("Get() of a damaged data set returned wrong content")
	}

	res, err := env.svc.Repair("docs")
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	if len(res.Rebuilt) != 1 || res.Rebuilt[0] != metadata.Primary {
		t.Errorf("Repair() rebuilt %v, want [primary]", res.Rebuilt)
	}
	if r, err := env.svc.Check("docs"); err != nil || !r.Healthy() {
		t.Errorf("Check() after Repair = %+v, %v", r, err)
	}
	if got := env.get(t, "docs"); !bytes.Equal(got, data) {
		t.Error("Get() after Repair returned wrong content")
	}
}

func TestService_GetVerifiesCopyAgainstMeta(t *testing.T) {
	tests := []struct {
		name   string
		damage func(t *testing.T, env *serviceEnv, ds *redun.DataSet)
	}{
		{
			name: "truncated at a block boundary",
			damage: func(t *testing.T, env *serviceEnv, ds *redun.DataSet) {
				testutil.Truncate(t, env.media.Primary, ds.PrimaryPath, 3*(block.HeaderSize+testBlockSize))
			},
		},
		{
			name: "replaced by another intact stream",
			damage: func(t *testing.T, env *serviceEnv, ds *redun.DataSet) {
				other := randomBytes(9, 50)
				var stream []byte
				for off := 0; off < len(other); off += testBlockSize {
					stream = block.Append(stream, other[off:min(off+testBlockSize, len(other))], digest.SHA1)
				}
				testutil.PutObject(t, env.media.Primary, ds.PrimaryPath, stream)
			},
		},
		{
			name: "missing",
			damage: func(t *testing.T, env *serviceEnv, ds *redun.DataSet) {
				testutil.RemoveObject(t, env.media.Primary, ds.PrimaryPath)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newServiceEnv(t, nil)
			data := randomBytes(1, 100)
			ds, err := env.svc.PutSplit("docs", input("a", data))
			if err != nil {
				t.Fatalf("PutSplit() error = %v", err)
			}

			tt.damage(t, env, ds)

			if got := env.get(t, "docs"); !bytes.Equal(got, data) {
				t.Errorf("Get() returned %d bytes, want the original %d", len(got), len(data))
			}
		})
	}
}

func TestService_RepairUnrecoverable(t *testing.T) {
	env := newServiceEnv(t, nil)
	ds, err := env.svc.PutSplit("docs", input("a", randomBytes(1, 64)))
	if err != nil {
		t.Fatalf("PutSplit() error = %v", err)
	}
	testutil.RemoveObject(t, env.media.Primary, ds.PrimaryPath)
	testutil.RemoveObject(t, env.media.Secondary, ds.SecondaryPath)

	if _, err := env.svc.Repair("docs"); !errors.Is(err, redun.ErrUnrecoverable) {
		t.Errorf("Repair() error = %v, want %v", err, redun.ErrUnrecoverable)
	}
}

func TestService_Encrypted(t *testing.T) {
	env := newServiceEnv(t, testutil.NewTestEncryptor())
	if !env.svc.Encrypted() || !env.svc.Locked() {
		t.Fatalf("Encrypted() = %v, Locked() = %v", env.svc.Encrypted(), env.svc.Locked())
	}
	data := randomBytes(1, 70)
	if _, err := env.svc.PutSplit("docs", input("a", data)); err != nil {
		t.Fatalf("PutSplit() while locked error = %v", err)
	}

	if _, err := env.svc.Check("docs"); !errors.Is(err, redun.ErrLocked) {
		t.Errorf("Check() while locked error = %v, want %v", err, redun.ErrLocked)
	}
	if err := env.svc.Unlock("wrong"); err == nil {
		t.Error("Unlock() with wrong passphrase succeeded")
	}
	if err := env.svc.Unlock("passphrase"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if env.svc.Locked() {
		t.Error("Locked() after Unlock")
	}
	if r, err := env.svc.Check("docs"); err != nil || !r.Healthy() {
		t.Errorf("Check() after Unlock = %+v, %v", r, err)
	}
}

func TestService_ListAndHistory(t *testing.T) {
	env := newServiceEnv(t, nil)
	for _, name := range []string{"b", "a"} {
		if _, err := env.svc.PutSplit(name, input("f", randomBytes(1, 10))); err != nil {
			t.Fatalf("PutSplit(%s) error = %v", name, err)
		}
	}

	list, err := env.svc.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Name != "a" || list[1].Name != "b" {
		t.Errorf("List() = %+v", list)
	}

	op, err := env.catalog.CreateOperation("put", "a")
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	ops, err := env.svc.History(5)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(ops) != 1 || ops[0].ID != op.ID {
		t.Errorf("History() = %+v", ops)
	}
}
