package location

import (
	"path/filepath"
	"testing"
)

func TestDiskEquality(t *testing.T) {
	dir := t.TempDir()
	a, err := Disk(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("disk a: %v", err)
	}
	b, err := Disk(filepath.Join(dir, "x", "..", "store") + "/")
	if err != nil {
		t.Fatalf("disk b: %v", err)
	}
	if a != b {
		t.Fatalf("expected equal locations: %v vs %v", a, b)
	}
	m := map[Location]int{a: 1}
	if m[b] != 1 {
		t.Fatalf("expected map lookup by equal location to hit")
	}
	if a.IsMem() || a.IsMemUnique() {
		t.Fatalf("disk location reported as memory")
	}
	if got, want := a.Path("store.lock"), filepath.Join(dir, "store", "store.lock"); got != want {
		t.Fatalf("Path=%q want %q", got, want)
	}
}

func TestMemVariants(t *testing.T) {
	if Mem() != Mem() {
		t.Fatalf("shared memory locations must be equal")
	}
	u1, u2 := MemUnique(), MemUnique()
	if u1 == u2 {
		t.Fatalf("unique memory locations must differ")
	}
	if !u1.IsMem() || !u1.IsMemUnique() {
		t.Fatalf("unique location flags wrong: %+v", u1)
	}
	if !Mem().IsMem() || Mem().IsMemUnique() {
		t.Fatalf("shared location flags wrong")
	}
	if Mem().Dir() != "" || u1.Path("x") != "" {
		t.Fatalf("memory locations must not expose paths")
	}
}

func TestParse(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name    string
		in      string
		kind    Kind
		dir     string
		wantErr bool
	}{
		{name: "mem", in: "mem://", kind: KindMem},
		{name: "memory alias", in: "memory://", kind: KindMem},
		{name: "unique", in: "mem://unique", kind: KindMemUnique},
		{name: "disk url", in: "disk://" + dir + "/a", kind: KindDisk, dir: filepath.Join(dir, "a")},
		{name: "bare path", in: dir + "/b", kind: KindDisk, dir: filepath.Join(dir, "b")},
		{name: "empty", in: "", wantErr: true},
		{name: "bad mem", in: "mem://other", wantErr: true},
		{name: "bad scheme", in: "s3://bucket", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := Parse(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %v", tc.in, loc)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.in, err)
			}
			if loc.Kind() != tc.kind {
				t.Fatalf("kind=%v want %v", loc.Kind(), tc.kind)
			}
			if loc.Dir() != tc.dir {
				t.Fatalf("dir=%q want %q", loc.Dir(), tc.dir)
			}
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	dir := t.TempDir()
	loc, err := Disk(dir)
	if err != nil {
		t.Fatalf("disk: %v", err)
	}
	back, err := Parse(loc.String())
	if err != nil {
		t.Fatalf("parse %q: %v", loc.String(), err)
	}
	if back != loc {
		t.Fatalf("round trip mismatch: %v vs %v", back, loc)
	}
	if Mem().String() != "mem://" {
		t.Fatalf("mem string = %q", Mem().String())
	}
}
