package store

import (
	"errors"
	"testing"
)

func TestMergePersistedWins(t *testing.T) {
	persisted := Params{BlockSize: 4096, FileMode: FileModeDirect}
	supplied := Params{BlockSize: 16384, ReadCacheSize: 10, WriteCacheSize: 20, FileMode: FileModeMapped}
	got := Merge(persisted, supplied)
	want := Params{BlockSize: 4096, ReadCacheSize: 10, WriteCacheSize: 20, FileMode: FileModeDirect}
	if got != want {
		t.Fatalf("Merge=%+v want %+v", got, want)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		p    Params
		ok   bool
	}{
		{name: "defaults", p: DefaultParams(), ok: true},
		{name: "direct", p: Params{BlockSize: 1024, FileMode: FileModeDirect}, ok: true},
		{name: "zero block", p: Params{FileMode: FileModeMapped}},
		{name: "non power of two", p: Params{BlockSize: 3000, FileMode: FileModeMapped}},
		{name: "negative cache", p: Params{BlockSize: 1024, ReadCacheSize: -1, FileMode: FileModeMapped}},
		{name: "bad mode", p: Params{BlockSize: 1024, FileMode: "weird"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.ok && err != nil {
				t.Fatalf("validate: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidParams) {
				t.Fatalf("expected ErrInvalidParams, got %v", err)
			}
		})
	}
}

func TestReadWriteParams(t *testing.T) {
	dir := t.TempDir()
	if _, ok, err := ReadParams(dir); err != nil || ok {
		t.Fatalf("ReadParams on empty dir: ok=%v err=%v", ok, err)
	}
	p := Params{BlockSize: 2048, ReadCacheSize: 5, WriteCacheSize: 6, FileMode: FileModeDirect}
	if err := WriteParams(dir, p); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, ok, err := ReadParams(dir)
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	if got != p {
		t.Fatalf("read %+v want %+v", got, p)
	}
}
