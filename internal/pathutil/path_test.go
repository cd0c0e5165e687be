package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandUserAndEnv(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	t.Setenv("STORECONN_PATHUTIL_TEST", "/srv/data")
	cases := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "  ", want: ""},
		{in: "~", want: home},
		{in: "~/stores/a", want: filepath.Join(home, "stores/a")},
		{in: "$STORECONN_PATHUTIL_TEST/a", want: "/srv/data/a"},
		{in: "/plain/path", want: "/plain/path"},
	}
	for _, tc := range cases {
		got, err := ExpandUserAndEnv(tc.in)
		if err != nil {
			t.Fatalf("ExpandUserAndEnv(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ExpandUserAndEnv(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonical(t *testing.T) {
	dir := t.TempDir()
	a, err := Canonical(filepath.Join(dir, "store", "..", "store") + "/")
	if err != nil {
		t.Fatalf("canonical a: %v", err)
	}
	b, err := Canonical(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("canonical b: %v", err)
	}
	if a != b {
		t.Fatalf("canonical mismatch: %q vs %q", a, b)
	}
	if !filepath.IsAbs(a) {
		t.Fatalf("expected absolute path, got %q", a)
	}
	if _, err := Canonical(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
