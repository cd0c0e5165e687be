//go:build unix

package filelock

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

const helperEnv = "STORECONN_FILELOCK_HELPER"

// TestHelperProcess is executed in a child process by the cross-process tests.
func TestHelperProcess(t *testing.T) {
	req := os.Getenv(helperEnv)
	if req == "" {
		t.Skip("helper process only")
	}
	mode, path, _ := strings.Cut(req, ":")
	switch mode {
	case "probe":
		st, err := Probe(path)
		if err != nil {
			fmt.Fprintf(os.Stdout, "error=%v\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stdout, "locked=%t pid=%d here=%t\n", st.Locked, st.PID, st.HeldHere)
		os.Exit(0)
	case "lock":
		l, err := Open(path)
		if err != nil {
			os.Exit(2)
		}
		if err := l.LockEx(); err != nil {
			os.Exit(3)
		}
		_ = Release(l)
		os.Exit(0)
	}
	os.Exit(4)
}

func helperCommand(t *testing.T, mode, path string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
	cmd.Env = append(os.Environ(), helperEnv+"="+mode+":"+path)
	return cmd
}

func TestProbeFromOtherProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.lock")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer Release(l)
	if err := l.LockEx(); err != nil {
		t.Fatalf("lock: %v", err)
	}

	out, err := helperCommand(t, "probe", path).Output()
	if err != nil {
		t.Fatalf("helper probe: %v (%s)", err, out)
	}
	want := fmt.Sprintf("locked=true pid=%d here=false", os.Getpid())
	if got := strings.TrimSpace(string(out)); !strings.Contains(got, want) {
		t.Fatalf("helper probe=%q want %q", got, want)
	}

	local, err := Probe(path)
	if err != nil {
		t.Fatalf("local probe: %v", err)
	}
	if !local.Locked || !local.HeldHere || local.PID != os.Getpid() {
		t.Fatalf("unexpected local status %+v", local)
	}
	if local.RecordedPID != os.Getpid() {
		t.Fatalf("recorded pid=%d want %d", local.RecordedPID, os.Getpid())
	}
	if !l.IsLockedHere() {
		t.Fatalf("probing must not drop the lock")
	}
}

func TestLocalProbeKeepsKernelLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.lock")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer Release(l)
	if err := l.LockEx(); err != nil {
		t.Fatalf("lock: %v", err)
	}
	want := fmt.Sprintf("locked=true pid=%d here=false", os.Getpid())
	for i := 0; i < 2; i++ {
		local, err := Probe(path)
		if err != nil {
			t.Fatalf("local probe %d: %v", i, err)
		}
		if local.RecordedPID != os.Getpid() {
			t.Fatalf("recorded pid=%d want %d", local.RecordedPID, os.Getpid())
		}
		out, err := helperCommand(t, "probe", path).Output()
		if err != nil {
			t.Fatalf("helper probe %d: %v (%s)", i, err, out)
		}
		if got := strings.TrimSpace(string(out)); !strings.Contains(got, want) {
			t.Fatalf("after local probe %d helper saw %q want %q", i, got, want)
		}
	}
}

func TestOtherProcessWaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.lock")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.LockEx(); err != nil {
		t.Fatalf("lock: %v", err)
	}

	cmd := helperCommand(t, "lock", path)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start helper: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		t.Fatalf("helper acquired a held lock (exit: %v)", err)
	case <-time.After(300 * time.Millisecond):
	}
	if err := Release(l); err != nil {
		t.Fatalf("release: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("helper: %v", err)
		}
	case <-time.After(10 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatalf("helper did not acquire after release")
	}

	st, err := Probe(path)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if st.Locked {
		t.Fatalf("expected unlocked after helper exit, got %+v", st)
	}
	if st.RecordedPID == 0 || st.RecordedPID == os.Getpid() {
		t.Fatalf("expected helper pid recorded, got %d (self %s)", st.RecordedPID, strconv.Itoa(os.Getpid()))
	}
}

func TestProbeMissingFile(t *testing.T) {
	st, err := Probe(filepath.Join(t.TempDir(), "absent.lock"))
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if st.Exists || st.Locked {
		t.Fatalf("unexpected status %+v", st)
	}
}
