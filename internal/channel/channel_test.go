package channel

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestManagerEvictsIdle(t *testing.T) {
	dir := t.TempDir()
	m := New(Config{MaxIdle: 1})
	pathA := filepath.Join(dir, "a.dat")
	pathB := filepath.Join(dir, "b.dat")

	a, err := m.Acquire(pathA)
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	m.Release(a)

	b, err := m.Acquire(pathB)
	if err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	m.Release(b)

	if got := m.Len(); got != 1 {
		t.Fatalf("expected 1 cached channel, got %d", got)
	}
	if _, ok := m.entries[b.Path()]; !ok {
		t.Fatalf("expected path %q to remain cached", b.Path())
	}
	if _, err := a.WriteAt([]byte("x"), 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("evicted channel should be closed, got %v", err)
	}
	m.ResetAll()
}

func TestManagerSharesChannel(t *testing.T) {
	dir := t.TempDir()
	m := New(Config{})
	path := filepath.Join(dir, "data.dat")
	a, err := m.Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	b, err := m.Acquire(path)
	if err != nil {
		t.Fatalf("acquire again: %v", err)
	}
	if a != b {
		t.Fatalf("expected the cached channel")
	}
	if _, err := a.WriteAt([]byte("hello"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 5)
	if _, err := b.ReadAt(buf, 0); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("read %q", buf)
	}
	size, err := a.Size()
	if err != nil || size != 5 {
		t.Fatalf("size=%d err=%v", size, err)
	}
	m.Release(a)
	m.Release(b)
}

func TestResetAllClosesInUse(t *testing.T) {
	dir := t.TempDir()
	m := New(Config{})
	c, err := m.Acquire(filepath.Join(dir, "data.dat"))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	m.ResetAll()
	if m.Len() != 0 {
		t.Fatalf("expected empty manager after reset")
	}
	if err := c.Sync(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after reset, got %v", err)
	}
	m.Release(c)

	again, err := m.Acquire(c.Path())
	if err != nil {
		t.Fatalf("acquire after reset: %v", err)
	}
	if again == c {
		t.Fatalf("reset must not hand back the closed channel")
	}
	m.Discard(again)
	if m.Len() != 0 {
		t.Fatalf("discard should drop the entry")
	}
}
