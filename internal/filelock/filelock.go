// Package filelock implements the process file lock guarding an on-disk store
// location: an exclusive advisory lock on a sentinel file that is held by at
// most one OS process at a time.
//
// Advisory fcntl locks are owned by the process, not by a file descriptor, and
// closing any descriptor for the file drops them. Handles are therefore kept
// in a process-wide table so each sentinel file is opened exactly once per
// process, and an in-process semaphore gives goroutines the same blocking
// behaviour other processes get from the kernel.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"

	"pkt.systems/storeconn/internal/loggingutil"
)

var (
	// ErrReleased is returned when a discarded handle is locked again.
	ErrReleased = errors.New("filelock: handle released")
	// ErrProbeUnsupported is returned by Probe on platforms without fcntl.
	ErrProbeUnsupported = errors.New("filelock: probe not supported on this platform")
)

// Lock is the process-wide handle for one sentinel file.
type Lock struct {
	path string
	sem  chan struct{}

	mu       sync.Mutex
	file     *os.File
	held     bool
	released bool
	logger   pslog.Logger

	refs int // guarded by table.mu
}

type table struct {
	mu      sync.Mutex
	entries map[string]*Lock
}

var processLocks = &table{entries: make(map[string]*Lock)}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	logger pslog.Logger
}

// WithLogger sets the logger used for diagnostics of the handle. The first
// Open of a path that supplies a logger wins.
func WithLogger(l pslog.Logger) Option {
	return func(o *openOptions) { o.logger = l }
}

// Open returns the handle for path, creating the sentinel file when missing.
// Concurrent callers asking for the same file receive the same handle; each
// Open must be paired with a Release.
func Open(path string, opts ...Option) (*Lock, error) {
	var o openOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return processLocks.open(path, o)
}

// Release drops one reference to l. When the last reference goes the lock is
// unlocked if still held, the descriptor is closed and the handle becomes
// unusable. The sentinel file is left in place: removing it would let a
// waiting process lock an orphaned inode.
func Release(l *Lock) error {
	return processLocks.release(l)
}

func canonical(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("filelock: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("filelock: resolve %q: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

func (t *table) open(path string, o openOptions) (*Lock, error) {
	key, err := canonical(path)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry := t.entries[key]; entry != nil {
		entry.refs++
		if o.logger != nil {
			entry.mu.Lock()
			if entry.logger == nil {
				entry.logger = o.logger
			}
			entry.mu.Unlock()
		}
		return entry, nil
	}
	f, err := os.OpenFile(key, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filelock: open %q: %w", key, err)
	}
	entry := &Lock{
		path: key,
		sem:  make(chan struct{}, 1),
		file:   f,
		refs:   1,
		logger: o.logger,
	}
	t.entries[key] = entry
	return entry, nil
}

func (t *table) release(l *Lock) error {
	if l == nil {
		return nil
	}
	t.mu.Lock()
	if l.refs > 0 {
		l.refs--
	}
	if l.refs > 0 {
		t.mu.Unlock()
		return nil
	}
	if t.entries[l.path] == l {
		delete(t.entries, l.path)
	}
	t.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true
	var errs []error
	if l.held {
		if err := unlockFile(l.file); err != nil {
			errs = append(errs, fmt.Errorf("filelock: unlock %q: %w", l.path, err))
		}
		l.held = false
		<-l.sem
	}
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("filelock: close %q: %w", l.path, err))
		}
		l.file = nil
	}
	return errors.Join(errs...)
}

// Path returns the canonical sentinel file path.
func (l *Lock) Path() string { return l.path }

// LockEx takes the lock exclusively, blocking until every other holder in
// this process and in other processes has let go. It cannot be cancelled.
func (l *Lock) LockEx() error {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return ErrReleased
	}
	l.mu.Unlock()

	l.sem <- struct{}{}

	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		<-l.sem
		return ErrReleased
	}
	f := l.file
	l.mu.Unlock()

	if err := lockFile(f); err != nil {
		<-l.sem
		return fmt.Errorf("filelock: lock %q: %w", l.path, err)
	}

	l.mu.Lock()
	l.held = true
	logger := l.logger
	l.mu.Unlock()
	if err := writeOwner(f); err != nil {
		loggingutil.EnsureLogger(logger).Debug("filelock.owner.write_failed", "path", l.path, "error", err)
	}
	return nil
}

// Unlock gives up the lock. Unlocking a handle that is not held is a no-op.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	err := unlockFile(l.file)
	l.held = false
	<-l.sem
	if err != nil {
		return fmt.Errorf("filelock: unlock %q: %w", l.path, err)
	}
	return nil
}

// IsLockedHere reports whether this process currently holds the lock
// through this handle.
func (l *Lock) IsLockedHere() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// writeOwner records the holder pid. A failure leaves the lock held.
func writeOwner(f *os.File) error {
	if f == nil {
		return nil
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return fmt.Errorf("write pid: %w", err)
	}
	return nil
}

// Status describes the observable state of a sentinel file.
type Status struct {
	Path   string
	Exists bool
	// Locked is true when any process, this one included, holds the lock.
	Locked bool
	// HeldHere is true when this process holds the lock.
	HeldHere bool
	// PID is the holder reported by the kernel, or this process when HeldHere.
	PID int
	// RecordedPID is the pid written by the last holder, 0 when unreadable.
	RecordedPID int
	ModTime     time.Time
}

// Probe inspects the sentinel file at path without taking the lock.
func Probe(path string) (Status, error) {
	return processLocks.probe(path)
}

func (t *table) probe(path string) (Status, error) {
	key, err := canonical(path)
	if err != nil {
		return Status{}, err
	}
	status := Status{Path: key}
	info, err := os.Stat(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return status, nil
		}
		return status, fmt.Errorf("filelock: stat %q: %w", key, err)
	}
	status.Exists = true
	status.ModTime = info.ModTime()

	// Closing any descriptor on the sentinel drops this process's lock, so
	// while the table has an entry only its descriptor is used. Holding the
	// table keeps an entry from appearing while a private descriptor is open.
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry := t.entries[key]; entry != nil {
		entry.mu.Lock()
		defer entry.mu.Unlock()
		if entry.file != nil {
			status.RecordedPID = readOwnerAt(entry.file)
			if entry.held {
				status.Locked = true
				status.HeldHere = true
				status.PID = os.Getpid()
				return status, nil
			}
			pid, err := probeFile(entry.file)
			if err != nil {
				return status, fmt.Errorf("filelock: probe %q: %w", key, err)
			}
			status.Locked = pid != 0
			status.PID = pid
			return status, nil
		}
	}
	f, err := os.Open(key)
	if err != nil {
		return status, fmt.Errorf("filelock: open %q: %w", key, err)
	}
	defer f.Close()
	status.RecordedPID = readOwnerAt(f)
	pid, err := probeFile(f)
	if err != nil {
		return status, fmt.Errorf("filelock: probe %q: %w", key, err)
	}
	status.Locked = pid != 0
	status.PID = pid
	return status, nil
}

func readOwnerAt(f *os.File) int {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}
