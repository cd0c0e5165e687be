// Package channel is the default channel manager: a cache of open file
// descriptors ("byte channels") shared by every dataset the process opens.
// Idle channels are kept in an LRU and closed once the cache overflows.
package channel

import (
	"container/list"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pkt.systems/pslog"

	"pkt.systems/storeconn/internal/loggingutil"
	"pkt.systems/storeconn/store"
)

// DefaultMaxIdle bounds idle cached channels when Config.MaxIdle is unset.
const DefaultMaxIdle = 256

// ErrClosed is returned by I/O on a channel that was discarded or reset.
var ErrClosed = errors.New("channel: closed")

// Channel is a reference-counted open file.
type Channel struct {
	path string
	mgr  *Manager

	file *os.File // guarded by mgr.mu
	refs int
	elem *list.Element
}

// Path returns the file path backing the channel.
func (c *Channel) Path() string { return c.path }

// ReadAt reads from the underlying file.
func (c *Channel) ReadAt(p []byte, off int64) (int, error) {
	f := c.mgr.fileOf(c)
	if f == nil {
		return 0, ErrClosed
	}
	return f.ReadAt(p, off)
}

// WriteAt writes to the underlying file.
func (c *Channel) WriteAt(p []byte, off int64) (int, error) {
	f := c.mgr.fileOf(c)
	if f == nil {
		return 0, ErrClosed
	}
	return f.WriteAt(p, off)
}

// Sync flushes the underlying file.
func (c *Channel) Sync() error {
	f := c.mgr.fileOf(c)
	if f == nil {
		return ErrClosed
	}
	return f.Sync()
}

// Size reports the current file size.
func (c *Channel) Size() (int64, error) {
	f := c.mgr.fileOf(c)
	if f == nil {
		return 0, ErrClosed
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Config wires a Manager.
type Config struct {
	MaxIdle int
	Logger  pslog.Logger
}

// Manager implements store.ChannelManager.
type Manager struct {
	max    int
	logger pslog.Logger

	mu      sync.Mutex
	entries map[string]*Channel
	lru     *list.List
}

var _ store.ChannelManager = (*Manager)(nil)

// New returns an empty Manager.
func New(cfg Config) *Manager {
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = DefaultMaxIdle
	}
	return &Manager{
		max:     cfg.MaxIdle,
		logger:  loggingutil.WithSubsystem(cfg.Logger, "storeconn.channel"),
		entries: make(map[string]*Channel),
		lru:     list.New(),
	}
}

// Acquire returns the channel for path, opening (and creating) the file when
// it is not cached. Each Acquire must be paired with Release.
func (m *Manager) Acquire(path string) (*Channel, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("channel: resolve %q: %w", path, err)
	}
	m.mu.Lock()
	if entry := m.entries[abs]; entry != nil {
		m.retainLocked(entry)
		m.mu.Unlock()
		return entry, nil
	}
	m.mu.Unlock()

	f, err := os.OpenFile(abs, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("channel: open %q: %w", abs, err)
	}

	m.mu.Lock()
	if entry := m.entries[abs]; entry != nil {
		m.retainLocked(entry)
		m.mu.Unlock()
		_ = f.Close()
		return entry, nil
	}
	entry := &Channel{path: abs, mgr: m, file: f, refs: 1}
	m.entries[abs] = entry
	m.mu.Unlock()
	m.logger.Trace("channel.open", "path", abs)
	return entry, nil
}

func (m *Manager) retainLocked(entry *Channel) {
	entry.refs++
	if entry.elem != nil {
		m.lru.Remove(entry.elem)
		entry.elem = nil
	}
}

// Release drops a reference. Unreferenced channels stay open in the LRU until
// evicted.
func (m *Manager) Release(c *Channel) {
	if c == nil {
		return
	}
	m.mu.Lock()
	if m.entries[c.path] != c {
		m.mu.Unlock()
		return
	}
	if c.refs > 0 {
		c.refs--
	}
	if c.refs == 0 && c.elem == nil {
		c.elem = m.lru.PushFront(c)
	}
	toClose := m.evictLocked()
	m.mu.Unlock()
	m.closeAll(toClose)
}

// Discard closes c immediately regardless of other references.
func (m *Manager) Discard(c *Channel) {
	if c == nil {
		return
	}
	var file *os.File
	m.mu.Lock()
	if c.elem != nil {
		m.lru.Remove(c.elem)
		c.elem = nil
	}
	if m.entries[c.path] == c {
		delete(m.entries, c.path)
	}
	file = c.file
	c.file = nil
	c.refs = 0
	m.mu.Unlock()
	if file != nil {
		_ = file.Close()
	}
}

// ResetAll closes every cached channel, in use or idle. Channels handed out
// before the reset fail with ErrClosed afterwards.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	files := make([]*os.File, 0, len(m.entries))
	for _, entry := range m.entries {
		if entry.file != nil {
			files = append(files, entry.file)
			entry.file = nil
		}
		entry.refs = 0
		entry.elem = nil
	}
	m.entries = make(map[string]*Channel)
	m.lru.Init()
	m.mu.Unlock()
	m.closeAll(files)
	m.logger.Debug("channel.reset", "closed", len(files))
}

// Len reports how many channels are cached.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) fileOf(c *Channel) *os.File {
	m.mu.Lock()
	defer m.mu.Unlock()
	return c.file
}

func (m *Manager) evictLocked() []*os.File {
	var toClose []*os.File
	for m.lru.Len() > m.max {
		back := m.lru.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*Channel)
		m.lru.Remove(back)
		entry.elem = nil
		delete(m.entries, entry.path)
		if entry.file != nil {
			toClose = append(toClose, entry.file)
			entry.file = nil
		}
	}
	return toClose
}

func (m *Manager) closeAll(files []*os.File) {
	for _, f := range files {
		if err := f.Close(); err != nil {
			m.logger.Debug("channel.close.error", "path", f.Name(), "error", err)
		}
	}
}
