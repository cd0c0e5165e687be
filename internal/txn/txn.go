// Package txn is the default transaction manager handed out by datasets. It
// tracks active transactions, serializes writers and refuses new work once
// shut down.
package txn

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"pkt.systems/storeconn/internal/loggingutil"
	"pkt.systems/storeconn/store"
)

// Config wires a Manager.
type Config struct {
	Logger pslog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager implements store.TxnManager.
type Manager struct {
	logger pslog.Logger
	now    func() time.Time
	writer chan struct{}

	mu     sync.Mutex
	active map[string]*Txn
	closed bool
}

var _ store.TxnManager = (*Manager)(nil)

// New returns a ready Manager.
func New(cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		logger: loggingutil.WithSubsystem(cfg.Logger, "storeconn.txn"),
		now:    cfg.Now,
		writer: make(chan struct{}, 1),
		active: make(map[string]*Txn),
	}
}

// Begin starts a transaction. Write transactions wait for the current writer
// to finish; ctx bounds that wait.
func (m *Manager) Begin(ctx context.Context, mode store.TxnMode) (store.Txn, error) {
	if mode != store.TxnRead && mode != store.TxnWrite {
		mode = store.TxnRead
	}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, store.ErrTxnManagerClosed
	}
	if mode == store.TxnWrite {
		select {
		case m.writer <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		if mode == store.TxnWrite {
			<-m.writer
		}
		return nil, store.ErrTxnManagerClosed
	}
	t := &Txn{
		id:      uuid.Must(uuid.NewV7()).String(),
		mode:    mode,
		started: m.now(),
		mgr:     m,
	}
	m.active[t.id] = t
	m.logger.Trace("txn.begin", "txn_id", t.id, "mode", mode.String())
	return t, nil
}

// ActiveTransactions counts unfinished transactions.
func (m *Manager) ActiveTransactions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Shutdown refuses further Begin calls and aborts whatever is still active.
// It is idempotent.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	pending := make([]*Txn, 0, len(m.active))
	for _, t := range m.active {
		pending = append(pending, t)
	}
	m.mu.Unlock()

	if len(pending) > 0 {
		m.logger.Warn("txn.shutdown.active", "count", len(pending))
	}
	for _, t := range pending {
		t.finish(stateAborted)
	}
	m.logger.Debug("txn.shutdown.complete")
	return nil
}

func (m *Manager) done(t *Txn) {
	m.mu.Lock()
	delete(m.active, t.id)
	m.mu.Unlock()
	if t.mode == store.TxnWrite {
		<-m.writer
	}
	m.logger.Trace("txn.end", "txn_id", t.id, "elapsed", m.now().Sub(t.started))
}

type txnState uint8

const (
	stateActive txnState = iota
	stateCommitted
	stateAborted
)

// Txn implements store.Txn.
type Txn struct {
	id      string
	mode    store.TxnMode
	started time.Time
	mgr     *Manager

	mu    sync.Mutex
	state txnState
}

// ID returns the transaction id (UUIDv7).
func (t *Txn) ID() string { return t.id }

// Mode returns read or write.
func (t *Txn) Mode() store.TxnMode { return t.mode }

// Commit finishes the transaction. A transaction aborted by a manager
// shutdown reports ErrTxnManagerClosed.
func (t *Txn) Commit() error {
	t.mu.Lock()
	state := t.state
	t.mu.Unlock()
	if state == stateAborted {
		t.mgr.mu.Lock()
		closed := t.mgr.closed
		t.mgr.mu.Unlock()
		if closed {
			return store.ErrTxnManagerClosed
		}
	}
	if !t.finish(stateCommitted) {
		return store.ErrTxnFinished
	}
	return nil
}

// Abort finishes the transaction without committing.
func (t *Txn) Abort() error {
	if !t.finish(stateAborted) {
		return store.ErrTxnFinished
	}
	return nil
}

func (t *Txn) finish(state txnState) bool {
	t.mu.Lock()
	if t.state != stateActive {
		t.mu.Unlock()
		return false
	}
	t.state = state
	t.mu.Unlock()
	t.mgr.done(t)
	return true
}
