package storeconn

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"pkt.systems/storeconn/internal/filelock"
	"pkt.systems/storeconn/location"
	"pkt.systems/storeconn/store"
)

// Connection is the single live handle of a Location inside a Registry.
// Once invalidated it never becomes valid again and every accessor that
// reaches the store returns ErrStaleConnection.
type Connection struct {
	id      xid.ID
	loc     location.Location
	store   store.Store
	lock    *filelock.Lock
	created time.Time
	valid   atomic.Bool
}

func newConnection(loc location.Location, st store.Store, lk *filelock.Lock, now time.Time) *Connection {
	c := &Connection{
		id:      xid.New(),
		loc:     loc,
		store:   st,
		lock:    lk,
		created: now,
	}
	c.valid.Store(true)
	return c
}

// Store returns the opened store while the connection is valid.
func (c *Connection) Store() (store.Store, error) {
	if !c.valid.Load() {
		return nil, ErrStaleConnection
	}
	return c.store, nil
}

// Begin starts a transaction on the connection's store.
func (c *Connection) Begin(ctx context.Context, mode store.TxnMode) (store.Txn, error) {
	st, err := c.Store()
	if err != nil {
		return nil, err
	}
	return st.TxnManager().Begin(ctx, mode)
}

// Valid reports whether the connection has not been torn down.
func (c *Connection) Valid() bool { return c.valid.Load() }

// Location returns the location the connection was built for.
func (c *Connection) Location() location.Location { return c.loc }

// ID returns the connection id (an xid, unique per process lifetime).
func (c *Connection) ID() string { return c.id.String() }

// CreatedAt returns the construction time.
func (c *Connection) CreatedAt() time.Time { return c.created }

// LockPath returns the sentinel lock path, or "" when no lock was taken.
func (c *Connection) LockPath() string {
	if c.lock == nil {
		return ""
	}
	return c.lock.Path()
}

// HoldsLock reports whether the connection currently holds a process lock.
func (c *Connection) HoldsLock() bool {
	return c.lock != nil && c.valid.Load() && c.lock.IsLockedHere()
}

func (c *Connection) activeTransactions() int {
	tm := c.store.TxnManager()
	if tm == nil {
		return 0
	}
	return tm.ActiveTransactions()
}
