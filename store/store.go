// Package store defines the collaborators a connection registry drives: the
// builder that opens a dataset at a location, the opened dataset handle, its
// transaction manager and the byte-channel cache shared by datasets.
package store

import (
	"context"
	"errors"

	"pkt.systems/storeconn/location"
)

var (
	// ErrStoreClosed is returned by operations on a shut down dataset.
	ErrStoreClosed = errors.New("store: closed")
	// ErrTxnManagerClosed is returned by Begin after the manager shut down.
	ErrTxnManagerClosed = errors.New("store: transaction manager shut down")
	// ErrTxnFinished is returned when a committed or aborted txn is reused.
	ErrTxnFinished = errors.New("store: transaction already finished")
	// ErrInvalidParams flags store parameters that fail validation.
	ErrInvalidParams = errors.New("store: invalid params")
)

// Builder opens (creating when needed) the dataset at a location. Any
// persisted parameters at the location take precedence over params, which
// may be nil. Builders may perform recovery and may be slow.
type Builder interface {
	Build(ctx context.Context, loc location.Location, params *Params) (Store, error)
}

// Store is an opened dataset handle.
type Store interface {
	Location() location.Location
	// Params returns the effective parameters the dataset was opened with.
	Params() Params
	TxnManager() TxnManager
	// Shutdown releases the dataset's resources. It is called once, after the
	// transaction manager has been shut down.
	Shutdown() error
}

// TxnMode selects read or write transactions.
type TxnMode uint8

const (
	// TxnRead transactions run concurrently.
	TxnRead TxnMode = iota + 1
	// TxnWrite transactions are exclusive among writers.
	TxnWrite
)

func (m TxnMode) String() string {
	switch m {
	case TxnRead:
		return "read"
	case TxnWrite:
		return "write"
	default:
		return "unknown"
	}
}

// TxnManager owns the transactions running against one dataset.
type TxnManager interface {
	Begin(ctx context.Context, mode TxnMode) (Txn, error)
	// ActiveTransactions counts transactions begun and not yet finished.
	ActiveTransactions() int
	// Shutdown stops new transactions from starting.
	Shutdown() error
}

// Txn is one transaction handed out by a TxnManager.
type Txn interface {
	ID() string
	Mode() TxnMode
	Commit() error
	Abort() error
}

// ChannelManager caches open byte channels for datasets process-wide.
type ChannelManager interface {
	// ResetAll closes every cached channel.
	ResetAll()
}
