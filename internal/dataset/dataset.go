// Package dataset is the default store builder. Disk datasets persist their
// parameters next to a data file opened through the channel manager; memory
// datasets keep nothing but their parameters and transaction manager.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"pkt.systems/pslog"

	"pkt.systems/storeconn/internal/channel"
	"pkt.systems/storeconn/internal/loggingutil"
	"pkt.systems/storeconn/internal/txn"
	"pkt.systems/storeconn/location"
	"pkt.systems/storeconn/store"
)

// DataFileName is the data file inside a disk dataset directory.
const DataFileName = "data.dat"

// Config wires a Builder.
type Config struct {
	// Channels serves disk datasets; a private manager is created when nil.
	Channels *channel.Manager
	// Defaults fill parameters neither persisted nor supplied.
	Defaults store.Params
	Logger   pslog.Logger
}

// Builder implements store.Builder.
type Builder struct {
	channels *channel.Manager
	defaults store.Params
	logger   pslog.Logger
}

var _ store.Builder = (*Builder)(nil)

// NewBuilder returns a Builder for mem:// and disk locations.
func NewBuilder(cfg Config) *Builder {
	logger := loggingutil.WithSubsystem(cfg.Logger, "storeconn.dataset")
	if cfg.Channels == nil {
		cfg.Channels = channel.New(channel.Config{Logger: cfg.Logger})
	}
	return &Builder{
		channels: cfg.Channels,
		defaults: cfg.Defaults.WithDefaults(),
		logger:   logger,
	}
}

// Build opens the dataset at loc.
func (b *Builder) Build(ctx context.Context, loc location.Location, params *store.Params) (store.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if loc.IsZero() {
		return nil, fmt.Errorf("dataset: location required")
	}
	requested := b.defaults
	if params != nil {
		requested = store.Merge(*params, b.defaults)
	}
	if loc.IsMem() {
		return b.buildMem(loc, requested)
	}
	return b.buildDisk(loc, requested)
}

func (b *Builder) buildMem(loc location.Location, requested store.Params) (*Dataset, error) {
	if err := requested.Validate(); err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	ds := &Dataset{
		loc:    loc,
		params: requested,
		txns:   txn.New(txn.Config{Logger: b.logger}),
		logger: b.logger.With("location", loc.String()),
	}
	ds.logger.Debug("dataset.open.mem")
	return ds, nil
}

func (b *Builder) buildDisk(loc location.Location, requested store.Params) (*Dataset, error) {
	dir := loc.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dataset: prepare directory %q: %w", dir, err)
	}
	logger := b.logger.With("location", loc.String())
	effective := requested
	persisted, found, err := store.ReadParams(dir)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	if found {
		effective = store.Merge(persisted, requested)
		if effective != requested {
			logger.Debug("dataset.params.persisted_override", "persisted", persisted, "requested", requested)
		}
	}
	if err := effective.Validate(); err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	if !found || effective != persisted {
		if err := store.WriteParams(dir, effective); err != nil {
			return nil, fmt.Errorf("dataset: %w", err)
		}
	}
	data, err := b.channels.Acquire(loc.Path(DataFileName))
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	ds := &Dataset{
		loc:      loc,
		params:   effective,
		txns:     txn.New(txn.Config{Logger: b.logger}),
		channels: b.channels,
		data:     data,
		logger:   logger,
	}
	logger.Debug("dataset.open.disk", "block_size", effective.BlockSize, "file_mode", effective.FileMode, "params_found", found)
	return ds, nil
}

// Dataset implements store.Store.
type Dataset struct {
	loc      location.Location
	params   store.Params
	txns     *txn.Manager
	channels *channel.Manager
	logger   pslog.Logger

	mu     sync.Mutex
	data   *channel.Channel
	closed bool
}

var _ store.Store = (*Dataset)(nil)

// Location returns the location the dataset was opened at.
func (d *Dataset) Location() location.Location { return d.loc }

// Params returns the effective parameters.
func (d *Dataset) Params() store.Params { return d.params }

// TxnManager returns the dataset's transaction manager.
func (d *Dataset) TxnManager() store.TxnManager { return d.txns }

// DataChannel returns the data file channel of a disk dataset.
func (d *Dataset) DataChannel() (*channel.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, store.ErrStoreClosed
	}
	if d.data == nil {
		return nil, fmt.Errorf("dataset: %s has no data file", d.loc)
	}
	return d.data, nil
}

// Closed reports whether Shutdown ran.
func (d *Dataset) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Shutdown flushes and releases the data channel. A second call returns
// store.ErrStoreClosed.
func (d *Dataset) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrStoreClosed
	}
	d.closed = true
	var syncErr error
	if d.data != nil {
		if err := d.data.Sync(); err != nil && !errors.Is(err, channel.ErrClosed) {
			syncErr = fmt.Errorf("dataset: sync %q: %w", d.data.Path(), err)
		}
		d.channels.Release(d.data)
		d.data = nil
	}
	d.logger.Debug("dataset.shutdown")
	return syncErr
}
