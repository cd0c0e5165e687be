package storeconn

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pkt.systems/pslog"

	"pkt.systems/storeconn/internal/channel"
	"pkt.systems/storeconn/internal/dataset"
	"pkt.systems/storeconn/internal/filelock"
	"pkt.systems/storeconn/internal/loggingutil"
	"pkt.systems/storeconn/location"
	"pkt.systems/storeconn/store"
)

// Registry maps each Location to at most one live Connection and keeps
// other processes out of disk locations through a sentinel lock file.
//
// A single mutex serializes every mutating operation, including the lock
// wait and the store build. Connecting to a location held by another
// process therefore blocks the whole Registry until that process lets go.
type Registry struct {
	cfg      Config
	builder  store.Builder
	channels store.ChannelManager
	onWarn   WarningHandler
	logger   pslog.Logger
	tracer   trace.Tracer
	metrics  *registryMetrics
	now      func() time.Time

	mu     sync.Mutex
	conns  map[location.Location]*Connection
	closed bool
}

// NewRegistry validates cfg and returns an empty Registry. Unless replaced
// through options, disk and memory locations are served by the built-in
// dataset builder backed by a channel manager sized by
// cfg.ChannelCacheSize.
func NewRegistry(cfg Config, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	base := loggingutil.EnsureLogger(o.Logger)
	logger := loggingutil.WithSubsystem(base, "storeconn.registry")

	channels := o.Channels
	if channels == nil {
		channels = channel.New(channel.Config{
			MaxIdle: cfg.ChannelCacheSize,
			Logger:  base,
		})
	}
	builder := o.Builder
	if builder == nil {
		mgr, ok := channels.(*channel.Manager)
		if !ok {
			return nil, fmt.Errorf("storeconn: channel manager %T cannot serve the default builder; supply WithBuilder", channels)
		}
		builder = dataset.NewBuilder(dataset.Config{
			Channels: mgr,
			Defaults: cfg.DefaultParams,
			Logger:   base,
		})
	}
	return &Registry{
		cfg:      cfg,
		builder:  builder,
		channels: channels,
		onWarn:   o.WarningHandler,
		logger:   logger,
		tracer:   otel.Tracer("pkt.systems/storeconn/registry"),
		metrics:  newRegistryMetrics(logger),
		now:      time.Now,
		conns:    make(map[location.Location]*Connection),
	}, nil
}

// ConnectCreate returns the cached Connection for loc or builds one. params
// only matter for the first build; a disk location's persisted parameters
// take precedence over them. MemUnique locations are built every time and
// never cached.
func (r *Registry) ConnectCreate(ctx context.Context, loc location.Location, params *store.Params) (conn *Connection, err error) {
	ctx, span := r.startSpan(ctx, "connect", loc)
	defer func() { endSpan(span, err) }()
	if loc.IsZero() {
		return nil, fmt.Errorf("storeconn: location required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if !loc.IsMemUnique() {
		if existing, ok := r.conns[loc]; ok {
			r.metrics.recordConnect(ctx, loc, "hit")
			r.logger.Debug("registry.connect.hit", "location", loc.String(), "conn", existing.ID())
			return existing, nil
		}
	}
	conn, err = r.buildLocked(ctx, loc, params)
	if err != nil {
		r.metrics.recordConnect(ctx, loc, "error")
		r.logger.Warn("registry.connect.error", "location", loc.String(), "error", err)
		return nil, err
	}
	if !loc.IsMemUnique() {
		r.conns[loc] = conn
		r.metrics.setActive(len(r.conns))
	}
	r.metrics.recordConnect(ctx, loc, "built")
	r.logger.Info("registry.connect.built",
		"location", loc.String(),
		"conn", conn.ID(),
		"lock", conn.LockPath(),
	)
	return conn, nil
}

func (r *Registry) buildLocked(ctx context.Context, loc location.Location, params *store.Params) (*Connection, error) {
	var lk *filelock.Lock
	if loc.Kind() == location.KindDisk && !r.cfg.DisableProcessLock {
		var err error
		lk, err = r.acquireLock(ctx, loc)
		if err != nil {
			return nil, err
		}
	}
	start := r.now()
	st, err := r.builder.Build(ctx, loc, params)
	if err == nil && st == nil {
		err = errors.New("builder returned no store")
	}
	r.metrics.recordBuild(ctx, loc, r.now().Sub(start), err == nil)
	if err != nil {
		if lk != nil {
			if uerr := lk.Unlock(); uerr != nil {
				r.logger.Warn("registry.connect.unlock_failed", "path", lk.Path(), "error", uerr)
			}
			if rerr := filelock.Release(lk); rerr != nil {
				r.logger.Warn("registry.connect.release_failed", "path", lk.Path(), "error", rerr)
			}
		}
		return nil, &BuildError{Location: loc, Err: err}
	}
	return newConnection(loc, st, lk, r.now()), nil
}

func (r *Registry) acquireLock(ctx context.Context, loc location.Location) (*filelock.Lock, error) {
	path := loc.Path(LockFileName)
	if err := os.MkdirAll(loc.Dir(), 0o755); err != nil {
		return nil, &LockError{Path: path, Op: "create", Err: err}
	}
	lk, err := filelock.Open(path, filelock.WithLogger(r.logger))
	if err != nil {
		return nil, &LockError{Path: path, Op: "create", Err: err}
	}
	start := r.now()
	if err := lk.LockEx(); err != nil {
		_ = filelock.Release(lk)
		return nil, &LockError{Path: path, Op: "acquire", Err: err}
	}
	waited := r.now().Sub(start)
	r.metrics.recordLockWait(ctx, waited)
	r.logger.Debug("registry.lock.acquired", "path", path, "waited_ms", waited.Milliseconds())
	return lk, nil
}

// ConnectExisting returns the cached Connection for loc without building.
func (r *Registry) ConnectExisting(loc location.Location) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[loc]
	return c, ok
}

// IsSetup reports whether loc has a cached Connection.
func (r *Registry) IsSetup(loc location.Location) bool {
	_, ok := r.ConnectExisting(loc)
	return ok
}

// Release tears down the cached Connection of loc. It refuses with
// ErrActiveTransactions while transactions are running. Releasing an
// unknown location is a no-op.
func (r *Registry) Release(ctx context.Context, loc location.Location) error {
	return r.expel(ctx, "release", loc, false)
}

// Expel tears down the cached Connection of loc. Without force it behaves
// like Release; with force active transactions are aborted.
func (r *Registry) Expel(ctx context.Context, loc location.Location, force bool) error {
	return r.expel(ctx, "expel", loc, force)
}

func (r *Registry) expel(ctx context.Context, op string, loc location.Location, force bool) (err error) {
	ctx, span := r.startSpan(ctx, op, loc)
	span.SetAttributes(attribute.Bool("storeconn.forced", force))
	defer func() { endSpan(span, err) }()

	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[loc]
	if !ok {
		return nil
	}
	if err := r.checkIdleLocked(conn, force); err != nil {
		return err
	}
	r.shutdownLocked(ctx, conn, op, force)
	return nil
}

// Disconnect tears down conn. It is the only way to shut down a MemUnique
// connection. Stale connections and connections not owned by r are ignored.
func (r *Registry) Disconnect(ctx context.Context, conn *Connection, force bool) (err error) {
	if conn == nil {
		return nil
	}
	ctx, span := r.startSpan(ctx, "disconnect", conn.loc)
	defer func() { endSpan(span, err) }()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !conn.Valid() {
		return nil
	}
	if !conn.loc.IsMemUnique() && r.conns[conn.loc] != conn {
		return nil
	}
	if err := r.checkIdleLocked(conn, force); err != nil {
		return err
	}
	r.shutdownLocked(ctx, conn, "disconnect", force)
	return nil
}

func (r *Registry) checkIdleLocked(conn *Connection, force bool) error {
	if force {
		return nil
	}
	if n := conn.activeTransactions(); n > 0 {
		return fmt.Errorf("%w: %d on %s", ErrActiveTransactions, n, conn.loc)
	}
	return nil
}

// Reset forcefully tears down every cached Connection and resets all file
// channels. Intended for tests and administrative shutdown.
func (r *Registry) Reset(ctx context.Context) {
	ctx, span := r.tracer.Start(ctx, "storeconn.reset", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked(ctx)
}

func (r *Registry) resetLocked(ctx context.Context) {
	for _, loc := range r.locationsLocked() {
		r.shutdownLocked(ctx, r.conns[loc], "reset", true)
	}
	clear(r.conns)
	r.metrics.setActive(0)
	r.channels.ResetAll()
	r.logger.Info("registry.reset.complete")
}

// Close resets the registry and rejects later ConnectCreate calls with
// ErrRegistryClosed.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.resetLocked(ctx)
	r.metrics.close()
}

// Locations returns the cached locations in sorted order.
func (r *Registry) Locations() []location.Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locationsLocked()
}

func (r *Registry) locationsLocked() []location.Location {
	out := make([]location.Location, 0, len(r.conns))
	for loc := range r.conns {
		out = append(out, loc)
	}
	slices.SortFunc(out, func(a, b location.Location) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// Len returns the number of cached connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// shutdownLocked runs the teardown sequence of conn. Every step runs even
// when an earlier one fails; failures become warnings.
func (r *Registry) shutdownLocked(ctx context.Context, conn *Connection, op string, force bool) {
	if !conn.Valid() {
		return
	}
	if tm := conn.store.TxnManager(); tm != nil {
		if err := tm.Shutdown(); err != nil {
			r.warnLocked(ctx, Warning{Kind: WarnTxnShutdown, Location: conn.loc, ConnectionID: conn.ID(), Err: err})
		}
	}
	if err := conn.store.Shutdown(); err != nil {
		r.warnLocked(ctx, Warning{Kind: WarnStoreShutdown, Location: conn.loc, ConnectionID: conn.ID(), Err: err})
	}
	conn.valid.Store(false)
	if r.conns[conn.loc] == conn {
		delete(r.conns, conn.loc)
		r.metrics.setActive(len(r.conns))
	}
	if lk := conn.lock; lk != nil {
		if !lk.IsLockedHere() {
			r.warnLocked(ctx, Warning{Kind: WarnLockNotHeld, Location: conn.loc, ConnectionID: conn.ID()})
		}
		if err := lk.Unlock(); err != nil {
			r.warnLocked(ctx, Warning{Kind: WarnLockRelease, Location: conn.loc, ConnectionID: conn.ID(), Err: err})
		}
		if err := filelock.Release(lk); err != nil {
			r.warnLocked(ctx, Warning{Kind: WarnLockRelease, Location: conn.loc, ConnectionID: conn.ID(), Err: err})
		}
	}
	r.metrics.recordRelease(ctx, op, force)
	r.logger.Info("registry."+op+".complete",
		"location", conn.loc.String(),
		"conn", conn.ID(),
		"forced", force,
	)
}

func (r *Registry) warnLocked(ctx context.Context, w Warning) {
	fields := []any{
		"kind", w.Kind.String(),
		"location", w.Location.String(),
		"conn", w.ConnectionID,
	}
	if w.Err != nil {
		fields = append(fields, "error", w.Err)
	}
	r.logger.Warn("registry.teardown.warning", fields...)
	r.metrics.recordWarning(ctx, w.Kind)
	if r.onWarn != nil {
		r.onWarn(w)
	}
}

func (r *Registry) startSpan(ctx context.Context, op string, loc location.Location) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.tracer.Start(ctx, "storeconn."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("storeconn.location", loc.String()),
			attribute.String("storeconn.kind", loc.Kind().String()),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storeconn_error")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
