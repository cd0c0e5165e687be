package storeconn

import (
	"pkt.systems/pslog"

	"pkt.systems/storeconn/internal/channel"
	"pkt.systems/storeconn/store"
)

// Option configures a Registry.
type Option func(*options)

type options struct {
	Logger         pslog.Logger
	Builder        store.Builder
	Channels       store.ChannelManager
	WarningHandler WarningHandler
}

// WithLogger supplies a custom logger.
func WithLogger(l pslog.Logger) Option {
	return func(o *options) {
		o.Logger = l
	}
}

// WithBuilder replaces the default dataset builder (useful for tests and for
// embedding another storage engine).
func WithBuilder(b store.Builder) Option {
	return func(o *options) {
		o.Builder = b
	}
}

// WithChannelManager replaces the channel manager reset by Registry.Reset.
// The default builder only accepts managers from NewChannelManager; any other
// implementation requires WithBuilder.
func WithChannelManager(m store.ChannelManager) Option {
	return func(o *options) {
		o.Channels = m
	}
}

// NewChannelManager returns the built-in channel manager. One manager may be
// shared by several registries; maxIdle <= 0 selects DefaultChannelCacheSize.
func NewChannelManager(maxIdle int, logger pslog.Logger) store.ChannelManager {
	if maxIdle <= 0 {
		maxIdle = DefaultChannelCacheSize
	}
	return channel.New(channel.Config{MaxIdle: maxIdle, Logger: logger})
}

// WithWarningHandler receives teardown warnings in addition to the log.
func WithWarningHandler(h WarningHandler) Option {
	return func(o *options) {
		o.WarningHandler = h
	}
}
