package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pkt.systems/storeconn/internal/channel"
	"pkt.systems/storeconn/location"
	"pkt.systems/storeconn/store"
)

func TestBuildMem(t *testing.T) {
	b := NewBuilder(Config{})
	st, err := b.Build(context.Background(), location.Mem(), &store.Params{BlockSize: 1024})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	p := st.Params()
	if p.BlockSize != 1024 {
		t.Fatalf("block size=%d want 1024", p.BlockSize)
	}
	if p.FileMode != store.FileModeMapped {
		t.Fatalf("expected default file mode, got %q", p.FileMode)
	}
	if err := st.TxnManager().Shutdown(); err != nil {
		t.Fatalf("txn shutdown: %v", err)
	}
	if err := st.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := st.Shutdown(); !errors.Is(err, store.ErrStoreClosed) {
		t.Fatalf("second shutdown: expected ErrStoreClosed, got %v", err)
	}
}

func TestBuildDiskPersistsParams(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	loc, err := location.Disk(dir)
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	channels := channel.New(channel.Config{})
	b := NewBuilder(Config{Channels: channels})
	ctx := context.Background()

	first, err := b.Build(ctx, loc, &store.Params{BlockSize: 4096, FileMode: store.FileModeDirect})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, store.ParamsFileName)); err != nil {
		t.Fatalf("params file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, DataFileName)); err != nil {
		t.Fatalf("data file missing: %v", err)
	}
	ds := first.(*Dataset)
	ch, err := ds.DataChannel()
	if err != nil {
		t.Fatalf("data channel: %v", err)
	}
	if _, err := ch.WriteAt([]byte("block"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := first.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := ds.DataChannel(); !errors.Is(err, store.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}

	second, err := b.Build(ctx, loc, &store.Params{BlockSize: 65536, FileMode: store.FileModeMapped})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	defer second.Shutdown()
	p := second.Params()
	if p.BlockSize != 4096 || p.FileMode != store.FileModeDirect {
		t.Fatalf("persisted params must win, got %+v", p)
	}
}

func TestBuildRejectsInvalidParams(t *testing.T) {
	b := NewBuilder(Config{})
	_, err := b.Build(context.Background(), location.Mem(), &store.Params{BlockSize: 1000})
	if !errors.Is(err, store.ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}

func TestBuildHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewBuilder(Config{}).Build(ctx, location.Mem(), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
