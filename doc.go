// Package storeconn is a process-wide registry of storage connections.
//
// A Registry guarantees that a Location (a disk directory, the shared
// in-memory store, or a unique in-memory store) maps to at most one live
// Connection inside the process, and that no two processes on the same host
// open the same disk directory at once. The second guarantee is enforced by
// an advisory fcntl lock on a sentinel file named LockFileName inside the
// directory; a process that finds the lock taken waits until the holder
// releases it.
//
// Typical use:
//
//	reg, err := storeconn.NewRegistry(storeconn.Config{}, storeconn.WithLogger(logger))
//	if err != nil { ... }
//	defer reg.Close(ctx)
//
//	loc, _ := location.Disk("/data/store-a")
//	conn, err := reg.ConnectCreate(ctx, loc, nil)
//	if err != nil { ... }
//	txn, err := conn.Begin(ctx, store.TxnWrite)
//	...
//	_ = reg.Release(ctx, loc)
//
// Teardown never fails. Problems while shutting a connection down are
// logged and handed to the handler registered with WithWarningHandler.
package storeconn
