package storeconn

import (
	"errors"
	"fmt"

	"pkt.systems/storeconn/location"
)

var (
	// ErrLockCreate reports that the sentinel lock file could not be created
	// or opened. No connection is registered.
	ErrLockCreate = errors.New("storeconn: cannot create lock file")
	// ErrLockAcquire reports that the process lock could not be taken.
	ErrLockAcquire = errors.New("storeconn: cannot acquire process lock")
	// ErrBuild reports that the store builder failed to open the location.
	ErrBuild = errors.New("storeconn: build failed")
	// ErrStaleConnection is returned by a Connection after it was released.
	ErrStaleConnection = errors.New("storeconn: connection no longer valid")
	// ErrActiveTransactions refuses a non-forced release while transactions
	// are still running against the connection.
	ErrActiveTransactions = errors.New("storeconn: active transactions")
	// ErrRegistryClosed is returned by ConnectCreate after Close.
	ErrRegistryClosed = errors.New("storeconn: registry closed")
)

// LockError describes a failure to create or take the process lock of a
// location.
type LockError struct {
	Path string
	// Op is "create" or "acquire".
	Op  string
	Err error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("storeconn: %s lock %q: %v", e.Op, e.Path, e.Err)
}

func (e *LockError) Unwrap() error { return e.Err }

// Is matches ErrLockCreate or ErrLockAcquire according to Op.
func (e *LockError) Is(target error) bool {
	switch target {
	case ErrLockCreate:
		return e.Op == "create"
	case ErrLockAcquire:
		return e.Op == "acquire"
	}
	return false
}

// BuildError wraps a store builder failure.
type BuildError struct {
	Location location.Location
	Err      error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("storeconn: build %s: %v", e.Location, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Is matches ErrBuild.
func (e *BuildError) Is(target error) bool { return target == ErrBuild }
