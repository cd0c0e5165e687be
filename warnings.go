package storeconn

import (
	"fmt"

	"pkt.systems/storeconn/location"
)

// WarningKind classifies a non-fatal teardown problem.
type WarningKind uint8

const (
	// WarnLockNotHeld: the lock being released was not held by this process.
	WarnLockNotHeld WarningKind = iota + 1
	// WarnTxnShutdown: the transaction manager failed to shut down cleanly.
	WarnTxnShutdown
	// WarnStoreShutdown: the store failed to shut down cleanly.
	WarnStoreShutdown
	// WarnLockRelease: unlocking or discarding the lock failed.
	WarnLockRelease
)

func (k WarningKind) String() string {
	switch k {
	case WarnLockNotHeld:
		return "lock_not_held"
	case WarnTxnShutdown:
		return "txn_shutdown"
	case WarnStoreShutdown:
		return "store_shutdown"
	case WarnLockRelease:
		return "lock_release"
	default:
		return "unknown"
	}
}

// Warning is reported, never returned: teardown always runs to completion.
type Warning struct {
	Kind         WarningKind
	Location     location.Location
	ConnectionID string
	Err          error
}

func (w Warning) String() string {
	if w.Err != nil {
		return fmt.Sprintf("%s: %s: %v", w.Kind, w.Location, w.Err)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Location)
}

// WarningHandler receives teardown warnings. It is called with the registry
// mutex held and must not call back into the registry.
type WarningHandler func(Warning)
