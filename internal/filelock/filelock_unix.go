//go:build unix

package filelock

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile obtains an exclusive advisory lock on the provided file handle,
// waiting for any other process to let go.
func lockFile(f *os.File) error {
	flock := unix.Flock_t{Type: unix.F_WRLCK, Whence: int16(0)}
	for {
		err := unix.FcntlFlock(f.Fd(), unix.F_SETLKW, &flock)
		if err != unix.EINTR {
			return err
		}
	}
}

// unlockFile releases any advisory lock held on the provided file handle.
func unlockFile(f *os.File) error {
	flock := unix.Flock_t{Type: unix.F_UNLCK, Whence: int16(0)}
	return unix.FcntlFlock(f.Fd(), unix.F_SETLK, &flock)
}

// probeFile returns the pid of another process holding a conflicting lock,
// or 0 when the file could be locked right now.
func probeFile(f *os.File) (int, error) {
	flock := unix.Flock_t{Type: unix.F_WRLCK, Whence: int16(0)}
	if err := unix.FcntlFlock(f.Fd(), unix.F_GETLK, &flock); err != nil {
		return 0, err
	}
	if flock.Type == unix.F_UNLCK {
		return 0, nil
	}
	return int(flock.Pid), nil
}
