//go:build !unix

package filelock

import "os"

// lockFile is a stub on non-Unix platforms; only the in-process semaphore
// serializes holders there.
func lockFile(f *os.File) error { return nil }

// unlockFile is a stub counterpart to lockFile on non-Unix platforms.
func unlockFile(f *os.File) error { return nil }

func probeFile(f *os.File) (int, error) { return 0, ErrProbeUnsupported }
