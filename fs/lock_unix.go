//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package fs

import (
	"os"

	"golang.org/x/sys/unix"
)

// flockExclusive takes an advisory exclusive lock on f's file descriptor for
// the duration of a save, guarding against two vfisk processes pointed at
// the same image path corrupting each other's write, per SPEC_FULL.md §5.
// Grounded on disk/disk_unix.go's build-tagged unix.* escape hatch in the
// teacher repo.
func flockExclusive(f *os.File) (unlock func(), err error) {
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return nil, err
	}
	return func() { _ = unix.Flock(fd, unix.LOCK_UN) }, nil
}
