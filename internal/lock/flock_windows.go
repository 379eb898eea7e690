//go:build windows

package lock

import (
	"os"
	"syscall"
	"unsafe"
)

var (
	modkernel32    = syscall.NewLazyDLL("kernel32.dll")
	procLockFileEx = modkernel32.NewProc("LockFileEx")
	procUnlockFile = modkernel32.NewProc("UnlockFile")
)

const (
	lockfileExclusiveLock   = 0x0002
	lockfileFailImmediately = 0x0001
)

// tryLock attempts a non-blocking exclusive LockFileEx over the whole file.
func tryLock(f *os.File) (bool, error) {
	var ol syscall.Overlapped
	r1, _, err := procLockFileEx.Call(
		f.Fd(),
		uintptr(lockfileExclusiveLock|lockfileFailImmediately),
		0, 1, 0,
		uintptr(unsafe.Pointer(&ol)),
	)
	if r1 != 0 {
		return true, nil
	}
	if errno, ok := err.(syscall.Errno); ok && errno == 33 { // ERROR_LOCK_VIOLATION
		return false, nil
	}
	return false, err
}

func unlock(f *os.File) error {
	r1, _, err := procUnlockFile.Call(f.Fd(), 0, 0, 1, 0)
	if r1 == 0 {
		return err
	}
	return nil
}
