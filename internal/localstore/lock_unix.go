//go:build unix

package localstore

import (
	"os"
	"syscall"
)

// tryLock takes the flock on local.lock without waiting. A second tally
// process writing the same data dir gets EWOULDBLOCK.
func (l *writeLocker) tryLock() error {
	return syscall.Flock(int(l.lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func (l *writeLocker) unlock() {
	if l.lockFile == nil {
		return
	}
	syscall.Flock(int(l.lockFile.Fd()), syscall.LOCK_UN)
}

// isProcessAlive reports whether the pid recorded in local.lock still runs.
// Signal 0 probes without delivering anything.
func isProcessAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
