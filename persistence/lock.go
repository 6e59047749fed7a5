package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/hkdb/agentcore/errs"
)

// AcquireProcessLock implements SPEC_FULL.md's single-instance guard,
// adapted from otui's storage/sessions.go LockOTUIInstance/
// CheckOTUIInstanceLock: a PID file at <data_dir>/agentcore.lock prevents
// two chat/a2a-server processes from racing on the same persistence
// directory. Returns an error naming the PID already holding the lock.
func (s *Store) AcquireProcessLock() error {
	locked, pid, err := s.CheckProcessLock()
	if err != nil {
		return err
	}
	if locked {
		return errs.Persistence("lock", fmt.Errorf("another instance is already running (pid %d)", pid))
	}
	return os.WriteFile(s.lockPath(), []byte(fmt.Sprintf("%d", os.Getpid())), 0600)
}

func (s *Store) ReleaseProcessLock() error {
	err := os.Remove(s.lockPath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// CheckProcessLock reports whether a live process already holds the
// lock. A stale lock file (process no longer running) is cleaned up and
// reported as unlocked.
func (s *Store) CheckProcessLock() (locked bool, pid int, err error) {
	data, err := os.ReadFile(s.lockPath())
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, errs.Persistence("check lock", err)
	}

	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		_ = os.Remove(s.lockPath())
		return false, 0, nil
	}

	// FindProcess always succeeds on Unix; a zero signal reports whether
	// the PID is still alive there.
	proc, err := os.FindProcess(pid)
	if err != nil || errors.Is(proc.Signal(syscall.Signal(0)), os.ErrProcessDone) {
		_ = os.Remove(s.lockPath())
		return false, 0, nil
	}
	return true, pid, nil
}

func (s *Store) lockPath() string {
	return filepath.Join(s.dbDir, "agentcore.lock")
}
