// Package lock provides the single-instance-per-project guard: an
// exclusive, non-blocking flock on the project's lock file, so two
// `devrig up` invocations against the same manifest can't race each
// other, and `devrig reset`/`delete` can tell a live orchestrator from
// a stale state file.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

const fileName = "devrig.lock"

// Lock is a held, exclusive flock on one project's lock file. The
// caller owns its lifetime and must call Release when the orchestrator
// shuts down.
type Lock struct {
	file *os.File
	path string
}

// PathFor returns the lock file path for a project's state directory.
func PathFor(stateDir string) string {
	return filepath.Join(stateDir, fileName)
}

// Acquire takes an exclusive, non-blocking lock on the file at path,
// creating it and its parent directory if needed, and stamps it with
// the current process's pid. Returns ErrHeld if another live process
// already holds it.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder, _ := ReadHolder(path)
		file.Close()
		return nil, &ErrHeld{Path: path, HolderPID: holder}
	}

	_ = file.Truncate(0)
	if _, err := fmt.Fprintf(file, "%d", os.Getpid()); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing pid to lock file: %w", err)
	}

	return &Lock{file: file, path: path}, nil
}

// Release unlocks and removes the lock file. Safe to call on a nil
// receiver so deferred cleanup in error paths doesn't need a nil check.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	err := l.file.Close()
	_ = os.Remove(l.path)
	return err
}

// ReadHolder returns the pid recorded in the lock file at path, or 0 if
// it can't be read or parsed.
func ReadHolder(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(raw), "%d", &pid); err != nil {
		return 0, err
	}
	return pid, nil
}

// ErrHeld reports that a project's lock is held by another live
// process, identified by the pid it stamped into the lock file.
type ErrHeld struct {
	Path      string
	HolderPID int
}

func (e *ErrHeld) Error() string {
	if e.HolderPID != 0 {
		return fmt.Sprintf("another devrig instance (pid %d) is already running against this project", e.HolderPID)
	}
	return "another devrig instance is already running against this project"
}

// IsLive reports whether pid names a currently-running process, by
// sending it signal 0 — the standard liveness probe that doesn't
// actually deliver a signal.
func IsLive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
