// Package lockfile keeps two LeadPipe processes from sharing a state directory.
//
// The lock is a flock on a file inside the directory, so the kernel drops it
// when the holding process exits, however it exits.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory.
const LockFileName = "leadpipe.lock"

// ErrLocked reports that another process holds the lock.
var ErrLocked = errors.New("state directory is locked by another LeadPipe instance")

// Info is what the holder writes into the lock file.
type Info struct {
	PID     int
	Started time.Time
}

func (i Info) String() string {
	return fmt.Sprintf("pid=%d\nstarted=%s\n", i.PID, i.Started.UTC().Format(time.RFC3339))
}

// ParseInfo reads lock file content. Unknown lines are ignored.
func ParseInfo(content string) Info {
	var info Info
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			info.PID, _ = strconv.Atoi(value)
		case "started":
			info.Started, _ = time.Parse(time.RFC3339, value)
		}
	}
	return info
}

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
	info Info
}

// AcquireLock takes the lock on stateDir, creating the directory if needed.
// It fails immediately with a *LockError when another process holds it.
func AcquireLock(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("lockfile.AcquireLock", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// O_TRUNC is deferred until the lock is ours so a failed attempt keeps
	// the holder's info readable.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := readHolder(lockPath)
		lerr := &LockError{LockPath: lockPath, Holder: holder, Running: processRunning(holder.PID), Cause: err}
		slog.Error("lockfile.AcquireLock: state directory in use", "lock_path", lockPath, "holder_pid", lerr.Holder.PID)
		return nil, lerr
	}

	info := Info{PID: os.Getpid(), Started: time.Now()}
	if err := writeInfo(file, info); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("lockfile.AcquireLock: state directory locked", "lock_path", lockPath, "pid", info.PID)
	return &Lock{file: file, path: lockPath, info: info}, nil
}

func writeInfo(file *os.File, info Info) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(info.String()), 0); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("lockfile: failed to sync lock file", "error", err)
	}
	return nil
}

// Info returns what this process wrote into the lock file.
func (l *Lock) Info() Info { return l.info }

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock and removes the lock file. Calling it again is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	var errs []error
	// Remove before unlocking so no other process can lock a file that is
	// about to vanish.
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove: %w", err))
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	l.file = nil
	slog.Info("lockfile.Release: state directory unlocked", "lock_path", l.path)
	return errors.Join(errs...)
}

// LockError describes the process that holds the lock.
type LockError struct {
	LockPath string
	Holder   Info
	// Running is false when the holder's pid no longer exists.
	Running bool
	Cause   error
}

func (e *LockError) Error() string {
	var b strings.Builder
	b.WriteString("another LeadPipe instance is using this state directory (lock file ")
	b.WriteString(e.LockPath)
	b.WriteString(")")
	if e.Holder.PID > 0 {
		state := "running"
		if !e.Running {
			state = "not running"
		}
		fmt.Fprintf(&b, "; holder pid %d (%s)", e.Holder.PID, state)
		if !e.Holder.Started.IsZero() {
			fmt.Fprintf(&b, " started %s", e.Holder.Started.Format(time.RFC3339))
		}
	}
	return b.String()
}

// Is lets errors.Is(err, ErrLocked) match.
func (e *LockError) Is(target error) bool { return target == ErrLocked }

func (e *LockError) Unwrap() error { return e.Cause }

func readHolder(lockPath string) Info {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return Info{}
	}
	return ParseInfo(string(data))
}

// processRunning probes pid with signal 0.
func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
