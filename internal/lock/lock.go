// Package lock provides the per-data-directory run lock that keeps two
// pipeline invocations from mutating the same manifest and artifacts.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/vthunder/distill/internal/logging"
)

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("run lock held by another process")

// Info is the lock file's content.
type Info struct {
	PID     int32     `json:"pid"`
	RunID   string    `json:"run_id"`
	Command string    `json:"command"`
	Started time.Time `json:"started"`
}

// HeldError names the holder of a live lock.
type HeldError struct {
	Path   string
	Holder Info
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("%s: %q (pid %d, run %s) running since %s",
		e.Path, e.Holder.Command, e.Holder.PID, e.Holder.RunID, e.Holder.Started.Format(time.RFC3339))
}

func (e *HeldError) Unwrap() error { return ErrLocked }

// Lock is a held run lock.
type Lock struct {
	path string
	info Info
}

// pidAlive is replaced in tests.
var pidAlive = func(pid int32) bool {
	ok, err := process.PidExists(pid)
	return err == nil && ok
}

// Acquire takes the lock at path for command. A lock left behind by a
// process that no longer exists is reclaimed.
func Acquire(path, command string) (*Lock, error) {
	info := Info{
		PID:     int32(os.Getpid()),
		RunID:   uuid.NewString(),
		Command: command,
		Started: time.Now(),
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			_, werr := f.Write(data)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("failed to write lock: %w", errors.Join(werr, cerr))
			}
			return &Lock{path: path, info: info}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create lock: %w", err)
		}

		holder, alive, rerr := Inspect(path)
		if rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			return nil, rerr
		}
		if alive {
			return nil, &HeldError{Path: path, Holder: *holder}
		}
		if holder != nil {
			logging.Warn("lock", "reclaiming stale lock of pid %d (run %s)", holder.PID, holder.RunID)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, path)
}

// Inspect reads the lock file and reports whether its holder is alive.
// An unreadable lock file counts as stale.
func Inspect(path string) (*Info, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, false, nil
	}
	return &info, info.PID > 0 && pidAlive(info.PID), nil
}

// RunID identifies the run holding the lock.
func (l *Lock) RunID() string { return l.info.RunID }

// Release removes the lock if it is still ours.
func (l *Lock) Release() error {
	holder, _, err := Inspect(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if holder == nil || holder.RunID != l.info.RunID {
		return nil
	}
	return os.Remove(l.path)
}
