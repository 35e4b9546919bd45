package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// DaemonLock is the lock file written by a running daemon. Only one daemon
// may own a data directory, since the scheduler and the control socket both
// assume they are the only writer of the seen-marker set.
type DaemonLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
	HTTPAddr  string    `json:"http_addr,omitempty"`
}

const lockFileName = ".daemon-lock"

// LockPath returns the lock file location for a data directory
func LockPath(dataDir string) string {
	return filepath.Join(dataDir, lockFileName)
}

// AcquireDaemonLock creates the lock file in dataDir. A lock left behind by a
// dead process is taken over. Returns the lock file path for cleanup on
// shutdown.
func AcquireDaemonLock(dataDir, version, httpAddr string) (lockPath string, err error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	lockPath = LockPath(dataDir)

	if existing, err := ReadDaemonLock(dataDir); err == nil && existing != nil {
		if isProcessAlive(existing.PID, existing.Hostname) {
			return "", fmt.Errorf("another stepview daemon is already running (PID %d on %s, started %s)",
				existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
		}
		// Stale lock - will overwrite
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := DaemonLock{
		Holder:    "stepview-daemon",
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		Version:   version,
		HTTPAddr:  httpAddr,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create daemon lock: %w", err)
	}

	return lockPath, nil
}

// ReadDaemonLock returns the current lock, or nil when there is none
func ReadDaemonLock(dataDir string) (*DaemonLock, error) {
	data, err := os.ReadFile(LockPath(dataDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read daemon lock: %w", err)
	}
	var lock DaemonLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse daemon lock: %w", err)
	}
	return &lock, nil
}

// DaemonRunning reports whether a live daemon holds the lock for dataDir
func DaemonRunning(dataDir string) (*DaemonLock, bool) {
	lock, err := ReadDaemonLock(dataDir)
	if err != nil || lock == nil {
		return nil, false
	}
	return lock, isProcessAlive(lock.PID, lock.Hostname)
}

// ReleaseDaemonLock removes the lock file.
// Should be called on daemon shutdown (use defer).
func ReleaseDaemonLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove daemon lock: %w", err)
	}

	return nil
}

// isProcessAlive checks if a process with the given PID exists on the given hostname.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		// Can't check hostname, assume remote/alive
		return true
	}

	if !strings.EqualFold(hostname, currentHost) {
		// Remote host - can't check, assume alive
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	// EPERM: process exists but belongs to someone else
	if errors.Is(err, syscall.EPERM) {
		return true
	}

	return false
}
