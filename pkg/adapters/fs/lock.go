package fs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ErrLockTimeout is returned when the store lock cannot be acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for store lock")

// fileLock is a cross-process lock based on exclusive file creation.
//
// The lock file holds the holder's pid and a unique token. A lock left behind
// by a crashed process is broken once its holder is gone or the file is older
// than stale.
type fileLock struct {
	path    string
	timeout time.Duration
	stale   time.Duration
}

// acquire blocks until the lock file is created or the timeout expires.
func (l *fileLock) acquire() (func(), error) {
	deadline := time.Now().Add(l.timeout)
	token := []byte(fmt.Sprintf("%d %d\n", os.Getpid(), time.Now().UnixNano()))

	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0666)
		if err == nil {
			_, werr := f.Write(token)
			f.Close()
			if werr != nil {
				os.Remove(l.path)
				return nil, fmt.Errorf("failed to write lock: %w", werr)
			}
			return func() { l.release(token) }, nil
		}

		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}

		if l.isStale() {
			os.Remove(l.path)
			continue
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, l.path)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// release removes the lock file unless another process has since broken and
// retaken it.
func (l *fileLock) release(token []byte) {
	data, err := os.ReadFile(l.path)
	if err != nil || !bytes.Equal(data, token) {
		return
	}
	os.Remove(l.path)
}

func (l *fileLock) isStale() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		// Gone already; the next create attempt decides.
		return false
	}
	if l.stale > 0 && time.Since(info.ModTime()) > l.stale {
		return true
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return false
	}
	pid, ok := lockHolder(data)
	return ok && !processAlive(pid)
}

// lockHolder parses the pid written by acquire.
func lockHolder(data []byte) (int, bool) {
	fields := bytes.Fields(data)
	if len(fields) == 0 {
		return 0, false
	}
	pid, err := strconv.Atoi(string(fields[0]))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
