package identity

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	initialBackoff = 5 * time.Millisecond
	maxBackoff     = 50 * time.Millisecond
)

// fileLock is an exclusive OS-level lock on a file. The OS drops it if the process dies.
type fileLock struct {
	path string
	f    *os.File
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path}
}

// acquire polls for the lock with exponential backoff until timeout.
func (l *fileLock) acquire(timeout time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	l.f = f

	deadline := time.Now().Add(timeout)
	backoff := initialBackoff
	for {
		if err := l.tryLock(); err == nil {
			l.writeHolder()
			return nil
		}
		if time.Now().After(deadline) {
			holder := l.readHolder()
			l.f.Close()
			l.f = nil
			return fmt.Errorf("device lock timeout after %v (holder: %s)", timeout, holder)
		}
		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}

func (l *fileLock) release() {
	if l.f == nil {
		return
	}
	l.f.Truncate(0)
	l.unlock()
	l.f.Close()
	l.f = nil
}

func (l *fileLock) writeHolder() {
	l.f.Truncate(0)
	l.f.Seek(0, 0)
	fmt.Fprintf(l.f, "pid:%d\ntime:%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
}

func (l *fileLock) readHolder() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "unknown"
	}
	var pid, ts string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if v, ok := strings.CutPrefix(line, "pid:"); ok {
			pid = v
		} else if v, ok := strings.CutPrefix(line, "time:"); ok {
			ts = v
		}
	}
	if pid == "" {
		return "unknown"
	}
	if n, err := strconv.Atoi(pid); err == nil && !isProcessAlive(n) {
		return fmt.Sprintf("pid:%s since %s (stale)", pid, ts)
	}
	return fmt.Sprintf("pid:%s since %s", pid, ts)
}
