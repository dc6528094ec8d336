package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	deviceFile     = "device.json"
	deviceLockFile = "device.json.lock"
	lockTimeout    = 2 * time.Second
)

// ErrUnavailable is returned by UnavailableStorage.
var ErrUnavailable = errors.New("device storage unavailable")

// FileStorage keeps values in <dir>/device.json.
type FileStorage struct {
	dir string
}

// NewFileStorage returns storage rooted at dir (usually the config directory).
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

// Path returns the backing file path.
func (s *FileStorage) Path() string {
	return filepath.Join(s.dir, deviceFile)
}

// Get reads one value. A missing file is not an error.
func (s *FileStorage) Get(key string) (string, bool, error) {
	values, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set writes one value, preserving the others. The read-modify-write runs under an
// exclusive file lock so concurrent processes do not lose each other's keys.
func (s *FileStorage) Set(key, value string) error {
	return s.withLock(func() error {
		values, err := s.read()
		if err != nil {
			return err
		}
		values[key] = value
		return s.write(values)
	})
}

// GetOrSet stores value under key unless the key already holds a non-empty value, and
// returns whichever value the file ends up with. The check and the write happen under the
// file lock, so when two processes race to create a key both see the winner's value.
func (s *FileStorage) GetOrSet(key, value string) (string, error) {
	var out string
	err := s.withLock(func() error {
		values, err := s.read()
		if err != nil {
			return err
		}
		if existing := values[key]; existing != "" {
			out = existing
			return nil
		}
		values[key] = value
		if err := s.write(values); err != nil {
			return err
		}
		out = value
		return nil
	})
	return out, err
}

func (s *FileStorage) read() (map[string]string, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read device file: %w", err)
	}
	values := map[string]string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse device file: %w", err)
	}
	return values, nil
}

// write saves values atomically (temp file + rename).
func (s *FileStorage) write(values map[string]string) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create device dir: %w", err)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "device-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.Path())
}

func (s *FileStorage) withLock(fn func() error) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create device dir: %w", err)
	}
	l := newFileLock(filepath.Join(s.dir, deviceLockFile))
	if err := l.acquire(lockTimeout); err != nil {
		return err
	}
	defer l.release()
	return fn()
}

// MemoryStorage is process-local storage, used in tests and --no-persist mode.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStorage returns empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string]string{}}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// GetOrSet stores value under key unless it is already set, and returns the stored value.
func (m *MemoryStorage) GetOrSet(key, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.values[key]; existing != "" {
		return existing, nil
	}
	m.values[key] = value
	return value, nil
}

// UnavailableStorage fails every call.
type UnavailableStorage struct{}

func (UnavailableStorage) Get(string) (string, bool, error) { return "", false, ErrUnavailable }
func (UnavailableStorage) Set(string, string) error         { return ErrUnavailable }
