package sync

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConflict matches every *ConflictError.
	ErrConflict = errors.New("remote document changed by another device")
	// ErrNotHydrated is reported when a push is attempted before Init succeeded.
	ErrNotHydrated = errors.New("state not hydrated")
)

// ConflictError describes a push blocked because another device wrote after our last pull.
type ConflictError struct {
	Baseline time.Time
	RemoteAt time.Time
	RemoteBy string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: remote written by %s at %s, last pulled %s",
		ErrConflict, e.RemoteBy, e.RemoteAt.Format(time.RFC3339Nano), e.Baseline.Format(time.RFC3339Nano))
}

// Is lets errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// PushStatus is the outcome of one push attempt.
type PushStatus string

const (
	PushNone     PushStatus = ""
	PushOK       PushStatus = "ok"
	PushConflict PushStatus = "conflict"
	PushFailed   PushStatus = "failed"
	PushSkipped  PushStatus = "skipped"
)

// PushResult reports a push attempt. Stamp is the syncMeta timestamp written on success.
type PushResult struct {
	Status PushStatus
	At     time.Time
	Stamp  time.Time
	Err    error
}

// Status is a point-in-time view of the engine.
type Status struct {
	Principal string
	ClientID  string
	Hydrated  bool
	Baseline  *time.Time
	Dirty     bool
	Pending   bool
	Last      PushResult
}

// Config tunes the engine.
type Config struct {
	// Debounce is the quiet period after the last mutation before a push fires.
	Debounce time.Duration
	// RefreshInterval enables periodic re-pulls in Run while there are no unpushed changes.
	// Zero disables them.
	RefreshInterval time.Duration
	// PushTimeout bounds timer-triggered pushes. Zero means no timeout.
	PushTimeout time.Duration
}

// DefaultDebounce is the push debounce used when Config.Debounce is zero.
const DefaultDebounce = 800 * time.Millisecond
