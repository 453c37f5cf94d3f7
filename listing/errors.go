package listing

import (
	"errors"
	"fmt"
)

var (
	// ErrTooDeep is returned when a folder path exceeds the configured depth.
	ErrTooDeep = errors.New("listing too deep")
	// ErrLoopSuspected is returned when discovery exceeds the folder budget,
	// which usually means the server exposes a self-referential tree.
	ErrLoopSuspected = errors.New("listing loop suspected")
	// ErrPageTooLarge is returned when a listing body exceeds the read limit.
	ErrPageTooLarge = errors.New("listing page too large")
)

// FetchError reports a listing page that could not be retrieved.
type FetchError struct {
	URL        string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// GuardError reports discovery stopped by the depth or folder guard.
type GuardError struct {
	Path string
	Err  error
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%v at %q", e.Err, e.Path)
}

func (e *GuardError) Unwrap() error { return e.Err }
