package hierarchy

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a key lookup matched no issues.
	ErrNotFound = errors.New("issue not found")
	// ErrAmbiguousKey means a key lookup matched more than one issue.
	ErrAmbiguousKey = errors.New("more than one issue matches key")
	// ErrSessionFailed is returned by every call on a Session after a
	// resolution error left it with partially linked nodes.
	ErrSessionFailed = errors.New("session failed")
)

// LookupError reports a failed key lookup.
type LookupError struct {
	Key     string
	Matches int
	Err     error
}

func (e *LookupError) Error() string {
	if errors.Is(e.Err, ErrAmbiguousKey) {
		return fmt.Sprintf("lookup %s: %v (%d matches)", e.Key, e.Err, e.Matches)
	}
	return fmt.Sprintf("lookup %s: %v", e.Key, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
