package core

import (
	"errors"
	"strings"
)

var (
	ErrNotAuthenticated = errors.New("user not authenticated")
	ErrNotFound         = errors.New("not found")
	// ErrDuplicate is returned by repositories when a uniqueness constraint rejects a write.
	ErrDuplicate = errors.New("duplicate key")
)

// FieldErrors holds one message per validatable bill input. Empty fields are valid.
type FieldErrors struct {
	Name    string `json:"name,omitempty"`
	Amount  string `json:"amount,omitempty"`
	DueDate string `json:"dueDate,omitempty"`
}

func (e *FieldErrors) Empty() bool {
	return e.Name == "" && e.Amount == "" && e.DueDate == ""
}

func (e *FieldErrors) Error() string {
	var parts []string
	for _, msg := range []string{e.Name, e.Amount, e.DueDate} {
		if msg != "" {
			parts = append(parts, msg)
		}
	}
	return "invalid bill: " + strings.Join(parts, "; ")
}

// RemoteError wraps a failure reported by the backing store.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Remote wraps err as a *RemoteError unless it is nil or already carries
// a more specific meaning for callers.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) {
		return err
	}
	return &RemoteError{Op: op, Err: err}
}
