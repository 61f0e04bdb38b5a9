package notify

import (
	"context"
	"errors"
	"fmt"

	"billtracker/internal/prefs"
)

const PermissionKey = "billTracker_notificationPermission"

// Permission is the desktop notification permission state.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

var (
	ErrPermissionDenied  = errors.New("desktop notifications are blocked; change the permission outside the app to enable them")
	ErrInvalidPermission = errors.New("permission must be default, granted or denied")
)

func ParsePermission(s string) (Permission, error) {
	switch p := Permission(s); p {
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPermission, s)
	}
}

// Prompter asks the user for desktop notification permission.
type Prompter interface {
	RequestPermission(ctx context.Context) (Permission, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context) (Permission, error)

func (f PrompterFunc) RequestPermission(ctx context.Context) (Permission, error) {
	return f(ctx)
}

// PermissionStore persists the permission under PermissionKey.
type PermissionStore struct {
	kv prefs.KV
}

func NewPermissionStore(kv prefs.KV) *PermissionStore {
	return &PermissionStore{kv: kv}
}

// Get returns the stored permission, PermissionDefault when never set.
func (s *PermissionStore) Get(ctx context.Context) (Permission, error) {
	raw, ok, err := s.kv.Get(ctx, PermissionKey)
	if err != nil {
		return PermissionDefault, fmt.Errorf("load permission: %w", err)
	}
	if !ok {
		return PermissionDefault, nil
	}
	p, err := ParsePermission(raw)
	if err != nil {
		return PermissionDefault, nil
	}
	return p, nil
}

func (s *PermissionStore) Set(ctx context.Context, p Permission) error {
	if _, err := ParsePermission(string(p)); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, PermissionKey, string(p)); err != nil {
		return fmt.Errorf("save permission: %w", err)
	}
	return nil
}
