// Package notify turns the due-date classification into in-app banners and
// deduplicated desktop alerts, gated by persisted user preferences.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"billtracker/internal/log"
	"billtracker/internal/prefs"
)

const (
	SettingsKey = "billTracker_notificationSettings"

	MaxDaysBeforeDue = 365
)

var ErrInvalidLookahead = fmt.Errorf("days before due must be between 0 and %d", MaxDaysBeforeDue)

// Settings is the persisted reminder preference record.
type Settings struct {
	Enabled                  bool `json:"enabled"`
	DaysBeforeDue            int  `json:"daysBeforeDue"`
	ShowBrowserNotifications bool `json:"showBrowserNotifications"`
	ShowDashboardAlerts      bool `json:"showDashboardAlerts"`
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:                  true,
		DaysBeforeDue:            3,
		ShowBrowserNotifications: true,
		ShowDashboardAlerts:      true,
	}
}

func (s Settings) Validate() error {
	if s.DaysBeforeDue < 0 || s.DaysBeforeDue > MaxDaysBeforeDue {
		return ErrInvalidLookahead
	}
	return nil
}

// SettingsStore reads and writes Settings as JSON under SettingsKey.
type SettingsStore struct {
	kv     prefs.KV
	logger *log.Logger
}

func NewSettingsStore(kv prefs.KV, logger *log.Logger) *SettingsStore {
	return &SettingsStore{kv: kv, logger: logger}
}

// Load returns the saved settings. Missing fields keep their defaults; an
// unreadable record is logged and replaced by the defaults.
func (s *SettingsStore) Load(ctx context.Context) (Settings, error) {
	settings := DefaultSettings()
	raw, ok, err := s.kv.Get(ctx, SettingsKey)
	if err != nil {
		return settings, fmt.Errorf("load notification settings: %w", err)
	}
	if !ok {
		return settings, nil
	}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		s.logger.WarnContext(ctx, "Failed to parse notification settings", log.FieldError, err)
		return DefaultSettings(), nil
	}
	if settings.Validate() != nil {
		s.logger.WarnContext(ctx, "Saved notification settings out of range",
			"days_before_due", settings.DaysBeforeDue)
		settings.DaysBeforeDue = DefaultSettings().DaysBeforeDue
	}
	return settings, nil
}

func (s *SettingsStore) Save(ctx context.Context, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, SettingsKey, string(raw)); err != nil {
		return fmt.Errorf("save notification settings: %w", err)
	}
	return nil
}
