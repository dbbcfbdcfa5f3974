package driving

import "github.com/custodia-labs/docmind/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get returns the current settings, with defaults for anything unset.
	Get() (*domain.AppSettings, error)

	// Save validates and persists settings.
	Save(settings *domain.AppSettings) error

	// GetDefaults returns the built-in defaults.
	GetDefaults() domain.AppSettings
}
