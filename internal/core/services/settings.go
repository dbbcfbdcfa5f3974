package services

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/custodia-labs/docmind/internal/core/domain"
	"github.com/custodia-labs/docmind/internal/core/ports/driven"
	"github.com/custodia-labs/docmind/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
const (
	keyLibraryRoot     = "library.root"
	keySidecarSuffix   = "library.sidecar_suffix"
	keyFuzzyThreshold  = "search.fuzzy_threshold"
	keyMaxResults      = "search.max_results"
	keyExpandSynonyms  = "search.expand_synonyms"
	keyUseCache        = "search.use_cache"
	keyCacheMaxEntries = "cache.max_entries"
	keyIndexDataDir    = "index.data_dir"
	keyIndexPersist    = "index.persist"
	keyRebuildSchedule = "index.rebuild_schedule"
	synonymsPrefix     = "synonyms."
)

// SettingsService reads and writes application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current application settings, falling back to defaults
// for missing keys.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Library: domain.LibrarySettings{
			Root:          s.configStore.GetString(keyLibraryRoot),
			SidecarSuffix: s.getString(keySidecarSuffix, defaults.Library.SidecarSuffix),
		},
		Index: domain.IndexSettings{
			DataDir:         s.configStore.GetString(keyIndexDataDir),
			Persist:         s.getBool(keyIndexPersist, defaults.Index.Persist),
			RebuildSchedule: s.configStore.GetString(keyRebuildSchedule),
		},
		Cache: domain.CacheSettings{
			MaxEntries: s.getInt(keyCacheMaxEntries, defaults.Cache.MaxEntries),
		},
		Search: domain.SearchOptions{
			ExpandSynonyms: s.getBool(keyExpandSynonyms, defaults.Search.ExpandSynonyms),
			FuzzyThreshold: s.getFloat(keyFuzzyThreshold, defaults.Search.FuzzyThreshold),
			MaxResults:     s.getInt(keyMaxResults, defaults.Search.MaxResults),
			UseCache:       s.getBool(keyUseCache, defaults.Search.UseCache),
			Scope:          domain.ScopeAll,
		},
		Synonyms: make(map[string][]string),
	}

	for _, key := range s.configStore.Keys(synonymsPrefix) {
		token := strings.TrimPrefix(key, synonymsPrefix)
		if values := s.configStore.GetStringSlice(key); len(values) > 0 {
			settings.Synonyms[token] = values
		}
	}

	if err := s.validate(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	if err := s.validate(settings); err != nil {
		return err
	}

	values := []struct {
		key   string
		value any
	}{
		{keyLibraryRoot, settings.Library.Root},
		{keySidecarSuffix, settings.Library.SidecarSuffix},
		{keyIndexDataDir, settings.Index.DataDir},
		{keyIndexPersist, settings.Index.Persist},
		{keyRebuildSchedule, settings.Index.RebuildSchedule},
		{keyCacheMaxEntries, settings.Cache.MaxEntries},
		{keyFuzzyThreshold, settings.Search.FuzzyThreshold},
		{keyMaxResults, settings.Search.MaxResults},
		{keyExpandSynonyms, settings.Search.ExpandSynonyms},
		{keyUseCache, settings.Search.UseCache},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}
	for token, syns := range settings.Synonyms {
		if err := s.configStore.Set(synonymsPrefix+token, syns); err != nil {
			return fmt.Errorf("save synonyms for %s: %w", token, err)
		}
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

func (s *SettingsService) validate(settings *domain.AppSettings) error {
	if err := settings.Search.Validate(); err != nil {
		return fmt.Errorf("search settings: %w", err)
	}
	if settings.Cache.MaxEntries < 0 {
		return fmt.Errorf("%w: cache.max_entries must not be negative", domain.ErrInvalidInput)
	}
	if settings.Index.RebuildSchedule != "" {
		if _, err := cron.ParseStandard(settings.Index.RebuildSchedule); err != nil {
			return fmt.Errorf("%w: index.rebuild_schedule: %v", domain.ErrInvalidInput, err)
		}
	}
	return nil
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat64(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}
