package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docmind/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docmind/internal/core/domain"
)

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())

	settings, err := service.Get()
	require.NoError(t, err)

	defaults := domain.DefaultAppSettings()
	assert.Equal(t, defaults.Library, settings.Library)
	assert.Equal(t, defaults.Index, settings.Index)
	assert.Equal(t, defaults.Cache, settings.Cache)
	assert.Equal(t, defaults.Search, settings.Search)
	assert.Empty(t, settings.Synonyms)
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("library.root", "/data/legal")
	_ = store.Set("search.fuzzy_threshold", 0.4)
	_ = store.Set("search.max_results", 5)
	_ = store.Set("search.use_cache", false)
	_ = store.Set("cache.max_entries", 32)
	_ = store.Set("index.persist", false)
	_ = store.Set("index.rebuild_schedule", "0 3 * * *")
	_ = store.Set("synonyms.board", []any{"directors", "governance"})

	settings, err := NewSettingsService(store).Get()
	require.NoError(t, err)

	assert.Equal(t, "/data/legal", settings.Library.Root)
	assert.Equal(t, domain.DefaultSidecarSuffix, settings.Library.SidecarSuffix)
	assert.Equal(t, 0.4, settings.Search.FuzzyThreshold)
	assert.Equal(t, 5, settings.Search.MaxResults)
	assert.False(t, settings.Search.UseCache)
	assert.True(t, settings.Search.ExpandSynonyms)
	assert.Equal(t, 32, settings.Cache.MaxEntries)
	assert.False(t, settings.Index.Persist)
	assert.Equal(t, "0 3 * * *", settings.Index.RebuildSchedule)
	assert.Equal(t, map[string][]string{"board": {"directors", "governance"}}, settings.Synonyms)
}

func TestSettingsService_Get_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		want  error
	}{
		{"threshold", "search.fuzzy_threshold", 1.5, domain.ErrInvalidQueryOptions},
		{"max results", "search.max_results", -1, domain.ErrInvalidQueryOptions},
		{"cache size", "cache.max_entries", -5, domain.ErrInvalidInput},
		{"schedule", "index.rebuild_schedule", "every tuesday", domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewConfigStore()
			_ = store.Set(tt.key, tt.value)

			_, err := NewSettingsService(store).Get()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSettingsService_SaveRoundTrip(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store)

	settings := domain.DefaultAppSettings()
	settings.Library.Root = "/srv/docs"
	settings.Search.FuzzyThreshold = 0.75
	settings.Search.ExpandSynonyms = false
	settings.Index.RebuildSchedule = "*/15 * * * *"
	settings.Synonyms = map[string][]string{"nda": {"confidentiality agreement"}}

	require.NoError(t, service.Save(&settings))

	got, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, settings, *got)
}

func TestSettingsService_SaveRejectsInvalid(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store)

	settings := domain.DefaultAppSettings()
	settings.Search.Scope = "nowhere"
	err := service.Save(&settings)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidQueryOptions))

	_, exists := store.Get("search.fuzzy_threshold")
	assert.False(t, exists)
}

func TestSettingsService_GetDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())
	assert.Equal(t, domain.DefaultAppSettings(), service.GetDefaults())
}
