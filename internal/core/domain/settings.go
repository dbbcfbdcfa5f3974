package domain

// Default settings values.
const (
	DefaultSidecarSuffix   = ".metadata.json"
	DefaultCacheMaxEntries = 256
)

// LibrarySettings locates the organised folder tree.
type LibrarySettings struct {
	// Root is the directory holding the category folders.
	Root string

	// SidecarSuffix is appended to a document's path to name its metadata file.
	SidecarSuffix string
}

// IndexSettings controls memory index persistence and refresh.
type IndexSettings struct {
	// DataDir holds the index database. Empty uses ~/.docmind/data.
	DataDir string

	// Persist stores the memory index in SQLite between runs.
	Persist bool

	// RebuildSchedule is a five-field cron expression for periodic
	// RebuildAll while watching. Empty disables it.
	RebuildSchedule string
}

// CacheSettings controls the result cache.
type CacheSettings struct {
	// MaxEntries caps the number of cached results. Oldest are evicted first.
	MaxEntries int
}

// AppSettings holds all application settings.
type AppSettings struct {
	Library LibrarySettings
	Index   IndexSettings
	Cache   CacheSettings

	// Search holds the default options for calls that pass none.
	Search SearchOptions

	// Synonyms extends the built-in synonym table.
	Synonyms map[string][]string
}

// DefaultAppSettings returns settings with sensible defaults.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Library: LibrarySettings{
			SidecarSuffix: DefaultSidecarSuffix,
		},
		Index: IndexSettings{
			Persist: true,
		},
		Cache: CacheSettings{
			MaxEntries: DefaultCacheMaxEntries,
		},
		Search:   DefaultSearchOptions(),
		Synonyms: map[string][]string{},
	}
}

// RuleSet returns the built-in rule set extended with the configured synonyms.
func (s AppSettings) RuleSet() RuleSet {
	return DefaultRuleSet().WithSynonyms(s.Synonyms)
}
