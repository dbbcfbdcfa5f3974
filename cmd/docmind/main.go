// Command docmind searches an organised document library.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/custodia-labs/docmind/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docmind/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docmind/internal/adapters/driven/storage/sidecar"
	"github.com/custodia-labs/docmind/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/docmind/internal/adapters/driving/cli"
	"github.com/custodia-labs/docmind/internal/core/ports/driven"
	"github.com/custodia-labs/docmind/internal/core/services"
	"github.com/custodia-labs/docmind/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetBuilder(build)
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}

// build wires the services for one command invocation.
func build(ctx context.Context, opts cli.Options) (*cli.Services, error) {
	var configStore driven.ConfigStore
	if opts.Ephemeral {
		configStore = memory.NewConfigStore()
	} else {
		fileStore, err := file.NewConfigStore(opts.ConfigDir)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		configStore = fileStore
	}

	settingsService := services.NewSettingsService(configStore)
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("reading settings from %s: %w", configStore.Path(), err)
	}

	root := settings.Library.Root
	if opts.Root != "" {
		root = opts.Root
	}
	if root == "" {
		return nil, errors.New("no library root configured: pass --root or run 'docmind settings set library.root <dir>'")
	}

	sidecars := sidecar.New(root, settings.Library.SidecarSuffix)

	var factStore driven.FactStore
	if settings.Index.Persist && !opts.Ephemeral {
		store, err := sqlite.NewStore(settings.Index.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening fact store: %w", err)
		}
		logger.Debug("Fact store at %s", store.Path())
		factStore = store
	}

	rules := settings.RuleSet()
	index := services.NewMemoryIndexManager(sidecars, factStore, rules)
	if err := index.Load(ctx); err != nil {
		// Search degrades to empty results; 'index rebuild' recovers.
		logger.Warn("Memory index load: %v", err)
	}

	cache := services.NewResultCache(settings.Cache.MaxEntries, index.SnapshotVersion)
	search := services.NewSearchService(index, sidecars, rules, cache)
	search.SetDefaults(settings.Search)

	return &cli.Services{
		Search:   search,
		Index:    index,
		Settings: settingsService,
		Sidecars: sidecars,
		Close: func() error {
			if factStore == nil {
				return nil
			}
			return factStore.Close()
		},
	}, nil
}
