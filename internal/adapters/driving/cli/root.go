// Package cli implements the docmind command tree.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docmind/internal/adapters/driving/watcher"
	"github.com/custodia-labs/docmind/internal/core/ports/driving"
	"github.com/custodia-labs/docmind/internal/logger"
)

// version is set at build time with -ldflags.
var version = "dev"

// Options holds the global flags that decide how services are built.
type Options struct {
	// ConfigDir holds config.toml. Empty uses ~/.docmind.
	ConfigDir string

	// Root overrides library.root from the config file.
	Root string

	// Ephemeral keeps config and the memory index in memory only.
	Ephemeral bool

	Verbose bool
}

// Services bundles the collaborators used by the commands.
type Services struct {
	Search   driving.SearchService
	Index    driving.MemoryIndex
	Settings driving.SettingsService
	Sidecars watcher.Sidecars

	// Close releases resources. May be nil.
	Close func() error
}

// Builder constructs services from the global options.
type Builder func(ctx context.Context, opts Options) (*Services, error)

var (
	globalOpts     Options
	builder        Builder
	activeServices *Services

	// built is set when services came from builder and must be closed.
	built bool
)

var rootCmd = &cobra.Command{
	Use:   "docmind",
	Short: "Search organised documents and the facts extracted from them",
	Long: `docmind answers questions about an organised document library.

Metadata sidecars written next to each document are aggregated into a
memory index of people, company, financial and legal facts. Searches
consult the memory index and the documents themselves and synthesise a
short cited answer.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(globalOpts.Verbose)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&globalOpts.Verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&globalOpts.ConfigDir, "config-dir", "", "directory holding config.toml (default ~/.docmind)")
	flags.StringVar(&globalOpts.Root, "root", "", "library root directory (overrides library.root)")
	flags.BoolVar(&globalOpts.Ephemeral, "ephemeral", false, "keep config and index in memory only")
}

// SetBuilder registers the function that constructs services on first use.
func SetBuilder(b Builder) {
	builder = b
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command and releases any services it built.
func Execute(ctx context.Context) error {
	defer closeServices()
	return rootCmd.ExecuteContext(ctx)
}

// loadServices returns the configured services, building them on first use.
func loadServices(cmd *cobra.Command) (*Services, error) {
	if activeServices != nil {
		return activeServices, nil
	}
	if builder == nil {
		return nil, errors.New("services not configured")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := builder(ctx, globalOpts)
	if err != nil {
		return nil, err
	}
	activeServices = svc
	built = true
	return svc, nil
}

func closeServices() {
	if !built || activeServices == nil {
		return
	}
	if activeServices.Close != nil {
		if err := activeServices.Close(); err != nil {
			logger.Warn("Closing services: %v", err)
		}
	}
	activeServices = nil
	built = false
}
