package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docmind/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docmind/internal/adapters/driven/storage/sidecar"
	"github.com/custodia-labs/docmind/internal/core/domain"
	"github.com/custodia-labs/docmind/internal/core/services"
)

const safeSidecar = `{
  "filename": "safe-bo-ren.pdf",
  "category": "Investment_Fundraising",
  "status": "executed",
  "signers": [{"name": "Bo Ren", "date_signed": "2024-03-01"}],
  "primary_parties": [{"name": "Bo Ren", "role": "Investor"}],
  "contract_value": "$25,000",
  "financial_terms": {"investment_amount": "$25,000"},
  "tags": ["SAFE", "seed"],
  "updated_at": "2024-03-02T10:00:00Z"
}`

const einSidecar = `{
  "filename": "ein-letter.pdf",
  "category": "Legal_Compliance",
  "status": "executed",
  "critical_facts": {"ein_number": "85-0989775"},
  "updated_at": "2024-01-10T10:00:00Z"
}`

type testEnv struct {
	root     string
	store    *sidecar.Store
	index    *services.MemoryIndexManager
	settings *services.SettingsService
}

// setupTestServices installs services backed by a temporary library.
func setupTestServices(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	writeSidecar(t, root, "Investment_Fundraising/safe-bo-ren.pdf.metadata.json", safeSidecar)
	writeSidecar(t, root, "Legal_Compliance/ein-letter.pdf.metadata.json", einSidecar)

	store := sidecar.New(root, "")
	settings := services.NewSettingsService(memory.NewConfigStore())
	index := services.NewMemoryIndexManager(store, nil, domain.DefaultRuleSet())
	require.NoError(t, index.RebuildAll(context.Background()))
	cache := services.NewResultCache(16, index.SnapshotVersion)
	search := services.NewSearchService(index, store, domain.DefaultRuleSet(), cache)

	setServices(t, &Services{Search: search, Index: index, Settings: settings, Sidecars: store})
	return &testEnv{root: root, store: store, index: index, settings: settings}
}

func setServices(t *testing.T, svc *Services) {
	t.Helper()
	oldServices, oldBuilt, oldBuilder := activeServices, built, builder
	activeServices, built, builder = svc, false, nil
	t.Cleanup(func() { activeServices, built, builder = oldServices, oldBuilt, oldBuilder })
}

func writeSidecar(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// execute runs the root command with args and returns combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	}()

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// resetFlags restores every flag to its default so tests do not leak state.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "docmind", rootCmd.Use)
}

func TestRootCmd_HasGlobalFlags(t *testing.T) {
	for _, name := range []string{"verbose", "config-dir", "root", "ephemeral"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "v", rootCmd.PersistentFlags().Lookup("verbose").Shorthand)
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"search", "index", "watch", "settings", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestLoadServices_NotConfigured(t *testing.T) {
	setServices(t, nil)

	_, err := execute(t, "index", "status")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "services not configured")
}

func TestLoadServices_UsesBuilderWithGlobalOptions(t *testing.T) {
	env := setupTestServices(t)
	prepared := activeServices
	activeServices = nil

	var got Options
	calls := 0
	closed := 0
	builder = func(_ context.Context, opts Options) (*Services, error) {
		calls++
		got = opts
		svc := *prepared
		svc.Close = func() error { closed++; return nil }
		return &svc, nil
	}

	out, err := execute(t, "--root", env.root, "--config-dir", "/tmp/docmind-test", "--ephemeral", "index", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Records:   2")
	assert.Equal(t, 1, calls)
	assert.Equal(t, Options{ConfigDir: "/tmp/docmind-test", Root: env.root, Ephemeral: true}, got)

	closeServices()
	assert.Equal(t, 1, closed)
	assert.Nil(t, activeServices)
}

func TestLoadServices_BuilderError(t *testing.T) {
	setServices(t, nil)
	builder = func(context.Context, Options) (*Services, error) {
		return nil, errors.New("no library root configured")
	}

	_, err := execute(t, "search", "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no library root configured")
}
