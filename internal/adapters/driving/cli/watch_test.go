package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docmind/internal/core/domain"
)

// startWatch runs "docmind watch" with extra args until the returned cancel is called.
func startWatch(t *testing.T, args ...string) (*bytes.Buffer, context.CancelFunc, <-chan error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"watch"}, args...))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rootCmd.ExecuteContext(ctx) }()

	t.Cleanup(func() {
		cancel()
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})
	return buf, cancel, done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for watch to stop")
		return nil
	}
}

func TestWatchCmd_IngestsNewSidecars(t *testing.T) {
	env := setupTestServices(t)
	_, cancel, done := startWatch(t)

	p := filepath.Join(env.root, "Employment_HR", "offer.pdf.metadata.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))

	// Rewrite until the watch is registered and the record shows up.
	require.Eventually(t, func() bool {
		facts, err := env.index.Query(domain.BucketPeople, func(f *domain.MemoryFact) bool {
			return f.Key == "Ana Li"
		})
		if err == nil && len(facts) == 1 {
			return true
		}
		_ = os.WriteFile(p, []byte(offerSidecar), 0o644)
		return false
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestWatchCmd_WithSchedule(t *testing.T) {
	setupTestServices(t)
	buf, cancel, done := startWatch(t, "--schedule", "@every 1h")

	time.Sleep(100 * time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Contains(t, buf.String(), `Rebuilding on schedule "@every 1h"`)
	assert.Contains(t, buf.String(), "Stopped watching.")
}

func TestWatchCmd_ScheduleFromSettings(t *testing.T) {
	env := setupTestServices(t)
	settings, err := env.settings.Get()
	require.NoError(t, err)
	settings.Index.RebuildSchedule = "0 3 * * *"
	require.NoError(t, env.settings.Save(settings))

	buf, cancel, done := startWatch(t)

	time.Sleep(100 * time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Contains(t, buf.String(), `Rebuilding on schedule "0 3 * * *"`)
}

func TestWatchCmd_InvalidSchedule(t *testing.T) {
	setupTestServices(t)

	_, err := execute(t, "watch", "--schedule", "whenever")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse rebuild schedule")
}

func TestWatchCmd_MissingRoot(t *testing.T) {
	env := setupTestServices(t)
	require.NoError(t, os.RemoveAll(env.root))

	_, err := execute(t, "watch")

	assert.Error(t, err)
}
