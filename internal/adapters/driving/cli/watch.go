package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docmind/internal/adapters/driving/watcher"
	"github.com/custodia-labs/docmind/internal/core/services"
)

var watchSchedule string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index in step with the library",
	Long: `Watches the library root for sidecar changes and applies them to the
memory index as they happen. When a rebuild schedule is configured
(index.rebuild_schedule or --schedule), the whole index is also rebuilt
on that cron schedule. Stops on Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "cron expression for periodic rebuilds (overrides index.rebuild_schedule)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	svc, err := loadServices(cmd)
	if err != nil {
		return err
	}

	schedule := watchSchedule
	if schedule == "" && svc.Settings != nil {
		settings, err := svc.Settings.Get()
		if err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}
		schedule = settings.Index.RebuildSchedule
	}

	var scheduler *services.Scheduler
	if schedule != "" {
		scheduler, err = services.NewScheduler(schedule, svc.Index)
		if err != nil {
			return err
		}
	}

	w, err := watcher.New(svc.Sidecars, svc.Index)
	if err != nil {
		return err
	}
	defer w.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	running := 1
	go func() { errCh <- w.Run(ctx) }()
	if scheduler != nil {
		running++
		go func() { errCh <- scheduler.Start(ctx) }()
	}

	cmd.Printf("Watching %s (Ctrl+C to stop)\n", svc.Sidecars.Root())
	if scheduler != nil {
		cmd.Printf("Rebuilding on schedule %q\n", schedule)
	}

	// The first component to return stops the other.
	var runErr error
	for i := 0; i < running; i++ {
		err := <-errCh
		stop()
		if scheduler != nil {
			_ = scheduler.Stop()
		}
		if err != nil && !errors.Is(err, context.Canceled) && runErr == nil {
			runErr = err
		}
	}

	cmd.Println("Stopped watching.")
	return runErr
}
