package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"cadence/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler and run until SIGINT/SIGTERM",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func runRun(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	return serve(ctx, a, func() {
		// Restore default signal handling: a second Ctrl-C exits at once
		// instead of waiting for in-flight runs.
		stop()
		fmt.Fprintln(os.Stderr, "cadence: shutting down; waiting for running tasks (interrupt again to force)")
	})
}

// lifecycle is the part of *app.App that serve drives.
type lifecycle interface {
	Failed() <-chan struct{}
	Err() error
	Stop(ctx context.Context) error
}

// serve blocks until ctx is done or a background loop of a fails for good,
// then stops a. A failure is returned so the process exits non-zero.
func serve(ctx context.Context, a lifecycle, onShutdown func()) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-a.Failed():
			return fmt.Errorf("background loop failed: %w", a.Err())
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		if onShutdown != nil {
			onShutdown()
		}
		return a.Stop(context.Background())
	})
	return g.Wait()
}
