package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goatrelay/goatrelay/pkg/goatrelay/supervisor"
)

// newRunCmd creates the `goatrelay run` command: the supervisor that
// spawns and respawns `goatrelay serve` workers.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot under the process supervisor",
		Long: `Run the bot supervised: a worker process is spawned and respawned
when an admin requests a restart, with a bounded restart budget. A
health endpoint reports supervisor status.

Examples:
  goatrelay run
  goatrelay run --health-addr :8080`,
		RunE: runSupervised,
	}

	cmd.Flags().String("health-addr", "", "health endpoint address (default :$PORT or :3000)")
	return cmd
}

func runSupervised(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Re-exec this binary as the worker, forwarding config flags.
	self, err := os.Executable()
	if err != nil {
		self = os.Args[0]
	}
	worker := []string{self, "serve"}
	if path, _ := cmd.Root().PersistentFlags().GetString("config"); path != "" {
		worker = append(worker, "--config", path)
	}
	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); verbose {
		worker = append(worker, "--verbose")
	}

	healthAddr, _ := cmd.Flags().GetString("health-addr")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received, stopping supervisor")
		cancel()
	}()

	sup := supervisor.New(supervisor.Config{
		Command:    worker,
		HealthAddr: healthAddr,
	}, logger)

	err = sup.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
