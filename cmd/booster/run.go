package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/booster/pkg/api"
	"github.com/cuemby/booster/pkg/log"
	"github.com/cuemby/booster/pkg/manager"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the booster manager and stream notifications",
	Long: `Run starts the manager against the configured backend, keeps the event
stream and reconciliation loop running and prints every notification until
interrupted.

Examples:
  # Run against the built-in simulator
  booster run

  # Run against a remote executor and serve the control API
  booster run --backend-url http://127.0.0.1:8088 --api-addr 127.0.0.1:9100`,
	RunE: runManager,
}

func init() {
	runCmd.Flags().String("api-addr", "", "Listen address for the control API, /metrics and /health")
	runCmd.Flags().Bool("read-only", false, "Reject state-changing API requests")
	rootCmd.AddCommand(runCmd)
}

// startManager builds a backend and manager and starts it. The returned
// function stops both.
func startManager(ctx context.Context) (*manager.Manager, func(), error) {
	b, stopBackend, err := newBackend(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create backend: %w", err)
	}

	mgr, err := manager.NewManager(b, cfg)
	if err != nil {
		stopBackend()
		return nil, nil, fmt.Errorf("failed to create manager: %w", err)
	}
	if err := mgr.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	return mgr, func() {
		_ = mgr.Shutdown()
		stopBackend()
	}, nil
}

func runManager(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("api-addr") {
		cfg.API.Addr, _ = cmd.Flags().GetString("api-addr")
	}
	if cmd.Flags().Changed("read-only") {
		cfg.API.ReadOnly, _ = cmd.Flags().GetBool("read-only")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, shutdown, err := startManager(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	stopAPI := startAPIServer(mgr)
	defer stopAPI()

	view := mgr.View()
	fmt.Printf("✓ Manager started (%s backend, %d boosters)\n", cfg.Backend.Kind, len(view.Items))
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	sub := mgr.Subscribe()
	defer mgr.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			return nil
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			fmt.Printf("%s  %-20s %s\n", ev.Timestamp.Format("15:04:05"), ev.Type, ev.Message)
		}
	}
}

// startAPIServer serves the control API when an address is configured. The
// returned function shuts it down.
func startAPIServer(mgr *manager.Manager) func() {
	if cfg.API.Addr == "" {
		return func() {}
	}

	gin.SetMode(gin.ReleaseMode)
	srv := api.NewServer(mgr,
		api.WithReadOnly(cfg.API.ReadOnly),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
	)
	go func() {
		if err := srv.Start(cfg.API.Addr); err != nil {
			log.Logger.Error().Err(err).Str("addr", cfg.API.Addr).Msg("API server failed")
		}
	}()
	fmt.Printf("✓ API listening on http://%s\n", cfg.API.Addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	}
}
