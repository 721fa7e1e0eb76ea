package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/booster/pkg/backend/memory"
	"github.com/cuemby/booster/pkg/backend/sim"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Serve a simulated executor over HTTP and websocket",
	Long: `Simulate serves the in-memory executor with the demo catalog so the http
backend can be exercised without a real executor.

Examples:
  booster simulate --addr 127.0.0.1:8088
  booster run --backend-url http://127.0.0.1:8088`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().String("addr", "127.0.0.1:8088", "Listen address")
	simulateCmd.Flags().Duration("step-delay", 500*time.Millisecond, "Delay between progress events")
	simulateCmd.Flags().Int("steps", 3, "Progress events per operation")
	simulateCmd.Flags().StringToString("fail", nil, "Boosters that fail while running, as id=message")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	delay, _ := cmd.Flags().GetDuration("step-delay")
	steps, _ := cmd.Flags().GetInt("steps")
	failures, _ := cmd.Flags().GetStringToString("fail")

	b := memory.New(memory.DefaultCatalog(), memory.Options{StepDelay: delay, Steps: steps})
	for id, msg := range failures {
		b.FailApply(id, msg)
	}
	b.Start()
	defer b.Stop()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              addr,
		Handler:           sim.NewServer(b).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	fmt.Printf("✓ Simulated executor listening on http://%s\n", addr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		return fmt.Errorf("simulator server error: %w", err)
	}

	// closing the backend first ends open websocket streams
	b.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
