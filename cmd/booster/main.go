package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/booster/pkg/backend"
	"github.com/cuemby/booster/pkg/backend/memory"
	"github.com/cuemby/booster/pkg/config"
	"github.com/cuemby/booster/pkg/log"
	"github.com/cuemby/booster/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// cfg is loaded once per invocation by the root PersistentPreRunE
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "booster",
	Short: "Booster - stage, execute and track system tweaks",
	Long: `Booster stages apply/revert operations against a catalog of system
tweaks, submits them as one batch to an executor backend and tracks their
progress from pushed events, correcting drift by polling the backend queue.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Booster version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to YAML config file")
	flags.String("backend-url", "", "Executor URL; selects the http backend")
	flags.String("data-dir", "", "Directory for the history journal")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Log as JSON")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("backend-url") {
		loaded.Backend.Kind = "http"
		loaded.Backend.URL, _ = cmd.Flags().GetString("backend-url")
	}
	if cmd.Flags().Changed("data-dir") {
		loaded.DataDir, _ = cmd.Flags().GetString("data-dir")
	}
	if cmd.Flags().Changed("log-level") {
		loaded.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-json") {
		loaded.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(loaded.Log.Level),
		JSONOutput: loaded.Log.JSON,
		Output:     os.Stderr,
	})
	metrics.SetVersion(Version)
	cfg = loaded
	return nil
}

// newBackend builds the configured executor binding. The returned stop
// function releases it.
func newBackend(c *config.Config) (backend.Backend, func(), error) {
	switch c.Backend.Kind {
	case "http":
		client, err := backend.NewHTTPClient(c.Backend.URL, backend.WithTimeout(c.Backend.Timeout))
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	case "memory":
		b := memory.New(memory.DefaultCatalog(), memory.Options{
			StepDelay: 300 * time.Millisecond,
			Steps:     3,
		})
		b.Start()
		return b, b.Stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend kind %q", c.Backend.Kind)
	}
}
