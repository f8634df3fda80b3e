package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dectecx/SPHAssistant/lib/configutil"
	"github.com/dectecx/SPHAssistant/lib/runstore"
	"github.com/dectecx/SPHAssistant/lib/serviceutil"
	"github.com/dectecx/SPHAssistant/lib/telemetry"
	"github.com/dectecx/SPHAssistant/services/registration"

	"github.com/spf13/cobra"
)

var debug *bool

var rootCmd = &cobra.Command{
	Use:   "sphassist",
	Short: "sphassist automates the hospital's online registration site: appointment lookup, booking and timetables.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*debug)
	},
}

func init() {
	debug = rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() registration.Config {
	cfg, err := configutil.ReadRecursively[registration.Config]("sphassist.json5")
	if err != nil {
		serviceutil.Fatal("failed to read sphassist.json5", err)
	}
	return cfg
}

// createService builds the workflow service from config, opening the
// run history store when one is configured.
func createService(cfg registration.Config) (registration.Service, func()) {
	var store *runstore.Store
	cleanup := func() {}

	if cfg.HistoryDb != "" {
		opened, err := runstore.Open(cfg.HistoryDb)
		if err != nil {
			serviceutil.Fatal("failed to open run history", err)
		}
		store = &opened
		cleanup = func() { opened.Close() }
	}

	return registration.NewService(cfg, promptRecognizer{}, store), cleanup
}
