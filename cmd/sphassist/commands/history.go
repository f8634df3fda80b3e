package commands

import (
	"errors"
	"os"

	"github.com/dectecx/SPHAssistant/lib/runstore"
	"github.com/dectecx/SPHAssistant/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyLimit *int

func init() {
	historyLimit = historyCmd.Flags().Int("limit", 20, "Maximum number of runs to show.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Prints past query and booking outcomes, newest first.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.HistoryDb == "" {
			serviceutil.Fatal("run history is not configured", errors.New("historyDb is empty in sphassist.json5"))
		}

		store, err := runstore.Open(cfg.HistoryDb)
		if err != nil {
			serviceutil.Fatal("failed to open run history", err)
		}
		defer store.Close()

		runs, err := store.Recent(cmd.Context(), *historyLimit)
		if err != nil {
			serviceutil.Fatal("failed to read run history", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Time", "Workflow", "Department", "Status", "Message"})
		for _, run := range runs {
			t.AppendRow(table.Row{
				run.Time.Format("2006-01-02 15:04"),
				run.Workflow,
				run.Department,
				run.Status,
				run.Message,
			})
		}
		t.Render()
	},
}
