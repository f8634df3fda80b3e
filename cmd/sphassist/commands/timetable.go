package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/dectecx/SPHAssistant/lib/scrapers/sph"
	"github.com/dectecx/SPHAssistant/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(timetableCmd)
}

func formatSlots(slots []sph.AppointmentSlot) string {
	if len(slots) == 0 {
		return "-"
	}
	lines := make([]string, len(slots))
	for i, slot := range slots {
		label := slot.Doctor.Name
		if label == "" {
			label = slot.RawText
		}
		lines[i] = fmt.Sprintf("%s [%s]", label, slot.Status)
	}
	return strings.Join(lines, "\n")
}

var timetableCmd = &cobra.Command{
	Use:   "timetable <department>",
	Short: "Prints a department's schedule, department given by code or name.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		service, cleanup := createService(loadConfig())
		defer cleanup()

		timetable, err := service.FetchTimetable(cmd.Context(), args[0])
		if err != nil {
			serviceutil.Fatal("failed to fetch timetable", err)
		}

		fmt.Printf("%s (%s)\n", timetable.Name, timetable.Code)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Date", "Morning", "Afternoon", "Night"})
		for _, day := range timetable.Days {
			t.AppendRow(table.Row{
				day.Date.Format("2006-01-02"),
				formatSlots(day.MorningSlots),
				formatSlots(day.AfternoonSlots),
				formatSlots(day.NightSlots),
			})
		}
		t.Render()
	},
}
