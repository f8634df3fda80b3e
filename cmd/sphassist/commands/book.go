package commands

import (
	"fmt"

	"github.com/dectecx/SPHAssistant/lib/scrapers/sph"
	"github.com/dectecx/SPHAssistant/lib/serviceutil"

	"github.com/spf13/cobra"
)

var (
	bookHref     *string
	bookIdType   *string
	bookIdNumber *string
	bookBirthday *string
	bookFirst    *bool
)

func init() {
	bookHref = bookCmd.Flags().String("href", "", "The slot link copied from the timetable (its query holds the booking tokens).")
	bookIdType = bookCmd.Flags().String("id-type", "idcard", "Identifier kind: idcard, record, passport, resident, permit.")
	bookIdNumber = bookCmd.Flags().String("id", "", "The identifier number.")
	bookBirthday = bookCmd.Flags().String("birthday", "", "Birth month and day as MMdd, e.g. 0101.")
	bookFirst = bookCmd.Flags().Bool("first-visit", false, "Book as a first-visit patient.")
	bookCmd.MarkFlagRequired("href")
	bookCmd.MarkFlagRequired("id")
	bookCmd.MarkFlagRequired("birthday")
	rootCmd.AddCommand(bookCmd)
}

var bookCmd = &cobra.Command{
	Use:   "book --href <slot link> --id <number> --birthday <MMdd>",
	Short: "Books the appointment slot behind a timetable link.",
	Run: func(cmd *cobra.Command, args []string) {
		idType, err := parseIdType(*bookIdType)
		if err != nil {
			serviceutil.Fatal("invalid flags", err)
		}
		params, err := sph.ParseBookingParameters(*bookHref)
		if err != nil {
			serviceutil.Fatal("the given link does not carry booking parameters", err)
		}

		service, cleanup := createService(loadConfig())
		defer cleanup()

		outcome, err := service.BookAppointment(cmd.Context(), sph.BookingRequest{
			Parameters:   params,
			IdType:       idType,
			IdNumber:     *bookIdNumber,
			BirthDate:    *bookBirthday,
			IsFirstVisit: *bookFirst,
		})
		if err != nil {
			serviceutil.Fatal("booking aborted", err)
		}

		fmt.Printf("%s: %s\n", outcome.Status, outcome.Message)
	},
}
