package commands

import (
	"fmt"
	"strings"

	"github.com/dectecx/SPHAssistant/lib/scrapers/sph"
	"github.com/dectecx/SPHAssistant/lib/serviceutil"

	"github.com/spf13/cobra"
)

var (
	queryIdType   *string
	queryIdNumber *string
	queryBirthday *string
	queryFirst    *bool
)

func init() {
	queryIdType = queryCmd.Flags().String("id-type", "idcard", "Identifier kind: idcard, record, passport, resident, permit.")
	queryIdNumber = queryCmd.Flags().String("id", "", "The identifier number.")
	queryBirthday = queryCmd.Flags().String("birthday", "", "Birth month and day as MMdd, e.g. 0101.")
	queryFirst = queryCmd.Flags().Bool("first-visit", false, "Query as a first-visit patient.")
	queryCmd.MarkFlagRequired("id")
	queryCmd.MarkFlagRequired("birthday")
	rootCmd.AddCommand(queryCmd)
}

func parseIdType(value string) (sph.IdType, error) {
	switch strings.ToLower(value) {
	case "idcard":
		return sph.IdCard, nil
	case "record":
		return sph.MedicalRecord, nil
	case "passport":
		return sph.Passport, nil
	case "resident":
		return sph.ResidentCertificate, nil
	case "permit":
		return sph.EntryExitPermit, nil
	}
	return 0, fmt.Errorf("unknown id type %q", value)
}

var queryCmd = &cobra.Command{
	Use:   "query --id <number> --birthday <MMdd>",
	Short: "Looks up existing appointments for a patient.",
	Run: func(cmd *cobra.Command, args []string) {
		idType, err := parseIdType(*queryIdType)
		if err != nil {
			serviceutil.Fatal("invalid flags", err)
		}

		queryType := sph.ReturningPatient
		if *queryFirst {
			queryType = sph.NewPatient
		}

		service, cleanup := createService(loadConfig())
		defer cleanup()

		outcome, err := service.QueryAppointment(cmd.Context(), sph.QueryRequest{
			QueryType: queryType,
			IdType:    idType,
			IdNumber:  *queryIdNumber,
			BirthDate: *queryBirthday,
		})
		if err != nil {
			serviceutil.Fatal("query aborted", err)
		}

		fmt.Printf("%s: %s\n", outcome.Status, outcome.Message)
	},
}
