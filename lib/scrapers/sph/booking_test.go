package sph

import (
	"context"
	"testing"

	"github.com/dectecx/SPHAssistant/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func testBookingRequest() BookingRequest {
	return BookingRequest{
		Parameters: BookingParameters{
			RmsData:   "ABC123",
			DptName:   "家庭醫學科",
			Dpt:       "05",
			DptDptuid: "0501",
		},
		IdType:       IdCard,
		IdNumber:     "A123456789",
		BirthDate:    "0101",
		IsFirstVisit: false,
	}
}

func TestBookAppointmentFullFlow(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/sph")
	defer cleanup()

	// a rejected captcha on verification retries, it does not kill
	// the run; confirmation then goes through with the fresh tokens
	site := newFakeSite(t, "login_page.html", []string{
		"booking_captcha_error.html",
		"booking_confirm_page.html",
		"booking_success.html",
	})
	client := newTestClient(t, site)

	outcome, err := client.BookAppointment(context.Background(), staticRecognizer{text: "AB3D"}, testBookingRequest())
	require.NoError(t, err)
	require.Equal(t, BookingSuccess, outcome.Status)
	require.Contains(t, outcome.Message, "掛號成功")
	require.Equal(t, 3, site.submissionCount())
}

func TestBookAppointmentCaptchaRetriesExhausted(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/sph")
	defer cleanup()

	site := newFakeSite(t, "login_page.html", []string{"booking_captcha_error.html"})
	client := newTestClient(t, site)

	outcome, err := client.BookAppointment(context.Background(), staticRecognizer{text: "AB3D"}, testBookingRequest())
	require.NoError(t, err)
	require.Equal(t, BookingOperationError, outcome.Status)
	require.Equal(t, maxCaptchaRetries, site.submissionCount())
}

func TestBookAppointmentNewPatientUnsupported(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/sph")
	defer cleanup()

	site := newFakeSite(t, "login_page.html", []string{"booking_new_patient.html"})
	client := newTestClient(t, site)

	outcome, err := client.BookAppointment(context.Background(), staticRecognizer{text: "AB3D"}, testBookingRequest())
	require.NoError(t, err)
	require.Equal(t, BookingOperationError, outcome.Status)
	require.Contains(t, outcome.Message, "初診")
	require.Equal(t, 1, site.submissionCount())
}

func TestBookAppointmentValidationErrorIsTerminal(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/sph")
	defer cleanup()

	site := newFakeSite(t, "login_page.html", []string{"booking_validation_error.html"})
	client := newTestClient(t, site)

	outcome, err := client.BookAppointment(context.Background(), staticRecognizer{text: "AB3D"}, testBookingRequest())
	require.NoError(t, err)
	require.Equal(t, BookingValidationError, outcome.Status)
	require.Equal(t, 1, site.submissionCount())
}

func TestBookAppointmentSlotFilledAtConfirmation(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/sph")
	defer cleanup()

	site := newFakeSite(t, "login_page.html", []string{
		"booking_confirm_page.html",
		"booking_full.html",
	})
	client := newTestClient(t, site)

	outcome, err := client.BookAppointment(context.Background(), staticRecognizer{text: "AB3D"}, testBookingRequest())
	require.NoError(t, err)
	require.Equal(t, BookingSlotUnavailable, outcome.Status)
}
