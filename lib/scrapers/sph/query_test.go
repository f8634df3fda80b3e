package sph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dectecx/SPHAssistant/lib/telemetry"

	"github.com/stretchr/testify/require"
)

type staticRecognizer struct {
	text string
}

func (r staticRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	return r.text, nil
}

// fakeSite is an httptest stand-in for the registration site. POST
// responses are scripted per test; the last script entry repeats.
type fakeSite struct {
	t testing.TB

	mu          sync.Mutex
	submissions int
	// sequence of fixture names served for form POSTs
	postScript []string

	server *httptest.Server
}

func newFakeSite(t testing.TB, getPage string, postScript []string) *fakeSite {
	site := &fakeSite{t: t, postScript: postScript}

	mux := http.NewServeMux()
	mux.HandleFunc(captchaPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	})
	handlePage := func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(readFixture(t, getPage)))
			return
		}
		site.mu.Lock()
		index := site.submissions
		site.submissions++
		site.mu.Unlock()
		if index >= len(site.postScript) {
			index = len(site.postScript) - 1
		}
		w.Write([]byte(readFixture(t, site.postScript[index])))
	}
	mux.HandleFunc(queryPath, handlePage)
	mux.HandleFunc(loginPath, handlePage)

	site.server = httptest.NewServer(mux)
	t.Cleanup(site.server.Close)
	return site
}

func (s *fakeSite) submissionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissions
}

func newTestClient(t testing.TB, site *fakeSite) *Client {
	client, err := NewClient(context.Background(), ClientOptions{
		BaseUrl: site.server.URL,
	})
	require.NoError(t, err)
	// deterministic coordinates and no backoff between attempts
	client.clickPoint = func() (int, int) { return 10, 5 }
	client.retryBackoff = 0
	return client
}

func TestQueryAppointmentSuccessFirstSubmission(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/sph")
	defer cleanup()

	site := newFakeSite(t, "query_page.html", []string{"query_success.html"})
	client := newTestClient(t, site)

	outcome, err := client.QueryAppointment(context.Background(), staticRecognizer{text: "AB3D"}, QueryRequest{
		QueryType: ReturningPatient,
		IdType:    IdCard,
		IdNumber:  "A123456789",
		BirthDate: "0101",
	})
	require.NoError(t, err)
	require.Equal(t, QuerySuccess, outcome.Status)
	require.Equal(t, readFixture(t, "query_success.html"), outcome.Html)
	require.Equal(t, 1, site.submissionCount())
}

func TestQueryAppointmentCaptchaRetriesExhausted(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/sph")
	defer cleanup()

	site := newFakeSite(t, "query_page.html", []string{"query_captcha_error.html"})
	client := newTestClient(t, site)

	outcome, err := client.QueryAppointment(context.Background(), staticRecognizer{text: "AB3D"}, QueryRequest{
		QueryType: ReturningPatient,
		IdType:    IdCard,
		IdNumber:  "A123456789",
		BirthDate: "0101",
	})
	require.NoError(t, err)
	require.Equal(t, QueryOperationError, outcome.Status)
	require.Equal(t, maxCaptchaRetries, site.submissionCount())
}

func TestQueryAppointmentWrongLengthCaptchaNeverSubmits(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/sph")
	defer cleanup()

	site := newFakeSite(t, "query_page.html", []string{"query_success.html"})
	client := newTestClient(t, site)

	outcome, err := client.QueryAppointment(context.Background(), staticRecognizer{text: "AB3"}, QueryRequest{
		QueryType: ReturningPatient,
		IdType:    IdCard,
		IdNumber:  "A123456789",
		BirthDate: "0101",
	})
	require.NoError(t, err)
	require.Equal(t, QueryOperationError, outcome.Status)
	require.Equal(t, 0, site.submissionCount())
}

func TestQueryAppointmentCaptchaErrorThenSuccess(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/sph")
	defer cleanup()

	site := newFakeSite(t, "query_page.html", []string{
		"query_captcha_error.html",
		"query_success.html",
	})
	client := newTestClient(t, site)

	outcome, err := client.QueryAppointment(context.Background(), staticRecognizer{text: "AB3D"}, QueryRequest{
		QueryType: ReturningPatient,
		IdType:    MedicalRecord,
		IdNumber:  "0012345",
		BirthDate: "1231",
	})
	require.NoError(t, err)
	require.Equal(t, QuerySuccess, outcome.Status)
	require.Equal(t, 2, site.submissionCount())
}

func TestQueryAppointmentDefinitiveOutcomeStopsRetrying(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/sph")
	defer cleanup()

	site := newFakeSite(t, "query_page.html", []string{"query_no_data.html"})
	client := newTestClient(t, site)

	outcome, err := client.QueryAppointment(context.Background(), staticRecognizer{text: "AB3D"}, QueryRequest{
		QueryType: ReturningPatient,
		IdType:    IdCard,
		IdNumber:  "A123456789",
		BirthDate: "0101",
	})
	require.NoError(t, err)
	require.Equal(t, QueryDataNotFound, outcome.Status)
	require.Equal(t, 1, site.submissionCount())
}

func TestQueryAppointmentCancellation(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/sph")
	defer cleanup()

	site := newFakeSite(t, "query_page.html", []string{"query_success.html"})
	client := newTestClient(t, site)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.QueryAppointment(ctx, staticRecognizer{text: "AB3D"}, QueryRequest{
		QueryType: ReturningPatient,
		IdType:    IdCard,
		IdNumber:  "A123456789",
		BirthDate: "0101",
	})
	require.ErrorIs(t, err, context.Canceled)
}
