// Package registration composes the scraper client, the captcha
// recognizer and the run history store into the two user-facing
// workflows: querying an existing appointment and booking a new one.
package registration

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dectecx/SPHAssistant/lib/runstore"
	"github.com/dectecx/SPHAssistant/lib/scrapers/sph"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("services/registration")

type Config struct {
	BaseUrl   string `json:"base_url"`
	UserAgent string `json:"user_agent"`
	// path to the sqlite run history, empty disables history
	HistoryDb string `json:"history_db"`
}

type Service struct {
	cfg        Config
	recognizer sph.Recognizer
	store      *runstore.Store
}

// NewService wires the workflows together. `store` may be nil, in which
// case runs are not recorded.
func NewService(cfg Config, recognizer sph.Recognizer, store *runstore.Store) Service {
	return Service{
		cfg:        cfg,
		recognizer: recognizer,
		store:      store,
	}
}

// each run gets its own client: the server keys captcha and viewstate
// checks to the session cookie, so concurrent runs must never share one
func (s Service) newClient(ctx context.Context) (*sph.Client, error) {
	return sph.NewClient(ctx, sph.ClientOptions{
		BaseUrl:   s.cfg.BaseUrl,
		UserAgent: s.cfg.UserAgent,
	})
}

func (s Service) record(ctx context.Context, run runstore.Run) {
	if s.store == nil {
		return
	}
	if err := s.store.Record(ctx, run); err != nil {
		slog.WarnContext(ctx, "failed to record run", "err", err)
	}
}

func (s Service) QueryAppointment(ctx context.Context, req sph.QueryRequest) (sph.QueryOutcome, error) {
	ctx, span := tracer.Start(ctx, "service:QueryAppointment")
	defer span.End()

	client, err := s.newClient(ctx)
	if err != nil {
		return sph.QueryOutcome{}, err
	}

	outcome, err := client.QueryAppointment(ctx, s.recognizer, req)
	if err != nil {
		return sph.QueryOutcome{}, err
	}

	slog.InfoContext(ctx, "query run finished",
		"status", outcome.Status.String(), "message", outcome.Message)
	s.record(ctx, runstore.Run{
		Workflow: runstore.WorkflowQuery,
		Status:   outcome.Status.String(),
		Message:  outcome.Message,
	})
	return outcome, nil
}

func (s Service) BookAppointment(ctx context.Context, req sph.BookingRequest) (sph.BookingOutcome, error) {
	ctx, span := tracer.Start(ctx, "service:BookAppointment")
	defer span.End()

	client, err := s.newClient(ctx)
	if err != nil {
		return sph.BookingOutcome{}, err
	}

	outcome, err := client.BookAppointment(ctx, s.recognizer, req)
	if err != nil {
		return sph.BookingOutcome{}, err
	}

	slog.InfoContext(ctx, "booking run finished",
		"status", outcome.Status.String(), "message", outcome.Message)
	s.record(ctx, runstore.Run{
		Workflow:   runstore.WorkflowBooking,
		Department: req.Parameters.Dpt,
		Status:     outcome.Status.String(),
		Message:    outcome.Message,
	})
	return outcome, nil
}

// FetchTimetable resolves a department given by code or (fuzzy) name
// and scrapes its schedule.
func (s Service) FetchTimetable(ctx context.Context, department string) (sph.DepartmentTimetable, error) {
	ctx, span := tracer.Start(ctx, "service:FetchTimetable")
	defer span.End()

	dept, ok := MatchDepartment(department)
	if !ok {
		return sph.DepartmentTimetable{}, fmt.Errorf("unknown department %q", department)
	}

	client, err := s.newClient(ctx)
	if err != nil {
		return sph.DepartmentTimetable{}, err
	}

	timetable, err := client.FetchTimetable(ctx, dept.Code)
	if err != nil {
		return sph.DepartmentTimetable{}, err
	}
	if timetable.Name == "" {
		timetable.Name = dept.Name
	}
	return timetable, nil
}
