// Package runstore keeps a local history of orchestration runs so the
// outcome of past queries and bookings can be inspected after the fact.
package runstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/dectecx/SPHAssistant/lib/runstore/db"
	"github.com/dectecx/SPHAssistant/lib/timezone"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

// Open opens (and initializes if needed) a run store at the given path.
func Open(path string) (Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return Store{}, err
	}
	if _, err := database.Exec(db.Schema); err != nil {
		database.Close()
		return Store{}, err
	}
	return Store{db: database}, nil
}

func (s Store) Close() error {
	return s.db.Close()
}

const (
	WorkflowQuery   = "query"
	WorkflowBooking = "booking"
)

type Run struct {
	Workflow   string
	Department string
	Status     string
	Message    string
	Time       time.Time
}

func (s Store) Record(ctx context.Context, run Run) error {
	when := run.Time
	if when.IsZero() {
		when = timezone.Now()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (workflow, department, status, message, time)
		 VALUES (?, ?, ?, ?, ?)`,
		run.Workflow,
		run.Department,
		run.Status,
		run.Message,
		when.Unix(),
	)
	return err
}

// Recent returns up to `limit` runs, newest first.
func (s Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT workflow, department, status, message, time
		 FROM runs ORDER BY time DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var unix int64
		if err := rows.Scan(&run.Workflow, &run.Department, &run.Status, &run.Message, &unix); err != nil {
			return nil, err
		}
		run.Time = time.Unix(unix, 0).In(timezone.Location)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
