package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/displayrules/internal/types"
)

// ErrRunNotFound is returned when a compile run id has no row.
var ErrRunNotFound = errors.New("compile run not found")

// Run is one recorded compiler invocation.
type Run struct {
	ID           types.RunID `db:"run_id"`
	StartedAt    string      `db:"started_at"`
	FinishedAt   string      `db:"finished_at"` // empty while running
	Displays     int         `db:"displays"`
	RulesEmitted int         `db:"rules_emitted"`
	RulesFailed  int         `db:"rules_failed"`
}

// RunStats are the totals written when a run finishes.
type RunStats struct {
	Displays     int
	RulesEmitted int
	RulesFailed  int
}

// Diagnostic is one rule that failed to compile.
type Diagnostic struct {
	ID         int64       `db:"diagnostic_id"`
	RunID      types.RunID `db:"run_id"`
	Display    string      `db:"display"`
	WidgetID   string      `db:"widget_id"`
	RuleName   string      `db:"rule_name"`
	Property   string      `db:"property"`
	Error      string      `db:"error"`
	Source     string      `db:"source"`
	Partial    string      `db:"partial"`
	RecordedAt string      `db:"recorded_at"`
}

// DiagnosticStore persists compile runs and their rule failures.
// Safe for concurrent use.
type DiagnosticStore struct {
	q   *Queries
	now func() time.Time
}

// NewDiagnosticStore wraps loaded queries.
func NewDiagnosticStore(q *Queries) *DiagnosticStore {
	return &DiagnosticStore{q: q, now: time.Now}
}

func (s *DiagnosticStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// StartRun records a new run and returns its id.
func (s *DiagnosticStore) StartRun(ctx context.Context) (types.RunID, error) {
	id := types.NewRunID()
	if _, err := s.q.Exec(ctx, "insert-run", id, s.timestamp()); err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run's completion time and totals.
func (s *DiagnosticStore) FinishRun(ctx context.Context, id types.RunID, stats RunStats) error {
	res, err := s.q.Exec(ctx, "finish-run", s.timestamp(), stats.Displays, stats.RulesEmitted, stats.RulesFailed, id)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Record appends a diagnostic to run id. RunID and RecordedAt of d are
// overwritten.
func (s *DiagnosticStore) Record(ctx context.Context, id types.RunID, d Diagnostic) error {
	_, err := s.q.Exec(ctx, "insert-diagnostic",
		id, d.Display, d.WidgetID, d.RuleName, d.Property, d.Error, d.Source, d.Partial, s.timestamp())
	if err != nil {
		return fmt.Errorf("failed to record diagnostic for run %s: %w", id, err)
	}
	return nil
}

// ListDiagnostics returns the diagnostics of run id in recording order.
func (s *DiagnosticStore) ListDiagnostics(ctx context.Context, id types.RunID) ([]Diagnostic, error) {
	var out []Diagnostic
	if err := s.q.Select(ctx, "list-diagnostics", &out, id); err != nil {
		return nil, fmt.Errorf("failed to list diagnostics for run %s: %w", id, err)
	}
	return out, nil
}

// GetRun loads a single run.
func (s *DiagnosticStore) GetRun(ctx context.Context, id types.RunID) (*Run, error) {
	var run Run
	if err := s.q.Get(ctx, "get-run", &run, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	return &run, nil
}

// LatestRun returns the most recently started run. Run ids are UUIDv7, so
// their text order is start order.
func (s *DiagnosticStore) LatestRun(ctx context.Context) (*Run, error) {
	var run Run
	if err := s.q.Get(ctx, "latest-run", &run); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to load latest run: %w", err)
	}
	return &run, nil
}
