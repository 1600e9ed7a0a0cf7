package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude"
)

// DefaultRunLimit caps ListRuns when no limit is given
const DefaultRunLimit = 50

// RunRecord is one row of the launch journal
type RunRecord struct {
	ProcessID   string           `json:"processId"`
	SessionID   string           `json:"sessionId,omitempty"`
	ProjectPath string           `json:"projectPath"`
	Transport   string           `json:"transport"`
	Resumed     bool             `json:"resumed"`
	Status      claude.RunStatus `json:"status"`
	StartedAt   time.Time        `json:"startedAt"`
	EndedAt     *time.Time       `json:"endedAt,omitempty"`
	ExitCode    *int             `json:"exitCode,omitempty"`
	CostUSD     *float64         `json:"costUsd,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// RunStore journals launches. It satisfies claude.RunRecorder.
type RunStore struct {
	db *DB
}

var _ claude.RunRecorder = (*RunStore)(nil)

// NewRunStore wraps an open database
func NewRunStore(d *DB) *RunStore {
	return &RunStore{db: d}
}

// RecordStart inserts a running row
func (s *RunStore) RecordStart(ctx context.Context, run claude.RunStart) error {
	_, err := s.db.Run(ctx,
		`INSERT INTO runs (process_id, session_id, project_path, transport, resumed, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ProcessID, run.SessionID, run.ProjectPath, run.Transport, boolToInt(run.Resumed),
		string(claude.RunRunning), run.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// RecordEnd closes the row. The session id learned during the run replaces
// the one known at start.
func (s *RunStore) RecordEnd(ctx context.Context, run claude.RunEnd) error {
	var exitCode sql.NullInt64
	if run.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*run.ExitCode), Valid: true}
	}
	var cost sql.NullFloat64
	if run.CostUSD != nil {
		cost = sql.NullFloat64{Float64: *run.CostUSD, Valid: true}
	}

	res, err := s.db.Run(ctx,
		`UPDATE runs
		 SET status = ?, ended_at = ?, exit_code = ?, cost_usd = ?, error = ?,
		     session_id = CASE WHEN ? != '' THEN ? ELSE session_id END
		 WHERE process_id = ? AND ended_at IS NULL`,
		string(run.Status), run.EndedAt.UnixMilli(), exitCode, cost, run.Error,
		run.SessionID, run.SessionID, run.ProcessID,
	)
	if err != nil {
		return fmt.Errorf("record run end: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record run end: no open run %s", run.ProcessID)
	}
	return nil
}

const runColumns = `process_id, session_id, project_path, transport, resumed, status, started_at, ended_at, exit_code, cost_usd, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		r        RunRecord
		resumed  int
		status   string
		started  int64
		ended    sql.NullInt64
		exitCode sql.NullInt64
		cost     sql.NullFloat64
	)
	err := row.Scan(&r.ProcessID, &r.SessionID, &r.ProjectPath, &r.Transport, &resumed,
		&status, &started, &ended, &exitCode, &cost, &r.Error)
	if err != nil {
		return RunRecord{}, err
	}

	r.Resumed = resumed != 0
	r.Status = claude.RunStatus(status)
	r.StartedAt = time.UnixMilli(started).UTC()
	if ended.Valid {
		t := time.UnixMilli(ended.Int64).UTC()
		r.EndedAt = &t
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		r.ExitCode = &code
	}
	if cost.Valid {
		c := cost.Float64
		r.CostUSD = &c
	}
	return r, nil
}

// ListRuns returns the most recent runs first
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	runs, err := Select(ctx, s.db,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, process_id DESC LIMIT ?`,
		[]QueryParam{limit},
		func(rows *sql.Rows) (RunRecord, error) { return scanRun(rows) },
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if runs == nil {
		runs = []RunRecord{}
	}
	return runs, nil
}

// GetRun returns one run, or nil when the process id is unknown
func (s *RunStore) GetRun(ctx context.Context, processID string) (*RunRecord, error) {
	return SelectOne(ctx, s.db,
		`SELECT `+runColumns+` FROM runs WHERE process_id = ?`,
		[]QueryParam{processID},
		func(row *sql.Row) (RunRecord, error) { return scanRun(row) },
	)
}

// MarkInterrupted closes runs left open by a previous crash
func (s *RunStore) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.Run(ctx,
		`UPDATE runs SET status = ?, ended_at = ?, error = 'orchestrator exited while the run was active'
		 WHERE ended_at IS NULL`,
		string(claude.RunFailed), time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("close stale runs: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
