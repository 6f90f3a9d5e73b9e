package store

import (
	"context"
	"fmt"

	"github.com/roach88/graft/internal/hierarchy"
)

// RunKind distinguishes journal entries.
type RunKind string

const (
	RunImport RunKind = "import"
	RunUpdate RunKind = "update"
)

// RunStatus is the outcome of a journaled session.
type RunStatus string

const (
	RunOK     RunStatus = "ok"
	RunFailed RunStatus = "failed"
)

// Run is one journaled import or sync session. Failed sessions are
// journaled too; their Error carries the message.
type Run struct {
	ID        int64
	Dest      string
	Instance  hierarchy.ID
	Source    string
	Kind      RunKind
	Status    RunStatus
	Policy    string
	Merged    int
	Added     int
	Removed   int
	Conflicts int
	Warnings  int
	Error     string
	Seq       int64
}

// WriteRun appends a run to the journal and returns its ID.
func (s *Store) WriteRun(ctx context.Context, run Run) (int64, error) {
	id, err := writeRun(ctx, s.db, run)
	if err != nil {
		return 0, fmt.Errorf("write run: %w", err)
	}
	return id, nil
}

func writeRun(ctx context.Context, db execer, run Run) (int64, error) {
	result, err := db.ExecContext(ctx, `
		INSERT INTO sync_runs
		(dest_locator, instance, source_locator, kind, status, policy, merged, added, removed, conflicts, warnings, error, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.Dest,
		run.Instance.String(),
		run.Source,
		string(run.Kind),
		string(run.Status),
		run.Policy,
		run.Merged,
		run.Added,
		run.Removed,
		run.Conflicts,
		run.Warnings,
		run.Error,
		run.Seq,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListRuns returns the most recent runs of a destination, newest first.
// limit <= 0 returns all of them.
func (s *Store) ListRuns(ctx context.Context, dest string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dest_locator, instance, source_locator, kind, status, policy,
		       merged, added, removed, conflicts, warnings, error, seq
		FROM sync_runs
		WHERE dest_locator = ?
		ORDER BY seq DESC, id DESC
		LIMIT ?
	`, dest, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var (
			run          Run
			instance     string
			kind, status string
		)
		if err := rows.Scan(&run.ID, &run.Dest, &instance, &run.Source, &kind, &status, &run.Policy,
			&run.Merged, &run.Added, &run.Removed, &run.Conflicts, &run.Warnings, &run.Error, &run.Seq); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		if run.Instance, err = parseID("instance", instance); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		run.Kind, run.Status = RunKind(kind), RunStatus(status)
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: iterate: %w", err)
	}
	return out, nil
}

// LastRun returns the newest run of one instance, or nil if it has none.
func (s *Store) LastRun(ctx context.Context, dest string, instance hierarchy.ID) (*Run, error) {
	runs, err := s.ListRuns(ctx, dest, 0)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Instance == instance {
			return &runs[i], nil
		}
	}
	return nil, nil
}
