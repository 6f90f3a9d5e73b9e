package store

import (
	"context"
	"fmt"

	"github.com/roach88/graft/internal/hierarchy"
)

// Commit is everything one successful session publishes.
type Commit struct {
	Locator   string
	Hierarchy *hierarchy.Hierarchy
	Record    Record
	Run       Run
}

// CommitSync writes the destination asset, its import record and the run
// journal entry in one transaction. Either all three become visible or none.
//
// Returns the new asset digest.
func (s *Store) CommitSync(ctx context.Context, c Commit) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("commit sync: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	digest, err := putAsset(ctx, tx, c.Locator, c.Hierarchy, c.Run.Seq)
	if err != nil {
		return "", fmt.Errorf("commit sync: write asset: %w", err)
	}
	if err := putRecord(ctx, tx, c.Record); err != nil {
		return "", fmt.Errorf("commit sync: write record: %w", err)
	}
	if _, err := writeRun(ctx, tx, c.Run); err != nil {
		return "", fmt.Errorf("commit sync: write run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit sync: commit: %w", err)
	}
	return digest, nil
}
