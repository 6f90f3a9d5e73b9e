package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/graft/internal/hierarchy"
)

// Asset is a stored hierarchy addressed by its locator.
type Asset struct {
	Locator   string
	Hierarchy *hierarchy.Hierarchy
	Digest    string // content digest of the canonical document
	Seq       int64
}

// AssetInfo is an asset row without its document.
type AssetInfo struct {
	Locator string
	Root    hierarchy.ID
	Digest  string
	Seq     int64
}

// PutAsset inserts or replaces an asset. The digest is computed from the
// canonical document and returned.
func (s *Store) PutAsset(ctx context.Context, locator string, h *hierarchy.Hierarchy, seq int64) (string, error) {
	digest, err := putAsset(ctx, s.db, locator, h, seq)
	if err != nil {
		return "", fmt.Errorf("put asset %q: %w", locator, err)
	}
	return digest, nil
}

func putAsset(ctx context.Context, db execer, locator string, h *hierarchy.Hierarchy, seq int64) (string, error) {
	doc, digest, err := marshalHierarchy(h)
	if err != nil {
		return "", err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO assets (locator, root, document, digest, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(locator) DO UPDATE SET
			root = excluded.root,
			document = excluded.document,
			digest = excluded.digest,
			seq = excluded.seq
	`,
		locator,
		h.Root.String(),
		doc,
		digest,
		seq,
	)
	if err != nil {
		return "", err
	}
	return digest, nil
}

// GetAsset loads an asset. Returns an error wrapping ErrNotFound when the
// locator is unknown.
func (s *Store) GetAsset(ctx context.Context, locator string) (*Asset, error) {
	var doc string
	a := &Asset{Locator: locator}
	err := s.db.QueryRowContext(ctx, `
		SELECT document, digest, seq FROM assets WHERE locator = ?
	`, locator).Scan(&doc, &a.Digest, &a.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get asset %q: %w", locator, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %q: %w", locator, err)
	}

	a.Hierarchy, err = unmarshalHierarchy(doc)
	if err != nil {
		return nil, fmt.Errorf("get asset %q: %w", locator, err)
	}
	return a, nil
}

// HasAsset reports whether locator is stored.
func (s *Store) HasAsset(ctx context.Context, locator string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM assets WHERE locator = ?
	`, locator).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has asset %q: %w", locator, err)
	}
	return count > 0, nil
}

// ListAssets returns every asset without documents, ordered by locator.
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) ListAssets(ctx context.Context) ([]AssetInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT locator, root, digest, seq
		FROM assets
		ORDER BY locator COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	out := []AssetInfo{}
	for rows.Next() {
		var (
			info AssetInfo
			root string
		)
		if err := rows.Scan(&info.Locator, &root, &info.Digest, &info.Seq); err != nil {
			return nil, fmt.Errorf("list assets: scan: %w", err)
		}
		if info.Root, err = parseID("root", root); err != nil {
			return nil, fmt.Errorf("list assets: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assets: iterate: %w", err)
	}
	return out, nil
}
