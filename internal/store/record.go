package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/prefab"
)

// Record is an import record stored under its destination asset.
type Record struct {
	Dest       string
	Import     *prefab.ImportRecord
	BaseDigest string // filled in by the store on write
	Seq        int64
}

// PutRecord inserts or replaces the record for (rec.Dest, rec.Import.Instance).
// The destination asset must exist.
func (s *Store) PutRecord(ctx context.Context, rec Record) error {
	if err := putRecord(ctx, s.db, rec); err != nil {
		return fmt.Errorf("put record %s/%s: %w", rec.Dest, rec.Import.Instance, err)
	}
	return nil
}

func putRecord(ctx context.Context, db execer, rec Record) error {
	imp := rec.Import
	baseDoc, baseDigest, err := marshalHierarchy(imp.Base)
	if err != nil {
		return err
	}
	mapping, err := marshalMapping(imp.IDMapping)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO import_records
		(dest_locator, instance, source_locator, source_root, base_document, base_digest, id_mapping, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dest_locator, instance) DO UPDATE SET
			source_locator = excluded.source_locator,
			source_root = excluded.source_root,
			base_document = excluded.base_document,
			base_digest = excluded.base_digest,
			id_mapping = excluded.id_mapping,
			seq = excluded.seq
	`,
		rec.Dest,
		imp.Instance.String(),
		imp.Source,
		imp.SourceRoot.String(),
		baseDoc,
		baseDigest,
		mapping,
		rec.Seq,
	)
	return err
}

const recordColumns = `dest_locator, instance, source_locator, source_root, base_document, base_digest, id_mapping, seq`

// GetRecord loads the record of one instance. Returns an error wrapping
// ErrNotFound when there is none.
func (s *Store) GetRecord(ctx context.Context, dest string, instance hierarchy.ID) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM import_records
		WHERE dest_locator = ? AND instance = ?
	`, dest, instance.String())

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get record %s/%s: %w", dest, instance, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s/%s: %w", dest, instance, err)
	}
	return rec, nil
}

// ListRecords returns every record of a destination asset, ordered by instance.
func (s *Store) ListRecords(ctx context.Context, dest string) ([]*Record, error) {
	return s.queryRecords(ctx, "list records", `
		SELECT `+recordColumns+`
		FROM import_records
		WHERE dest_locator = ?
		ORDER BY instance COLLATE BINARY ASC
	`, dest)
}

// RecordsBySource returns every record whose source is source, ordered by
// destination then instance.
func (s *Store) RecordsBySource(ctx context.Context, source string) ([]*Record, error) {
	return s.queryRecords(ctx, "records by source", `
		SELECT `+recordColumns+`
		FROM import_records
		WHERE source_locator = ?
		ORDER BY dest_locator COLLATE BINARY ASC, instance COLLATE BINARY ASC
	`, source)
}

// AllRecords returns every record, ordered by destination then instance.
func (s *Store) AllRecords(ctx context.Context) ([]*Record, error) {
	return s.queryRecords(ctx, "all records", `
		SELECT `+recordColumns+`
		FROM import_records
		ORDER BY dest_locator COLLATE BINARY ASC, instance COLLATE BINARY ASC
	`)
}

func (s *Store) queryRecords(ctx context.Context, op, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec                          Record
		instance, sourceRoot         string
		baseDoc, mapping, sourceName string
	)
	if err := row.Scan(&rec.Dest, &instance, &sourceName, &sourceRoot, &baseDoc, &rec.BaseDigest, &mapping, &rec.Seq); err != nil {
		return nil, err
	}

	imp := &prefab.ImportRecord{Source: sourceName}
	var err error
	if imp.Instance, err = parseID("instance", instance); err != nil {
		return nil, err
	}
	if imp.SourceRoot, err = parseID("source_root", sourceRoot); err != nil {
		return nil, err
	}
	if imp.Base, err = unmarshalHierarchy(baseDoc); err != nil {
		return nil, err
	}
	if imp.IDMapping, err = unmarshalMapping(mapping); err != nil {
		return nil, err
	}
	rec.Import = imp
	return &rec, nil
}
