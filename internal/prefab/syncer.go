package prefab

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/merge"
	"github.com/roach88/graft/internal/remap"
)

// Syncer imports source subgraphs into destinations and keeps the resulting
// instances in step with their sources.
//
// A Syncer holds no per-asset state and is safe for concurrent use as long as
// its Generator and Merger are. Callers serialize work on the same
// destination; the workspace layer does that with per-asset locks.
type Syncer struct {
	gen        remap.Generator
	merger     merge.Merger
	logger     *slog.Logger
	maxPasses  int
	pruneStale bool
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithGenerator sets the identity generator. Default: UUIDv7.
func WithGenerator(gen remap.Generator) Option {
	return func(s *Syncer) {
		s.gen = gen
	}
}

// WithMerger sets the per-node merge primitive. Default: merge.FieldMerger.
func WithMerger(m merge.Merger) Option {
	return func(s *Syncer) {
		s.merger = m
	}
}

// WithLogger sets the logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// WithMaxPasses bounds the attachment passes for upstream-added nodes.
// Zero or less means one pass per added node, which always reaches the
// fixpoint.
func WithMaxPasses(n int) Option {
	return func(s *Syncer) {
		s.maxPasses = n
	}
}

// WithPruneStale controls whether Update drops mapping entries whose source
// node no longer exists upstream. Default: true.
func WithPruneStale(prune bool) Option {
	return func(s *Syncer) {
		s.pruneStale = prune
	}
}

// NewSyncer creates a Syncer.
func NewSyncer(opts ...Option) *Syncer {
	s := &Syncer{
		gen:        remap.UUIDv7Generator{},
		merger:     merge.FieldMerger{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		pruneStale: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImportResult is the output of Import.
type ImportResult struct {
	// Hierarchy is the instance: a remapped copy of the source subgraph,
	// ready to be spliced into a destination.
	Hierarchy *hierarchy.Hierarchy
	// Record links the instance back to the source.
	Record   *ImportRecord
	Warnings []Warning
}

// Import extracts the subgraph rooted at sourceRoot, assigns fresh identities
// distinct from src and every reserved set, and returns the instance with a
// new import record.
//
// The record's base snapshot is the extracted copy with source identities;
// the instance is a second, remapped copy. Neither aliases src. References
// leaving the subgraph are kept and reported as DANGLING_REF warnings.
func (s *Syncer) Import(source string, src *hierarchy.Hierarchy, sourceRoot hierarchy.ID, reserved ...hierarchy.IDSet) (*ImportResult, error) {
	extracted, err := Extract(src, sourceRoot)
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			pe.Locator = source
		}
		return nil, err
	}

	res, err := remap.Remap(extracted, s.gen, append(reserved, src.IDSet())...)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", source, err)
	}

	var warnings []Warning
	for _, d := range res.Dangling {
		warnings = append(warnings, Warning{
			Code:    WarnDanglingRef,
			Node:    d.Node,
			Message: fmt.Sprintf("reference to %s outside the imported subgraph", d.Target),
		})
	}

	rec := &ImportRecord{
		Source:     source,
		SourceRoot: sourceRoot,
		Instance:   res.Hierarchy.Root,
		Base:       extracted,
		IDMapping:  res.Mapping.Forward,
	}

	s.logger.Debug("imported subgraph",
		"source", source,
		"root", sourceRoot,
		"instance", rec.Instance,
		"nodes", res.Hierarchy.Len(),
		"dangling", len(res.Dangling))

	return &ImportResult{Hierarchy: res.Hierarchy, Record: rec, Warnings: warnings}, nil
}
