package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/merge"
	"github.com/roach88/graft/internal/prefab"
	"github.com/roach88/graft/internal/store"
)

// Workspace runs imports and sync sessions against stored assets.
//
// Sessions on the same destination asset are serialized; sessions on
// different destinations may run concurrently. Every successful session is
// published with one store transaction, so readers see either the old or the
// new destination together with its matching import record.
type Workspace struct {
	store       *store.Store
	syncer      *prefab.Syncer
	clock       *Clock
	logger      *slog.Logger
	parallelism int
	locks       lockSet
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithSyncer sets the syncer used for import and update.
func WithSyncer(s *prefab.Syncer) Option {
	return func(w *Workspace) {
		w.syncer = s
	}
}

// WithLogger sets the logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workspace) {
		w.logger = logger
	}
}

// WithClock sets the logical clock instead of resuming from the store.
func WithClock(c *Clock) Option {
	return func(w *Workspace) {
		w.clock = c
	}
}

// WithParallelism bounds how many destinations UpdateAll processes at once.
func WithParallelism(n int) Option {
	return func(w *Workspace) {
		w.parallelism = n
	}
}

// New creates a Workspace over st. Unless WithClock is given, the clock
// resumes after the highest seq already stored.
func New(ctx context.Context, st *store.Store, opts ...Option) (*Workspace, error) {
	w := &Workspace{
		store:       st,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		parallelism: 4,
		locks:       lockSet{locks: make(map[string]*sync.Mutex)},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.syncer == nil {
		w.syncer = prefab.NewSyncer(prefab.WithLogger(w.logger))
	}
	if w.parallelism < 1 {
		w.parallelism = 1
	}
	if w.clock == nil {
		c, err := ResumeClock(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("new workspace: %w", err)
		}
		w.clock = c
	}
	return w, nil
}

// Store returns the underlying store.
func (w *Workspace) Store() *store.Store {
	return w.store
}

// PutAsset validates h and stores it under locator, replacing any previous
// version. Returns the content digest.
func (w *Workspace) PutAsset(ctx context.Context, locator string, h *hierarchy.Hierarchy) (string, error) {
	if err := h.Validate(); err != nil {
		return "", fmt.Errorf("put asset %q: %w", locator, err)
	}

	unlock := w.locks.lock(locator)
	defer unlock()

	digest, err := w.store.PutAsset(ctx, locator, h, w.clock.Next())
	if err != nil {
		return "", err
	}
	w.logger.Debug("asset stored", "asset", locator, "nodes", h.Len(), "digest", digest)
	return digest, nil
}

// Asset loads a stored asset.
func (w *Workspace) Asset(ctx context.Context, locator string) (*store.Asset, error) {
	return w.store.GetAsset(ctx, locator)
}

// ImportRequest describes one import.
type ImportRequest struct {
	Source string
	Dest   string
	// SourceRoot defaults to the source asset's root.
	SourceRoot hierarchy.ID
	// Parent is the destination node the instance is attached under.
	// Defaults to the destination root. Ignored when Dest does not exist yet.
	Parent hierarchy.ID
}

// ImportResult reports a committed import.
type ImportResult struct {
	Dest     string
	Instance hierarchy.ID
	// Created is true when the destination asset did not exist and was
	// created from the instance.
	Created  bool
	Nodes    int
	Digest   string
	Warnings []prefab.Warning
}

// Import instantiates the source asset's subgraph into the destination asset
// and records the link. A missing destination is created from the instance.
func (w *Workspace) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	unlock := w.locks.lock(req.Dest)
	defer unlock()

	src, err := w.store.GetAsset(ctx, req.Source)
	if err != nil {
		return nil, fmt.Errorf("import: source: %w", err)
	}
	root := req.SourceRoot
	if root == uuid.Nil {
		root = src.Hierarchy.Root
	}

	var dest *hierarchy.Hierarchy
	existing, err := w.store.GetAsset(ctx, req.Dest)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("import: destination: %w", err)
	default:
		dest = existing.Hierarchy
	}

	var reserved []hierarchy.IDSet
	if dest != nil {
		reserved = append(reserved, dest.IDSet())
	}
	res, err := w.syncer.Import(req.Source, src.Hierarchy, root, reserved...)
	if err != nil {
		return nil, err
	}

	out := &ImportResult{
		Dest:     req.Dest,
		Instance: res.Record.Instance,
		Nodes:    res.Hierarchy.Len(),
		Warnings: res.Warnings,
	}

	var result *hierarchy.Hierarchy
	if dest == nil {
		result = res.Hierarchy
		out.Created = true
	} else {
		parent := req.Parent
		if parent == uuid.Nil {
			parent = dest.Root
		}
		result = dest.Clone()
		if err := result.Splice(res.Hierarchy, parent, -1); err != nil {
			return nil, fmt.Errorf("import into %q: %w", req.Dest, err)
		}
	}
	if err := result.Validate(); err != nil {
		return nil, &prefab.Error{Code: prefab.CodeInvalidResult, Message: "import produced an invalid hierarchy", Locator: req.Dest, Err: err}
	}

	seq := w.clock.Next()
	out.Digest, err = w.store.CommitSync(ctx, store.Commit{
		Locator:   req.Dest,
		Hierarchy: result,
		Record:    store.Record{Dest: req.Dest, Import: res.Record, Seq: seq},
		Run: store.Run{
			Dest:     req.Dest,
			Instance: res.Record.Instance,
			Source:   req.Source,
			Kind:     store.RunImport,
			Status:   store.RunOK,
			Added:    out.Nodes,
			Warnings: len(res.Warnings),
			Seq:      seq,
		},
	})
	if err != nil {
		return nil, err
	}

	w.logWarnings(req.Dest, res.Warnings)
	w.logger.Info("imported",
		"source", req.Source,
		"dest", req.Dest,
		"instance", out.Instance,
		"nodes", out.Nodes,
		"created", out.Created)
	return out, nil
}

// UpdateResult reports a committed sync session.
type UpdateResult struct {
	Dest     string
	Instance hierarchy.ID
	Source   string
	Digest   string
	Report   prefab.Report
	Warnings []prefab.Warning
}

// Update synchronizes one instance with the current state of its source.
// Failed sessions are journaled and leave the destination untouched.
func (w *Workspace) Update(ctx context.Context, dest string, instance hierarchy.ID, policy merge.Policy) (*UpdateResult, error) {
	unlock := w.locks.lock(dest)
	defer unlock()
	return w.update(ctx, dest, instance, policy)
}

// update runs one session. The caller holds the destination lock.
func (w *Workspace) update(ctx context.Context, dest string, instance hierarchy.ID, policy merge.Policy) (*UpdateResult, error) {
	destAsset, err := w.store.GetAsset(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("update: destination: %w", err)
	}
	rec, err := w.store.GetRecord(ctx, dest, instance)
	if errors.Is(err, store.ErrNotFound) {
		return nil, prefab.NewUnknownInstanceError(instance, fmt.Sprintf("no import record in %q", dest), err)
	}
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	source := rec.Import.Source

	src, err := w.store.GetAsset(ctx, source)
	if err != nil {
		w.journalFailure(ctx, dest, instance, source, policy, err)
		return nil, fmt.Errorf("update: source: %w", err)
	}

	res, err := w.syncer.Update(src.Hierarchy, destAsset.Hierarchy, instance, rec.Import, policy)
	if err != nil {
		w.journalFailure(ctx, dest, instance, source, policy, err)
		return nil, err
	}

	seq := w.clock.Next()
	digest, err := w.store.CommitSync(ctx, store.Commit{
		Locator:   dest,
		Hierarchy: res.Hierarchy,
		Record:    store.Record{Dest: dest, Import: res.Record, Seq: seq},
		Run: store.Run{
			Dest:      dest,
			Instance:  instance,
			Source:    source,
			Kind:      store.RunUpdate,
			Status:    store.RunOK,
			Policy:    string(policy),
			Merged:    res.Report.Merged,
			Added:     res.Report.Added,
			Removed:   res.Report.Removed,
			Conflicts: res.Report.Conflicts,
			Warnings:  len(res.Warnings),
			Seq:       seq,
		},
	})
	if err != nil {
		return nil, err
	}

	w.logWarnings(dest, res.Warnings)
	return &UpdateResult{
		Dest:     dest,
		Instance: instance,
		Source:   source,
		Digest:   digest,
		Report:   res.Report,
		Warnings: res.Warnings,
	}, nil
}

func (w *Workspace) journalFailure(ctx context.Context, dest string, instance hierarchy.ID, source string, policy merge.Policy, cause error) {
	_, err := w.store.WriteRun(ctx, store.Run{
		Dest:     dest,
		Instance: instance,
		Source:   source,
		Kind:     store.RunUpdate,
		Status:   store.RunFailed,
		Policy:   string(policy),
		Error:    cause.Error(),
		Seq:      w.clock.Next(),
	})
	if err != nil {
		w.logger.Error("failed to journal run", "dest", dest, "instance", instance, "error", err)
	}
	w.logger.Warn("update failed", "dest", dest, "instance", instance, "source", source, "error", cause)
}

func (w *Workspace) logWarnings(dest string, ws []prefab.Warning) {
	for _, warn := range ws {
		w.logger.Warn("reconciliation warning",
			"dest", dest,
			"code", warn.Code,
			"node", warn.Node,
			"message", warn.Message)
	}
}

// lockSet hands out one mutex per asset locator.
type lockSet struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *lockSet) lock(key string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
