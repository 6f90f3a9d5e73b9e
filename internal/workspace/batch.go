package workspace

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/merge"
	"github.com/roach88/graft/internal/prefab"
	"github.com/roach88/graft/internal/store"
)

// Outcome is the result of one session inside UpdateAll.
// Exactly one of Result and Err is set.
type Outcome struct {
	Dest     string
	Instance hierarchy.ID
	Result   *UpdateResult
	Err      error
}

// UpdateAll propagates the current state of source to every instance that
// imports it. Destinations are processed concurrently, bounded by the
// configured parallelism; instances inside one destination run in order so
// each session sees the previous one's result.
//
// A failing session does not stop the batch; its error is reported in the
// returned outcomes. The returned error is non-nil only when the batch could
// not be planned or ctx was cancelled.
func (w *Workspace) UpdateAll(ctx context.Context, source string, policy merge.Policy) ([]Outcome, error) {
	recs, err := w.store.RecordsBySource(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("update all: %w", err)
	}

	// Records arrive ordered by (dest, instance).
	var dests []string
	byDest := make(map[string][]hierarchy.ID)
	for _, rec := range recs {
		if _, ok := byDest[rec.Dest]; !ok {
			dests = append(dests, rec.Dest)
		}
		byDest[rec.Dest] = append(byDest[rec.Dest], rec.Import.Instance)
	}

	outcomes := make([][]Outcome, len(dests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallelism)

	for i, dest := range dests {
		g.Go(func() error {
			unlock := w.locks.lock(dest)
			defer unlock()

			for _, inst := range byDest[dest] {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := w.update(gctx, dest, inst, policy)
				outcomes[i] = append(outcomes[i], Outcome{Dest: dest, Instance: inst, Result: res, Err: err})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return flatten(outcomes), fmt.Errorf("update all %q: %w", source, err)
	}

	out := flatten(outcomes)
	w.logger.Info("batch update complete",
		"source", source,
		"instances", len(out),
		"failed", countFailed(out))
	return out, nil
}

func flatten(groups [][]Outcome) []Outcome {
	out := []Outcome{}
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func countFailed(outs []Outcome) int {
	n := 0
	for _, o := range outs {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// InstanceStatus describes one tracked instance in a destination asset.
type InstanceStatus struct {
	Instance hierarchy.ID
	Source   string
	// Tracked is the number of destination nodes linked to source nodes.
	Tracked int
	// Stale is true when the source has changed since the last import or
	// update.
	Stale bool
	// SourceMissing is true when the source asset is no longer stored.
	SourceMissing bool
	// SourceRootGone is true when the recorded source root no longer
	// exists in the source asset.
	SourceRootGone bool
	LastRun        *store.Run
}

// Status reports every instance tracked in dest, ordered by instance ID.
func (w *Workspace) Status(ctx context.Context, dest string) ([]InstanceStatus, error) {
	if _, err := w.store.GetAsset(ctx, dest); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	recs, err := w.store.ListRecords(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	sources := make(map[string]*store.Asset)
	out := make([]InstanceStatus, 0, len(recs))
	for _, rec := range recs {
		st := InstanceStatus{
			Instance: rec.Import.Instance,
			Source:   rec.Import.Source,
			Tracked:  len(rec.Import.IDMapping),
		}

		src, ok := sources[st.Source]
		if !ok {
			src, err = w.store.GetAsset(ctx, st.Source)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("status: %w", err)
			}
			sources[st.Source] = src
		}

		switch {
		case src == nil:
			st.SourceMissing = true
			st.Stale = true
		default:
			fresh, err := prefab.Extract(src.Hierarchy, rec.Import.SourceRoot)
			if err != nil {
				st.SourceRootGone = true
				st.Stale = true
				break
			}
			digest, err := hierarchy.Digest(fresh)
			if err != nil {
				return nil, fmt.Errorf("status: digest %q: %w", st.Source, err)
			}
			st.Stale = digest != rec.BaseDigest
		}

		st.LastRun, err = w.store.LastRun(ctx, dest, st.Instance)
		if err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
		out = append(out, st)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return hierarchy.CompareIDs(out[i].Instance, out[j].Instance) < 0
	})
	return out, nil
}
