package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/ir"
	"github.com/roach88/graft/internal/merge"
	"github.com/roach88/graft/internal/prefab"
	"github.com/roach88/graft/internal/store"
	"github.com/roach88/graft/internal/testutil"
	"github.com/roach88/graft/internal/workspace"
)

// Asset locators inside the scenario workspace.
const (
	SourceLocator = "prefabs/source"
	DestLocator   = "scenes/dest"
)

// Label scopes. Source and destination labels hash to distinct identities;
// nodes added by edit_dest use their own scope so they never collide with
// imported nodes.
const (
	sourceScope = "src"
	destScope   = "dst"
	localScope  = "local"
)

// generatorPrefix tags identities minted by imports and updates.
const generatorPrefix = 0xa0

// defaultDest is used when a scenario declares no destination.
var defaultDest = Tree{
	Root:  "Scene",
	Nodes: map[string]NodeSpec{"Scene": {Group: true}},
}

// Harness executes one scenario against a real workspace backed by an
// in-memory store.
type Harness struct {
	ws     *workspace.Workspace
	store  *store.Store
	logger *slog.Logger

	source     *hierarchy.Hierarchy
	srcLabels  map[string]hierarchy.ID
	destLabels map[string]hierarchy.ID

	// instance is the root of the most recent import.
	instance hierarchy.ID
	// last is the most recent successful update.
	last *workspace.UpdateResult
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a sequential
// identity generator, so repeated runs produce identical traces.
// A returned error means the scenario itself could not be executed
// (bad labels, impossible edits); failed expectations and assertions are
// reported in Result.Errors instead.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	syncer := prefab.NewSyncer(
		prefab.WithGenerator(testutil.NewSequentialGenerator(generatorPrefix)),
		prefab.WithLogger(logger),
	)
	ws, err := workspace.New(ctx, st,
		workspace.WithSyncer(syncer),
		workspace.WithLogger(logger),
		workspace.WithClock(workspace.ClockAfter(0)),
	)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		ws:         ws,
		store:      st,
		logger:     logger,
		srcLabels:  make(map[string]hierarchy.ID),
		destLabels: make(map[string]hierarchy.ID),
	}

	h.source, err = buildTree(sourceScope, scenario.Source, h.srcLabels)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	destTree := defaultDest
	if scenario.Dest != nil {
		destTree = *scenario.Dest
	}
	dest, err := buildTree(destScope, destTree, h.destLabels)
	if err != nil {
		return nil, fmt.Errorf("dest: %w", err)
	}
	if _, err := ws.PutAsset(ctx, SourceLocator, h.source); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if _, err := ws.PutAsset(ctx, DestLocator, dest); err != nil {
		return nil, fmt.Errorf("dest: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	final, err := ws.Asset(ctx, DestLocator)
	if err != nil {
		return nil, fmt.Errorf("failed to load final destination: %w", err)
	}
	actx := &AssertionContext{
		Dest:    final.Hierarchy,
		Resolve: h.resolveFunc(ctx),
		Last:    h.last,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, n int, step Step, result *Result) error {
	switch {
	case step.Import != nil:
		return h.executeImport(ctx, n, step.Import, result)
	case step.EditSource != nil:
		return h.executeEditSource(ctx, n, step.EditSource, result)
	case step.EditDest != nil:
		return h.executeEditDest(ctx, n, step.EditDest, result)
	case step.Update != nil:
		return h.executeUpdate(ctx, n, step.Update, result)
	}
	return fmt.Errorf("empty step")
}

func (h *Harness) executeImport(ctx context.Context, n int, step *ImportStep, result *Result) error {
	var parent hierarchy.ID
	if step.Parent != "" {
		id, ok := h.resolve(ctx, step.Parent)
		if !ok {
			return fmt.Errorf("import: unknown parent %q", step.Parent)
		}
		parent = id
	}

	res, err := h.ws.Import(ctx, workspace.ImportRequest{
		Source: SourceLocator,
		Dest:   DestLocator,
		Parent: parent,
	})
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	h.instance = res.Instance

	result.AddTrace(TraceEvent{
		Step:     n,
		Kind:     KindImport,
		Nodes:    res.Nodes,
		Added:    res.Nodes,
		Warnings: warningCodes(res.Warnings),
	})
	return nil
}

func (h *Harness) executeEditSource(ctx context.Context, n int, e *Edit, result *Result) error {
	sp := labelSpace{
		scope:  sourceScope,
		labels: h.srcLabels,
		resolve: func(label string) (hierarchy.ID, bool) {
			id, ok := h.srcLabels[label]
			return id, ok
		},
	}
	if err := applyEdit(h.source, e, sp); err != nil {
		return fmt.Errorf("edit_source: %w", err)
	}
	if _, err := h.ws.PutAsset(ctx, SourceLocator, h.source); err != nil {
		return fmt.Errorf("edit_source: %w", err)
	}
	result.AddTrace(TraceEvent{Step: n, Kind: KindEditSource, Nodes: h.source.Len()})
	return nil
}

func (h *Harness) executeEditDest(ctx context.Context, n int, e *Edit, result *Result) error {
	asset, err := h.ws.Asset(ctx, DestLocator)
	if err != nil {
		return fmt.Errorf("edit_dest: %w", err)
	}
	dest := asset.Hierarchy
	sp := labelSpace{
		scope:   localScope,
		labels:  h.destLabels,
		resolve: h.resolveFunc(ctx),
	}
	if err := applyEdit(dest, e, sp); err != nil {
		return fmt.Errorf("edit_dest: %w", err)
	}
	if _, err := h.ws.PutAsset(ctx, DestLocator, dest); err != nil {
		return fmt.Errorf("edit_dest: %w", err)
	}
	result.AddTrace(TraceEvent{Step: n, Kind: KindEditDest, Nodes: dest.Len()})
	return nil
}

func (h *Harness) executeUpdate(ctx context.Context, n int, step *UpdateStep, result *Result) error {
	policy, err := merge.ParsePolicy(step.Policy)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	ev := TraceEvent{Step: n, Kind: KindUpdate}
	res, err := h.ws.Update(ctx, DestLocator, h.instance, policy)
	if err != nil {
		code, ok := prefab.CodeOf(err)
		if !ok {
			return fmt.Errorf("update: %w", err)
		}
		ev.Error = string(code)
		switch {
		case step.ExpectError == "":
			result.AddError(fmt.Sprintf("step %d: update failed: %v", n, err))
		case step.ExpectError != ev.Error:
			result.AddError(fmt.Sprintf("step %d: expected error %s, got %s", n, step.ExpectError, ev.Error))
		}
	} else {
		if step.ExpectError != "" {
			result.AddError(fmt.Sprintf("step %d: expected error %s, update succeeded", n, step.ExpectError))
		}
		h.last = res
		ev.Merged = res.Report.Merged
		ev.Added = res.Report.Added
		ev.Removed = res.Report.Removed
		ev.Skipped = res.Report.Skipped
		ev.Conflicts = res.Report.Conflicts
		ev.Warnings = warningCodes(res.Warnings)
	}

	asset, err := h.ws.Asset(ctx, DestLocator)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	ev.Nodes = asset.Hierarchy.Len()
	result.AddTrace(ev)
	return nil
}

// resolve maps a label to its destination identity. Destination and local
// labels win; source labels resolve through the latest import record.
func (h *Harness) resolve(ctx context.Context, label string) (hierarchy.ID, bool) {
	if id, ok := h.destLabels[label]; ok {
		return id, true
	}
	srcID, ok := h.srcLabels[label]
	if !ok || h.instance == uuid.Nil {
		return uuid.Nil, false
	}
	rec, err := h.store.GetRecord(ctx, DestLocator, h.instance)
	if err != nil {
		h.logger.Debug("record lookup failed", "label", label, "error", err)
		return uuid.Nil, false
	}
	id, ok := rec.Import.Reverse()[srcID]
	return id, ok
}

func (h *Harness) resolveFunc(ctx context.Context) func(string) (hierarchy.ID, bool) {
	return func(label string) (hierarchy.ID, bool) {
		return h.resolve(ctx, label)
	}
}

// buildTree materializes a labelled tree. Nodes are added in label order
// so the resulting hierarchy does not depend on map iteration.
func buildTree(scope string, t Tree, labels map[string]hierarchy.ID) (*hierarchy.Hierarchy, error) {
	for label := range t.Nodes {
		labels[label] = hierarchy.LabelID(scope, label)
	}
	resolve := func(label string) (hierarchy.ID, bool) {
		id, ok := labels[label]
		return id, ok
	}

	h := hierarchy.New(labels[t.Root])
	for _, label := range sortedKeys(t.Nodes) {
		spec := t.Nodes[label]
		id := labels[label]
		name := spec.Name
		if name == "" {
			name = label
		}

		n := hierarchy.NewNode(id, name)
		if spec.Group || len(spec.Children) > 0 {
			children := make([]hierarchy.ID, 0, len(spec.Children))
			for _, c := range spec.Children {
				children = append(children, labels[c])
			}
			n = hierarchy.NewGroup(id, name, children...)
		}
		for _, kind := range sortedKeys(spec.Components) {
			obj, err := componentObject(spec.Components[kind], resolve)
			if err != nil {
				return nil, fmt.Errorf("nodes.%s.components.%s: %w", label, kind, err)
			}
			n.SetComponent(kind, obj)
		}
		if err := h.Add(n); err != nil {
			return nil, fmt.Errorf("nodes.%s: %w", label, err)
		}
	}
	return h, nil
}

// componentObject converts YAML component fields to IR. A {"$ref": label}
// value is rewritten to the label's identity first.
func componentObject(fields map[string]any, resolve func(string) (hierarchy.ID, bool)) (ir.IRObject, error) {
	v, err := ir.FromGo(resolveRefs(fields, resolve))
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("component must be an object")
	}
	return obj, nil
}

func resolveRefs(v any, resolve func(string) (hierarchy.ID, bool)) any {
	switch val := v.(type) {
	case map[string]any:
		if target, ok := val[ir.RefKey].(string); ok && len(val) == 1 {
			if id, ok := resolve(target); ok {
				return map[string]any{ir.RefKey: id.String()}
			}
			return val
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = resolveRefs(elem, resolve)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = resolveRefs(elem, resolve)
		}
		return out
	default:
		return v
	}
}

func warningCodes(ws []prefab.Warning) []string {
	if len(ws) == 0 {
		return nil
	}
	codes := make([]string, len(ws))
	for i, w := range ws {
		codes[i] = string(w.Code)
	}
	sort.Strings(codes)
	return codes
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
