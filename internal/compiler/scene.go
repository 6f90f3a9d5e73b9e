package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/google/uuid"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/ir"
)

// RefKey is the field name that marks an identity reference inside
// component fields: {"$ref": "Lamp"} or {"$ref": "<uuid>"}.
const RefKey = ir.RefKey

// Scene is a compiled scene declaration.
type Scene struct {
	Name      string
	Hierarchy *hierarchy.Hierarchy
	// Labels maps each declared label to its identity.
	Labels map[string]hierarchy.ID
}

// CompileScene parses a CUE value into a Scene.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the scene struct itself:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`scene: Lamp: { root: "Lamp", nodes: { Lamp: { children: [] } } }`)
//	s, err := CompileScene(v.LookupPath(cue.ParsePath("scene.Lamp")))
//
// Nodes without an explicit id get hierarchy.LabelID(scene, label). A node
// carries a transform when it declares children (possibly empty) or sets
// transform: true. The result is not validated; see ValidateScene.
func CompileScene(v cue.Value) (*Scene, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	s := &Scene{Labels: make(map[string]hierarchy.ID)}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		s.Name = labels[len(labels)-1].String()
	}
	field := "scene." + s.Name

	rootVal := v.LookupPath(cue.ParsePath("root"))
	if !rootVal.Exists() {
		return nil, &CompileError{Field: field + ".root", Message: "root is required", Pos: v.Pos()}
	}
	rootLabel, err := rootVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}

	nodesVal := v.LookupPath(cue.ParsePath("nodes"))
	if !nodesVal.Exists() {
		return nil, &CompileError{Field: field + ".nodes", Message: "at least one node is required", Pos: v.Pos()}
	}

	// First pass: assign identities so children and refs can point forward.
	var order []string
	declared := make(map[hierarchy.ID]string)
	iter, err := nodesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Label()
		id, err := nodeID(s.Name, label, iter.Value(), field)
		if err != nil {
			return nil, err
		}
		if prev, dup := declared[id]; dup {
			return nil, &CompileError{
				Field:   fmt.Sprintf("%s.nodes.%s.id", field, label),
				Message: fmt.Sprintf("identity %s already used by %q", id, prev),
				Pos:     iter.Value().Pos(),
			}
		}
		declared[id] = label
		s.Labels[label] = id
		order = append(order, label)
	}

	rootID, ok := s.Labels[rootLabel]
	if !ok {
		return nil, &CompileError{
			Field:   field + ".root",
			Message: fmt.Sprintf("root %q is not a declared node", rootLabel),
			Pos:     rootVal.Pos(),
		}
	}
	s.Hierarchy = hierarchy.New(rootID)

	// Second pass: build nodes.
	for _, label := range order {
		nv := nodesVal.LookupPath(cue.MakePath(cue.Str(label)))
		n, err := compileNode(s, label, nv, fmt.Sprintf("%s.nodes.%s", field, label))
		if err != nil {
			return nil, err
		}
		if err := s.Hierarchy.Add(n); err != nil {
			return nil, &CompileError{Field: field + ".nodes." + label, Message: err.Error(), Pos: nv.Pos()}
		}
	}

	return s, nil
}

// nodeID returns the explicit id of a node, or its label identity.
func nodeID(scene, label string, v cue.Value, field string) (hierarchy.ID, error) {
	idVal := v.LookupPath(cue.ParsePath("id"))
	if !idVal.Exists() {
		return hierarchy.LabelID(scene, label), nil
	}
	str, err := idVal.String()
	if err != nil {
		return uuid.Nil, formatCUEError(err)
	}
	id, err := uuid.Parse(str)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, &CompileError{
			Field:   fmt.Sprintf("%s.nodes.%s.id", field, label),
			Message: fmt.Sprintf("invalid identity %q", str),
			Pos:     idVal.Pos(),
		}
	}
	return id, nil
}

// compileNode builds one node.
func compileNode(s *Scene, label string, v cue.Value, field string) (*hierarchy.Node, error) {
	n := hierarchy.NewNode(s.Labels[label], label)

	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		n.Name = name
	}

	if tv := v.LookupPath(cue.ParsePath("transform")); tv.Exists() {
		on, err := tv.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if on {
			n.Transform = &hierarchy.Transform{}
		}
	}

	if cv := v.LookupPath(cue.ParsePath("children")); cv.Exists() {
		if n.Transform == nil {
			n.Transform = &hierarchy.Transform{}
		}
		list, err := cv.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for list.Next() {
			childLabel, err := list.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			id, ok := s.Labels[childLabel]
			if !ok {
				return nil, &CompileError{
					Field:   field + ".children",
					Message: fmt.Sprintf("unknown child %q", childLabel),
					Pos:     list.Value().Pos(),
				}
			}
			n.Transform.Children = append(n.Transform.Children, id)
		}
	}

	if cv := v.LookupPath(cue.ParsePath("components")); cv.Exists() {
		iter, err := cv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			kind := iter.Label()
			val, err := convertValue(s, iter.Value(), field+".components."+kind)
			if err != nil {
				return nil, err
			}
			obj, ok := val.(ir.IRObject)
			if !ok {
				return nil, &CompileError{
					Field:   field + ".components." + kind,
					Message: "component must be a struct",
					Pos:     iter.Value().Pos(),
				}
			}
			n.SetComponent(kind, obj)
		}
	}

	return n, nil
}

// convertValue converts a concrete CUE value to an IR value.
// Floats and nulls are forbidden.
func convertValue(s *Scene, v cue.Value, field string) (ir.IRValue, error) {
	switch v.IncompleteKind() {
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   field,
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	case cue.NullKind:
		return nil, &CompileError{Field: field, Message: "null values are forbidden", Pos: v.Pos()}
	}
	if !v.IsConcrete() {
		return nil, &CompileError{Field: field, Message: "value must be concrete", Pos: v.Pos()}
	}

	switch v.Kind() {
	case cue.StringKind:
		str, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(str), nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRInt(i), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.ListKind:
		list, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for i := 0; list.Next(); i++ {
			elem, err := convertValue(s, list.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		return convertStruct(s, v, field)
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

func convertStruct(s *Scene, v cue.Value, field string) (ir.IRValue, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	obj := ir.IRObject{}
	var ref *cue.Value
	for iter.Next() {
		label := iter.Label()
		if label == RefKey {
			val := iter.Value()
			ref = &val
			continue
		}
		val, err := convertValue(s, iter.Value(), field+"."+label)
		if err != nil {
			return nil, err
		}
		obj[label] = val
	}
	if ref == nil {
		return obj, nil
	}
	if len(obj) > 0 {
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be the only field of a reference", RefKey),
			Pos:     v.Pos(),
		}
	}
	target, err := ref.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	if id, ok := s.Labels[target]; ok {
		return ir.Ref(id), nil
	}
	id, err := uuid.Parse(target)
	if err != nil {
		return nil, &CompileError{
			Field:   field + "." + RefKey,
			Message: fmt.Sprintf("%q is neither a node label nor an identity", target),
			Pos:     ref.Pos(),
		}
	}
	return ir.Ref(id), nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
