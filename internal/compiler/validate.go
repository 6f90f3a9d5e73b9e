package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/graft/internal/hierarchy"
)

// Validation error codes (E100-E199)
const (
	// Scene errors (E120-E129)
	ErrSceneMissingRoot   = "E120" // root node absent
	ErrSceneDanglingChild = "E121" // child reference does not resolve
	ErrSceneSharedChild   = "E122" // node listed by two parents
	ErrSceneRootAsChild   = "E123" // root listed as a child
	ErrSceneCycle         = "E124" // parent relation has a cycle
	ErrSceneEmptyName     = "E125" // node name is blank
	ErrSceneDanglingRef   = "E126" // component reference outside the scene
)

// ValidationError represents a scene validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	// Warning marks findings that do not make the scene unusable.
	Warning bool `json:"warning,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateScene checks a compiled scene.
// Returns all errors found (does not fail-fast). Forest violations are
// errors; references to identities outside the scene are warnings because
// they may point into a scene the asset is later imported into.
func ValidateScene(s *Scene) []ValidationError {
	var errs []ValidationError
	labels := make(map[hierarchy.ID]string, len(s.Labels))
	for label, id := range s.Labels {
		labels[id] = label
	}
	name := func(id hierarchy.ID) string {
		if l, ok := labels[id]; ok {
			return l
		}
		return id.String()
	}
	field := "scene." + s.Name

	if err := s.Hierarchy.Validate(); err != nil {
		var verr *hierarchy.ValidationError
		if !errors.As(err, &verr) {
			return []ValidationError{{Field: field, Message: err.Error(), Code: ErrSceneMissingRoot}}
		}
		for _, p := range verr.Problems {
			errs = append(errs, problemError(field, p, name))
		}
	}

	for _, n := range s.Hierarchy.Nodes() {
		if strings.TrimSpace(n.Name) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.nodes.%s.name", field, name(n.ID)),
				Message: "name must be non-empty",
				Code:    ErrSceneEmptyName,
			})
		}
		for _, ref := range n.Refs() {
			if !s.Hierarchy.Contains(ref) {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.nodes.%s.components", field, name(n.ID)),
					Message: fmt.Sprintf("reference %s does not resolve inside the scene", ref),
					Code:    ErrSceneDanglingRef,
					Warning: true,
				})
			}
		}
	}

	return errs
}

func problemError(field string, p hierarchy.Problem, name func(hierarchy.ID) string) ValidationError {
	switch p.Kind {
	case hierarchy.ProblemMissingRoot:
		return ValidationError{Field: field + ".root", Message: "root node is not declared", Code: ErrSceneMissingRoot}
	case hierarchy.ProblemDanglingChild:
		return ValidationError{
			Field:   fmt.Sprintf("%s.nodes.%s.children", field, name(p.Node)),
			Message: fmt.Sprintf("child %s does not exist", name(p.Other)),
			Code:    ErrSceneDanglingChild,
		}
	case hierarchy.ProblemSharedChild:
		return ValidationError{
			Field:   fmt.Sprintf("%s.nodes.%s.children", field, name(p.Other)),
			Message: fmt.Sprintf("%s already has parent %s", name(p.Node), name(p.Other)),
			Code:    ErrSceneSharedChild,
		}
	case hierarchy.ProblemRootHasParent:
		return ValidationError{
			Field:   fmt.Sprintf("%s.nodes.%s.children", field, name(p.Node)),
			Message: fmt.Sprintf("root %s cannot be a child", name(p.Other)),
			Code:    ErrSceneRootAsChild,
		}
	default:
		return ValidationError{
			Field:   fmt.Sprintf("%s.nodes.%s.children", field, name(p.Node)),
			Message: fmt.Sprintf("%s closes a parent cycle", name(p.Other)),
			Code:    ErrSceneCycle,
		}
	}
}

// HasErrors reports whether errs contains anything other than warnings.
func HasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if !e.Warning {
			return true
		}
	}
	return false
}
