package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// LoadMode controls how errors are handled during scene loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the scenes loaded from a directory.
type LoadResult struct {
	// Scenes are ordered by name.
	Scenes    []*Scene
	FileCount int
}

// Scene returns the scene with the given name, or nil.
func (r *LoadResult) Scene(name string) *Scene {
	for _, s := range r.Scenes {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// LoadError represents an error that occurred during scene loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	// Compile errors
	ErrCodeSceneRoot    = "E101" // Missing or unknown root
	ErrCodeSceneNodes   = "E102" // No nodes declared
	ErrCodeInvalidValue = "E104" // Float, null or non-concrete value
	ErrCodeInvalidID    = "E105" // Malformed or duplicate identity
	ErrCodeUnknownLabel = "E106" // Child or reference to an undeclared label
)

// LoadScenes loads every scene declared under `scene:` in the CUE package
// in dir. If mode is LoadModeFailFast, returns on first error. If mode is
// LoadModeCollectAll, collects all errors.
func LoadScenes(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scenes directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing scenes directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{FileCount: len(cueFiles)}
	errs = compileScenes(value, mode, result)

	if len(result.Scenes) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no scenes found"})
	}
	return result, errs
}

// CompileScenes compiles every scene declared in a CUE source string.
// Used for inline scenes in tests and tooling.
func CompileScenes(src string, mode LoadMode) (*LoadResult, []error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, []error{convertCompileError(formatCUEError(err), "source")}
	}
	result := &LoadResult{}
	return result, compileScenes(value, mode, result)
}

func compileScenes(value cue.Value, mode LoadMode, result *LoadResult) []error {
	var errs []error

	scenesVal := value.LookupPath(cue.ParsePath("scene"))
	if !scenesVal.Exists() {
		return nil
	}
	iter, err := scenesVal.Fields()
	if err != nil {
		return []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating scenes: %v", err)}}
	}
	for iter.Next() {
		s, compileErr := CompileScene(iter.Value())
		if compileErr != nil {
			errs = append(errs, convertCompileError(compileErr, "scene."+iter.Label()))
			if mode == LoadModeFailFast {
				return errs
			}
			continue
		}
		result.Scenes = append(result.Scenes, s)
	}
	sort.Slice(result.Scenes, func(i, j int) bool {
		return result.Scenes[i].Name < result.Scenes[j].Name
	})
	return errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr),
			Message: compileErr.Field + ": " + compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// MapFieldToErrorCode maps a compile error to an error code.
func MapFieldToErrorCode(e *CompileError) string {
	switch {
	case strings.HasSuffix(e.Field, ".root"):
		return ErrCodeSceneRoot
	case strings.HasSuffix(e.Field, ".nodes"):
		return ErrCodeSceneNodes
	case strings.HasSuffix(e.Field, ".id"):
		return ErrCodeInvalidID
	case strings.HasSuffix(e.Field, ".children"), strings.HasSuffix(e.Field, "."+RefKey):
		return ErrCodeUnknownLabel
	case strings.Contains(e.Field, ".components"):
		return ErrCodeInvalidValue
	default:
		return ErrCodeGeneric
	}
}
