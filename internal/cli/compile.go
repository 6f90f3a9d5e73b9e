package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/graft/internal/compiler"
	"github.com/roach88/graft/internal/hierarchy"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output directory
}

// SceneSummary describes one compiled scene.
type SceneSummary struct {
	Name   string `json:"name"`
	Root   string `json:"root"`
	Nodes  int    `json:"nodes"`
	Digest string `json:"digest"`
	File   string `json:"file,omitempty"`
}

// CompilationResult holds the compiled scenes.
type CompilationResult struct {
	Scenes []SceneSummary `json:"scenes"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <scenes-dir>",
		Short: "Compile CUE scenes to canonical hierarchy documents",
		Long: `Compile the CUE scenes in a directory to canonical hierarchy documents.

With --output, each scene is written to <output>/<scene>.json. The
document is the same canonical form the store digests.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output directory for canonical documents")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	scenes, err := loadScenes(formatter, dir, compiler.LoadModeCollectAll)
	if err != nil {
		return err
	}

	result := &CompilationResult{Scenes: make([]SceneSummary, 0, len(scenes))}
	if opts.Output != "" {
		if err := os.MkdirAll(opts.Output, 0755); err != nil {
			return formatter.Fail(ExitCommandError, compiler.ErrCodeWriteFailed, fmt.Sprintf("creating output directory: %v", err), nil)
		}
	}

	for _, s := range scenes {
		formatter.VerboseLog("Compiled scene: %s (%d nodes)", s.Name, s.Hierarchy.Len())
		summary, doc, err := summarize(s)
		if err != nil {
			return formatter.Fail(ExitCommandError, compiler.ErrCodeGeneric, fmt.Sprintf("scene %s: %v", s.Name, err), nil)
		}
		if opts.Output != "" {
			summary.File = filepath.Join(opts.Output, s.Name+".json")
			if err := os.WriteFile(summary.File, doc, 0644); err != nil {
				return formatter.Fail(ExitCommandError, compiler.ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			}
		}
		result.Scenes = append(result.Scenes, summary)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d scene(s)\n\n", len(result.Scenes))
	for _, s := range result.Scenes {
		fmt.Fprintf(formatter.Writer, "  %s: %d node(s), root %s\n", s.Name, s.Nodes, s.Root)
		if s.File != "" {
			fmt.Fprintf(formatter.Writer, "    wrote %s\n", s.File)
		}
	}
	return nil
}

// summarize returns a scene's summary and canonical document.
func summarize(s *compiler.Scene) (SceneSummary, []byte, error) {
	doc, err := hierarchy.MarshalDocument(s.Hierarchy)
	if err != nil {
		return SceneSummary{}, nil, err
	}
	digest, err := hierarchy.Digest(s.Hierarchy)
	if err != nil {
		return SceneSummary{}, nil, err
	}
	return SceneSummary{
		Name:   s.Name,
		Root:   s.Hierarchy.Root.String(),
		Nodes:  s.Hierarchy.Len(),
		Digest: digest,
	}, doc, nil
}

// loadScenes loads every scene in dir and reports load or compile errors.
// The returned error is already formatted for the user.
func loadScenes(formatter *OutputFormatter, dir string, mode compiler.LoadMode) ([]*compiler.Scene, error) {
	result, errs := compiler.LoadScenes(dir, mode)
	if result == nil && len(errs) > 0 {
		code, message := parseLoadError(errs[0])
		return nil, formatter.Fail(ExitCommandError, code, message, nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, dir)
	if len(errs) > 0 {
		return nil, outputLoadErrors(formatter, errs)
	}
	return result.Scenes, nil
}

// outputLoadErrors reports every compile error.
func outputLoadErrors(formatter *OutputFormatter, errs []error) error {
	cliErrors := make([]CLIError, len(errs))
	for i, err := range errs {
		code, message := parseLoadError(err)
		cliErrors[i] = CLIError{Code: code, Message: message}
	}

	if formatter.Format == "json" {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for i, err := range errs {
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", cliErrors[i].Code, cliErrors[i].Message)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseLoadError extracts error code and message from an error.
func parseLoadError(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compiler.MapFieldToErrorCode(compileErr), compileErr.Message
	}
	return compiler.ErrCodeGeneric, err.Error()
}
