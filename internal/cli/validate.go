package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/graft/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Scenes   int                        `json:"scenes"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.ValidationError `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenes-dir>",
		Short: "Compile scenes and check the forest rules",
		Long: `Compile the CUE scenes in a directory and check each one: a declared
root, resolvable children, no node with two parents, no cycles and
non-empty names. References that leave the scene are reported as
warnings; they do not fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	scenes, err := loadScenes(formatter, dir, compiler.LoadModeCollectAll)
	if err != nil {
		return err
	}

	result := ValidationResult{Valid: true, Scenes: len(scenes)}
	for _, s := range scenes {
		formatter.VerboseLog("Validating scene: %s", s.Name)
		for _, v := range compiler.ValidateScene(s) {
			if v.Warning {
				result.Warnings = append(result.Warnings, v)
				continue
			}
			result.Errors = append(result.Errors, v)
			result.Valid = false
		}
	}

	if formatter.Format == "json" {
		if result.Valid {
			return formatter.Success(result)
		}
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    result.Errors[0].Code,
				Message: fmt.Sprintf("%d validation error(s)", len(result.Errors)),
			},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	w := formatter.Writer
	for _, v := range result.Warnings {
		fmt.Fprintf(w, "warning %s\n", v.Error())
	}
	if !result.Valid {
		fmt.Fprintln(w, "✗ Validation failed")
		fmt.Fprintln(w)
		for _, v := range result.Errors {
			fmt.Fprintf(w, "  %s\n", v.Error())
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}
	fmt.Fprintf(w, "✓ %d scene(s) valid\n", result.Scenes)
	return nil
}
