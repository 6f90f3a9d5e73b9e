package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/graft/internal/compiler"
	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/store"
	"github.com/roach88/graft/internal/workspace"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Prefix string // locator prefix
}

// PutResult describes one stored scene.
type PutResult struct {
	Locator string `json:"locator"`
	Nodes   int    `json:"nodes"`
	Digest  string `json:"digest"`
	// Changed is false when the stored asset already had this content.
	Changed bool `json:"changed"`
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <scenes-dir>",
		Short: "Compile scenes and store them as assets",
		Long: `Compile and validate the CUE scenes in a directory, then store each
scene as an asset whose locator is the scene name (with --prefix prepended).
Scenes whose content is unchanged are not rewritten.

Examples:
  graft put ./scenes
  graft put ./prefabs --prefix prefabs/`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "prefix for asset locators")

	return cmd
}

func runPut(opts *PutOptions, dir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	scenes, err := loadScenes(formatter, dir, compiler.LoadModeCollectAll)
	if err != nil {
		return err
	}
	if err := requireValid(formatter, scenes); err != nil {
		return err
	}

	ws, closeFn, err := opts.openWorkspace(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	results, err := putScenes(ctx, ws, scenes, opts.Prefix)
	if err != nil {
		return formatter.Fail(ExitCommandError, compiler.ErrCodeWriteFailed, err.Error(), nil)
	}

	if formatter.Format == "json" {
		return formatter.Success(results)
	}
	for _, r := range results {
		state := "unchanged"
		if r.Changed {
			state = "stored"
		}
		fmt.Fprintf(formatter.Writer, "%s %s (%d nodes, %s)\n", state, r.Locator, r.Nodes, shortDigest(r.Digest))
	}
	return nil
}

// requireValid fails when any scene breaks the forest rules.
func requireValid(formatter *OutputFormatter, scenes []*compiler.Scene) error {
	var problems []compiler.ValidationError
	for _, s := range scenes {
		for _, v := range compiler.ValidateScene(s) {
			if !v.Warning {
				problems = append(problems, v)
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return formatter.Fail(ExitFailure, problems[0].Code,
		fmt.Sprintf("%d scene validation error(s); first: %s", len(problems), problems[0].Error()), problems)
}

// putScenes stores each scene whose content differs from the stored asset.
func putScenes(ctx context.Context, ws *workspace.Workspace, scenes []*compiler.Scene, prefix string) ([]PutResult, error) {
	results := make([]PutResult, 0, len(scenes))
	for _, s := range scenes {
		locator := prefix + s.Name
		digest, err := hierarchy.Digest(s.Hierarchy)
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", s.Name, err)
		}

		r := PutResult{Locator: locator, Nodes: s.Hierarchy.Len(), Digest: digest}
		existing, err := ws.Asset(ctx, locator)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return nil, err
		case existing.Digest == digest:
			results = append(results, r)
			continue
		}

		if _, err := ws.PutAsset(ctx, locator, s.Hierarchy); err != nil {
			return nil, err
		}
		r.Changed = true
		results = append(results, r)
	}
	return results, nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
