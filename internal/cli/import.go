package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/prefab"
	"github.com/roach88/graft/internal/workspace"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Source string
	Dest   string
	Root   string
	Parent string
}

// ImportOutput is the JSON payload of the import command.
type ImportOutput struct {
	Dest     string   `json:"dest"`
	Instance string   `json:"instance"`
	Created  bool     `json:"created"`
	Nodes    int      `json:"nodes"`
	Digest   string   `json:"digest"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a source asset into a destination asset",
		Long: `Copy the subgraph of a source asset into a destination asset under
fresh identities and record the link so later updates can follow the
source. A destination that does not exist is created from the copy.

Examples:
  graft import --source Lamp --dest Room
  graft import --source Lamp --dest Room --parent 0190a000-0000-7000-8000-000000000001`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "source asset locator (required)")
	cmd.Flags().StringVar(&opts.Dest, "dest", "", "destination asset locator (required)")
	cmd.Flags().StringVar(&opts.Root, "root", "", "source root identity (default: the asset root)")
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "destination parent identity (default: the destination root)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("dest")

	return cmd
}

func runImport(opts *ImportOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	root, err := parseOptionalID("root", opts.Root)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidFlag, err.Error(), nil)
	}
	parent, err := parseOptionalID("parent", opts.Parent)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidFlag, err.Error(), nil)
	}

	ws, closeFn, err := opts.openWorkspace(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := ws.Import(ctx, workspace.ImportRequest{
		Source:     opts.Source,
		Dest:       opts.Dest,
		SourceRoot: root,
		Parent:     parent,
	})
	if err != nil {
		return formatter.Fail(ExitFailure, syncErrorCode(err), err.Error(), nil)
	}

	out := ImportOutput{
		Dest:     res.Dest,
		Instance: res.Instance.String(),
		Created:  res.Created,
		Nodes:    res.Nodes,
		Digest:   res.Digest,
		Warnings: warningStrings(res.Warnings),
	}
	if formatter.Format == "json" {
		return formatter.Success(out)
	}

	verb := "imported into"
	if out.Created {
		verb = "created"
	}
	fmt.Fprintf(formatter.Writer, "✓ %s %s %s: instance %s, %d node(s)\n", opts.Source, verb, out.Dest, out.Instance, out.Nodes)
	for _, w := range out.Warnings {
		fmt.Fprintf(formatter.Writer, "  warning %s\n", w)
	}
	return nil
}

// parseOptionalID parses a UUID flag value. Empty means unset.
func parseOptionalID(flag, value string) (hierarchy.ID, error) {
	if value == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s: invalid identity %q: %v", flag, value, err)
	}
	return id, nil
}

// syncErrorCode returns the prefab error code of err, or a generic code.
func syncErrorCode(err error) string {
	if code, ok := prefab.CodeOf(err); ok {
		return string(code)
	}
	return ErrCodeSyncFailed
}

func warningStrings(ws []prefab.Warning) []string {
	if len(ws) == 0 {
		return nil
	}
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.String()
	}
	return out
}
