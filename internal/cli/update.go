package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/graft/internal/config"
	"github.com/roach88/graft/internal/merge"
	"github.com/roach88/graft/internal/workspace"
)

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Dest     string
	Instance string
	Source   string
}

// SessionOutput reports one sync session.
type SessionOutput struct {
	Dest      string   `json:"dest"`
	Instance  string   `json:"instance"`
	Source    string   `json:"source,omitempty"`
	OK        bool     `json:"ok"`
	Merged    int      `json:"merged"`
	Added     int      `json:"added"`
	Removed   int      `json:"removed"`
	Conflicts int      `json:"conflicts"`
	Warnings  []string `json:"warnings,omitempty"`
	Error     string   `json:"error,omitempty"`
	Code      string   `json:"code,omitempty"`
}

// UpdateOutput is the JSON payload of the update command.
type UpdateOutput struct {
	Policy   string          `json:"policy"`
	Sessions []SessionOutput `json:"sessions"`
	Failed   int             `json:"failed"`
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Synchronize imported instances with their source",
		Long: `Bring imported instances up to date with their source asset.

Either name one instance with --dest and --instance, or pass --source to
update every instance of that source across all destinations. Sessions
that fail are journaled and leave their destination unchanged.

Policies: remote-as-new-base (default), prefer-local, prefer-remote, strict.

Examples:
  graft update --dest Room --instance 0190a000-0000-7000-8000-000000000001
  graft update --source Lamp --policy prefer-remote`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dest, "dest", "", "destination asset locator")
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "instance root identity in the destination")
	cmd.Flags().StringVar(&opts.Source, "source", "", "update every instance of this source asset")
	addSyncFlags(cmd)
	cmd.MarkFlagsRequiredTogether("dest", "instance")
	cmd.MarkFlagsMutuallyExclusive("source", "dest")
	cmd.MarkFlagsOneRequired("source", "dest")

	return cmd
}

// addSyncFlags adds the flags that override sync configuration.
func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().String("policy", string(merge.DefaultPolicy), "merge policy")
	cmd.Flags().Int("parallelism", config.DefaultParallelism, "destinations updated concurrently")
}

func runUpdate(opts *UpdateOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	ws, closeFn, err := opts.openWorkspace(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()
	policy := opts.Config.Policy()

	out := UpdateOutput{Policy: string(policy)}
	if opts.Source != "" {
		outcomes, err := ws.UpdateAll(ctx, opts.Source, policy)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeSyncFailed, err.Error(), nil)
		}
		for _, o := range outcomes {
			out.Sessions = append(out.Sessions, sessionOutput(o.Dest, o.Instance.String(), o.Result, o.Err))
		}
	} else {
		instance, err := parseOptionalID("instance", opts.Instance)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidFlag, err.Error(), nil)
		}
		res, err := ws.Update(ctx, opts.Dest, instance, policy)
		out.Sessions = append(out.Sessions, sessionOutput(opts.Dest, opts.Instance, res, err))
	}
	for _, s := range out.Sessions {
		if !s.OK {
			out.Failed++
		}
	}

	if formatter.Format == "json" {
		if err := formatter.Success(out); err != nil {
			return err
		}
	} else {
		printSessions(formatter, out)
	}
	if out.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d session(s) failed", out.Failed))
	}
	return nil
}

func sessionOutput(dest, instance string, res *workspace.UpdateResult, err error) SessionOutput {
	s := SessionOutput{Dest: dest, Instance: instance}
	if err != nil {
		s.Error = err.Error()
		s.Code = syncErrorCode(err)
		return s
	}
	s.OK = true
	s.Source = res.Source
	s.Merged = res.Report.Merged
	s.Added = res.Report.Added
	s.Removed = res.Report.Removed
	s.Conflicts = res.Report.Conflicts
	s.Warnings = warningStrings(res.Warnings)
	return s
}

func printSessions(formatter *OutputFormatter, out UpdateOutput) {
	w := formatter.Writer
	if len(out.Sessions) == 0 {
		fmt.Fprintln(w, "No instances to update.")
		return
	}
	for _, s := range out.Sessions {
		if !s.OK {
			fmt.Fprintf(w, "✗ %s %s: %s\n", s.Dest, s.Instance, s.Error)
			continue
		}
		fmt.Fprintf(w, "✓ %s %s: merged %d, added %d, removed %d, conflicts %d\n",
			s.Dest, s.Instance, s.Merged, s.Added, s.Removed, s.Conflicts)
		for _, warn := range s.Warnings {
			fmt.Fprintf(w, "  warning %s\n", warn)
		}
	}
	fmt.Fprintf(w, "\n%d session(s), %d failed (policy %s)\n", len(out.Sessions), out.Failed, out.Policy)
}
