package cli

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/graft/internal/workspace"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Dest string
}

// InstanceRow is one tracked instance in the status output.
type InstanceRow struct {
	Dest     string `json:"dest"`
	Instance string `json:"instance"`
	Source   string `json:"source"`
	Tracked  int    `json:"tracked"`
	State    string `json:"state"`
	LastRun  string `json:"last_run,omitempty"`
	LastErr  string `json:"last_error,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tracked instances and whether they are up to date",
		Long: `List every imported instance with its source, the number of linked
nodes and whether the source changed since the last sync. Without --dest,
all destinations in the database are listed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dest, "dest", "", "destination asset locator (default: all)")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	ws, closeFn, err := opts.openWorkspace(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	dests := []string{opts.Dest}
	if opts.Dest == "" {
		recs, err := ws.Store().AllRecords(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		seen := make(map[string]bool)
		dests = dests[:0]
		for _, rec := range recs {
			if !seen[rec.Dest] {
				seen[rec.Dest] = true
				dests = append(dests, rec.Dest)
			}
		}
		sort.Strings(dests)
	}

	rows := make([]InstanceRow, 0)
	for _, dest := range dests {
		statuses, err := ws.Status(ctx, dest)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, err.Error(), nil)
		}
		for _, st := range statuses {
			rows = append(rows, instanceRow(dest, st))
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(rows)
	}

	tableRows := make([]table.Row, len(rows))
	for i, r := range rows {
		tableRows[i] = table.Row{r.Dest, r.Instance, r.Source, r.Tracked, r.State, r.LastRun}
	}
	formatter.Table(table.Row{"DEST", "INSTANCE", "SOURCE", "TRACKED", "STATE", "LAST RUN"}, tableRows)
	return nil
}

func instanceRow(dest string, st workspace.InstanceStatus) InstanceRow {
	r := InstanceRow{
		Dest:     dest,
		Instance: st.Instance.String(),
		Source:   st.Source,
		Tracked:  st.Tracked,
		State:    instanceState(st),
	}
	if st.LastRun != nil {
		r.LastRun = fmt.Sprintf("%s %s @%d", st.LastRun.Kind, st.LastRun.Status, st.LastRun.Seq)
		r.LastErr = st.LastRun.Error
	}
	return r
}

func instanceState(st workspace.InstanceStatus) string {
	switch {
	case st.SourceMissing:
		return "source missing"
	case st.SourceRootGone:
		return "root gone"
	case st.Stale:
		return "stale"
	default:
		return "up to date"
	}
}
