package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/graft/internal/config"
	"github.com/roach88/graft/internal/prefab"
	"github.com/roach88/graft/internal/store"
	"github.com/roach88/graft/internal/workspace"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Config and Logger are set by loadConfig before a command runs.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the graft CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "graft",
		Short: "graft - hierarchy import and synchronization",
		Long: `Import subgraphs of one hierarchy asset into another and keep the
copies in step with their source through three-way merges.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.loadConfig(cmd)
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigFile, "config", "", "config file (default: ./graft.yaml if present)")
	pf.String("db", config.DefaultDatabase, "path to SQLite database")
	pf.String("log-format", config.DefaultLogFormat, "log format (text|json)")
	pf.String("identity", config.DefaultIdentity, "UUID version for fresh identities (v7|v4)")
	pf.Int("max-passes", config.DefaultMaxPasses, "attachment passes per update (0 = one per added node)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// loadConfig loads configuration once. Flags the user set on cmd override
// the file and environment.
func (o *RootOptions) loadConfig(cmd *cobra.Command) error {
	if o.Config != nil {
		return nil
	}
	cfg, err := config.Load(o.ConfigFile, cmd.Flags())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	o.Config = cfg
	o.Logger = cfg.NewLogger(cmd.ErrOrStderr())
	return nil
}

// openWorkspace opens the configured database and builds a workspace
// whose syncer follows the sync and identity configuration.
func (o *RootOptions) openWorkspace(ctx context.Context, cmd *cobra.Command) (*workspace.Workspace, func(), error) {
	if err := o.loadConfig(cmd); err != nil {
		return nil, nil, err
	}
	cfg := o.Config

	gen, err := cfg.Generator()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid identity configuration", err)
	}

	o.Logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	syncer := prefab.NewSyncer(
		prefab.WithGenerator(gen),
		prefab.WithLogger(o.Logger),
		prefab.WithMaxPasses(cfg.Sync.MaxPasses),
		prefab.WithPruneStale(cfg.Sync.PruneStale),
	)
	ws, err := workspace.New(ctx, st,
		workspace.WithSyncer(syncer),
		workspace.WithLogger(o.Logger),
		workspace.WithParallelism(cfg.Sync.Parallelism),
	)
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to open workspace", err)
	}

	closeFn := func() {
		if err := st.Close(); err != nil {
			o.Logger.Error("failed to close database", "error", err)
		}
	}
	return ws, closeFn, nil
}

// formatter builds an OutputFormatter writing to cmd's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}
