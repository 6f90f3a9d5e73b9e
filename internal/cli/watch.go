package cli

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/graft/internal/compiler"
	"github.com/roach88/graft/internal/merge"
	"github.com/roach88/graft/internal/workspace"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Prefix   string
	Once     bool
	Debounce time.Duration
}

// WatchPass reports one put-and-propagate pass.
type WatchPass struct {
	Stored   []PutResult     `json:"stored"`
	Sessions []SessionOutput `json:"sessions"`
	Errors   []string        `json:"errors,omitempty"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <scenes-dir>",
		Short: "Store changed scenes and update their instances",
		Long: `Watch a directory of CUE scenes. Whenever a scene changes it is
recompiled and stored, and every instance imported from it is updated
with the configured policy. Scenes that fail to compile are reported and
skipped until they are fixed.

Examples:
  graft watch ./prefabs --prefix prefabs/
  graft watch ./prefabs --once`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "prefix for asset locators")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single pass and exit")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 200*time.Millisecond, "quiet period before a pass runs")
	addSyncFlags(cmd)

	return cmd
}

func runWatch(opts *WatchOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return formatter.Fail(ExitCommandError, compiler.ErrCodeNotFound, fmt.Sprintf("scenes directory not found: %s", dir), nil)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, closeFn, err := opts.openWorkspace(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	p := &propagator{
		ws:     ws,
		dir:    dir,
		prefix: opts.Prefix,
		policy: opts.Config.Policy(),
		logger: opts.Logger,
	}

	pass := p.run(ctx)
	reportPass(formatter, pass)
	if opts.Once {
		if len(pass.Errors) > 0 || failedSessions(pass) > 0 {
			return NewExitError(ExitFailure, "watch pass reported errors")
		}
		return nil
	}

	changes := make(chan struct{}, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(changes)
		return watchDir(gctx, dir, opts.Debounce, opts.Logger, changes)
	})
	g.Go(func() error {
		for range changes {
			reportPass(formatter, p.run(gctx))
		}
		return nil
	})
	return g.Wait()
}

// propagator stores the scenes of a directory and updates the instances
// of every scene whose content changed.
type propagator struct {
	ws     *workspace.Workspace
	dir    string
	prefix string
	policy merge.Policy
	logger *slog.Logger
}

func (p *propagator) run(ctx context.Context) WatchPass {
	var pass WatchPass

	result, errs := compiler.LoadScenes(p.dir, compiler.LoadModeCollectAll)
	for _, err := range errs {
		code, msg := parseLoadError(err)
		pass.Errors = append(pass.Errors, fmt.Sprintf("%s: %s", code, msg))
	}
	if result == nil || len(errs) > 0 {
		p.logger.Warn("watch: scenes not loaded", "dir", p.dir, "errors", len(errs))
		return pass
	}

	var valid []*compiler.Scene
	for _, s := range result.Scenes {
		var problems int
		for _, v := range compiler.ValidateScene(s) {
			if v.Warning {
				continue
			}
			problems++
			pass.Errors = append(pass.Errors, v.Error())
		}
		if problems > 0 {
			p.logger.Warn("watch: scene skipped", "scene", s.Name, "errors", problems)
			continue
		}
		valid = append(valid, s)
	}

	stored, err := putScenes(ctx, p.ws, valid, p.prefix)
	if err != nil {
		pass.Errors = append(pass.Errors, err.Error())
		return pass
	}
	pass.Stored = stored

	for _, r := range stored {
		if !r.Changed {
			continue
		}
		p.logger.Info("watch: asset stored", "locator", r.Locator, "digest", shortDigest(r.Digest))
		outcomes, err := p.ws.UpdateAll(ctx, r.Locator, p.policy)
		if err != nil {
			pass.Errors = append(pass.Errors, fmt.Sprintf("update %s: %v", r.Locator, err))
			continue
		}
		for _, o := range outcomes {
			s := sessionOutput(o.Dest, o.Instance.String(), o.Result, o.Err)
			if s.Source == "" {
				s.Source = r.Locator
			}
			pass.Sessions = append(pass.Sessions, s)
		}
	}
	return pass
}

func failedSessions(pass WatchPass) int {
	n := 0
	for _, s := range pass.Sessions {
		if !s.OK {
			n++
		}
	}
	return n
}

func reportPass(formatter *OutputFormatter, pass WatchPass) {
	if formatter.Format == "json" {
		_ = formatter.Success(pass)
		return
	}
	w := formatter.Writer
	for _, e := range pass.Errors {
		fmt.Fprintf(w, "✗ %s\n", e)
	}
	for _, r := range pass.Stored {
		if r.Changed {
			fmt.Fprintf(w, "stored %s (%d nodes, %s)\n", r.Locator, r.Nodes, shortDigest(r.Digest))
		}
	}
	for _, s := range pass.Sessions {
		if !s.OK {
			fmt.Fprintf(w, "✗ %s %s: %s\n", s.Dest, s.Instance, s.Error)
			continue
		}
		fmt.Fprintf(w, "✓ %s %s <- %s: merged %d, added %d, removed %d, conflicts %d\n",
			s.Dest, s.Instance, s.Source, s.Merged, s.Added, s.Removed, s.Conflicts)
	}
}

// watchDir signals on changes after each burst of CUE file events has been
// quiet for the debounce period. New directories are watched as they
// appear.
func watchDir(ctx context.Context, root string, debounce time.Duration, logger *slog.Logger, changes chan<- struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	logger.Info("watch: started", slog.String("root", root))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
			return
		}
		timer.Reset(debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watch: stopped")
			return nil

		case <-fire:
			select {
			case changes <- struct{}{}:
			default:
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watch: add dir failed", slog.String("path", ev.Name), slog.String("error", addErr.Error()))
					}
					schedule()
					continue
				}
			}
			if !strings.HasSuffix(ev.Name, ".cue") {
				continue
			}
			logger.Debug("watch: event", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
