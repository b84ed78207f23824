// cmd/scriptsync/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"scriptsync/client"
	"scriptsync/internal/config"
	"scriptsync/internal/fingerprint"
	"scriptsync/internal/lockfile"
	"scriptsync/internal/logging"
	"scriptsync/internal/manifest"
	"scriptsync/internal/operation"
	"scriptsync/internal/remote"
	"scriptsync/internal/snapshot"
	"scriptsync/internal/syncplan"
	"scriptsync/internal/watch"
	"scriptsync/internal/xerrors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const defaultLockTimeout = 30 * time.Second

// app holds the wiring every command shares. Everything is constructed once
// in run and injected; commands never reach for globals.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	locks  *lockfile.Manager
}

func main() {
	if err := run(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	locks, err := lockfile.NewManager(lockfile.Options{
		Dir:        cfg.Lock.Dir,
		Poll:       cfg.LockPoll(),
		StaleAfter: cfg.LockStaleAfter(),
	}, logger.Logger)
	if err != nil {
		return fmt.Errorf("initializing lock manager: %w", err)
	}
	defer locks.ReleaseAll()

	a := &app{cfg: cfg, logger: logger, locks: locks}
	return newRootCmd(a).Execute()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "scriptsync",
		Short:         "Consistency layer for remote script projects",
		Long:          `scriptsync keeps a local working copy and a version-less remote script project in agreement using content fingerprints, cross-process locks and two-phase operations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		a.initCmd(),
		a.planCmd(),
		a.statusCmd(),
		a.locksCmd(),
		a.watchCmd(),
		a.putCmd(),
		a.rmCmd(),
		a.mvCmd(),
		a.editCmd(),
	)
	return root
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <resource-id>",
		Short: "Link this directory to a remote project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := os.Getwd()
			if err != nil {
				return err
			}

			if crumb, _ := manifest.LoadBreadcrumb(root); crumb != nil {
				return fmt.Errorf("already linked to project %s", crumb.ResourceID)
			}
			// No manifest yet: its absence is what marks the first sync as
			// a bootstrap, so only the breadcrumb is written here.
			if err := manifest.SaveBreadcrumb(root, args[0]); err != nil {
				return fmt.Errorf("registering project: %w", err)
			}

			fmt.Printf("Linked %s to project %s\n", root, args[0])
			return nil
		},
	}
}

func (a *app) planCmd() *cobra.Command {
	var (
		direction string
		force     bool
		excludes  []string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the sync plan without applying it",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := os.Getwd()
			if err != nil {
				return err
			}

			resourceID, err := a.resourceID(root)
			if err != nil {
				return err
			}

			if err := a.locks.Acquire(resourceID, "plan", defaultLockTimeout); err != nil {
				return err
			}
			defer a.locks.Release(resourceID)

			store, err := a.store()
			if err != nil {
				return err
			}

			planner := syncplan.NewPlanner(store, nil, a.logger.WithResource(resourceID))
			plan, err := planner.Plan(cmd.Context(), root, syncplan.Options{
				ResourceID:      resourceID,
				Direction:       syncplan.Direction(direction),
				Force:           force,
				ExcludePatterns: excludes,
			})
			if err != nil {
				return err
			}

			renderPlan(plan)
			return nil
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "pull", "sync direction: pull or push")
	cmd.Flags().BoolVar(&force, "force", false, "skip the clean working copy check")
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "path patterns to exclude")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show local drift against the last synced baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := os.Getwd()
			if err != nil {
				return err
			}

			m, err := manifest.Load(root)
			if err != nil {
				return fmt.Errorf("reading manifest: %w", err)
			}
			if m == nil {
				fmt.Println("No sync baseline yet (bootstrap pending).")
				return nil
			}

			local, err := syncplan.NewScanner(root, nil, nil, a.logger.Logger).Scan()
			if err != nil {
				return fmt.Errorf("scanning working copy: %w", err)
			}

			clean := true
			for path, desc := range local {
				baseHash, known := m.BaselineHashes[path]
				switch {
				case !known:
					color.Green("  added     %s", path)
					clean = false
				case !fingerprint.Equal(desc.Fingerprint.ContentHash, baseHash):
					color.Yellow("  modified  %s", path)
					clean = false
				}
			}
			for path := range m.BaselineHashes {
				if _, ok := local[path]; !ok {
					color.Red("  removed   %s", path)
					clean = false
				}
			}

			if clean {
				fmt.Println("Working copy matches the baseline.")
			}
			return nil
		},
	}
}

func (a *app) locksCmd() *cobra.Command {
	var cleanup bool

	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Inspect or clean up resource locks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cleanup {
				removed, err := a.locks.CleanupStaleLocks()
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d stale lock(s).\n", removed)
				return nil
			}

			entries, err := os.ReadDir(a.cfg.Lock.Dir)
			if err != nil {
				return fmt.Errorf("reading lock directory: %w", err)
			}

			count := 0
			for _, entry := range entries {
				if entry.IsDir() || filepath.Ext(entry.Name()) != ".lock" {
					continue
				}
				resource := entry.Name()[:len(entry.Name())-len(".lock")]
				if holder, ok := a.locks.Holder(resource); ok {
					fmt.Printf("%s  pid=%d host=%s since=%s op=%q\n",
						resource, holder.OwnerPID, holder.Hostname,
						holder.AcquiredAt.Format(time.RFC3339), holder.Operation)
					count++
				}
			}
			if count == 0 {
				fmt.Println("No active locks.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "remove stale locks")
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the working copy and report drift from the baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := os.Getwd()
			if err != nil {
				return err
			}

			w, err := watch.New(root, a.logger.Logger)
			if err != nil {
				return err
			}
			defer w.Close()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			fmt.Println("Watching for drift (ctrl-c to stop)...")
			for {
				select {
				case ev, ok := <-w.Events():
					if !ok {
						return nil
					}
					switch ev.Kind {
					case watch.DriftAdded:
						color.Green("  added     %s", ev.Path)
					case watch.DriftModified:
						color.Yellow("  modified  %s", ev.Path)
					case watch.DriftRemoved:
						color.Red("  removed   %s", ev.Path)
					case watch.DriftReverted:
						fmt.Printf("  reverted  %s\n", ev.Path)
					}
				case <-stop:
					return nil
				}
			}
		},
	}
}

func (a *app) putCmd() *cobra.Command {
	var expectedHash string

	cmd := &cobra.Command{
		Use:   "put <file>",
		Short: "Write a local file to the remote project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := filepath.Base(args[0])
			kind, ok := remote.KindForPath(name)
			if !ok {
				return fmt.Errorf("%s has no syncable file type", name)
			}

			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			return a.runOperation(cmd.Context(), func(deps operation.Deps, resourceID string) (operation.Strategy, string) {
				return operation.NewWrite(deps, operation.WriteSpec{
					Container:    resourceID,
					Name:         name,
					Kind:         kind,
					Content:      string(content),
					ExpectedHash: expectedHash,
				}), "put " + name
			})
		},
	}

	cmd.Flags().StringVar(&expectedHash, "expect", "", "refuse unless the remote hash matches")
	return cmd
}

func (a *app) rmCmd() *cobra.Command {
	var expectedHash string

	cmd := &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a file from the remote project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runOperation(cmd.Context(), func(deps operation.Deps, resourceID string) (operation.Strategy, string) {
				return operation.NewDelete(deps, operation.DeleteSpec{
					Container:    resourceID,
					Name:         args[0],
					ExpectedHash: expectedHash,
				}), "rm " + args[0]
			})
		},
	}

	cmd.Flags().StringVar(&expectedHash, "expect", "", "refuse unless the remote hash matches")
	return cmd
}

func (a *app) mvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <source> <destination>",
		Short: "Rename a file in the remote project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runOperation(cmd.Context(), func(deps operation.Deps, resourceID string) (operation.Strategy, string) {
				return operation.NewMove(deps, operation.MoveSpec{
					SourceContainer: resourceID,
					SourceName:      args[0],
					DestContainer:   resourceID,
					DestName:        args[1],
				}), fmt.Sprintf("mv %s %s", args[0], args[1])
			})
		},
	}
}

func (a *app) editCmd() *cobra.Command {
	var (
		search    string
		replace   string
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "edit <name>",
		Short: "Apply a fuzzy search/replace edit to a remote file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if search == "" {
				return fmt.Errorf("--search is required")
			}
			return a.runOperation(cmd.Context(), func(deps operation.Deps, resourceID string) (operation.Strategy, string) {
				return operation.NewFuzzyEdit(deps, operation.FuzzyEditSpec{
					Container: resourceID,
					Name:      args[0],
					Edits: []operation.Edit{
						{Search: search, Replace: replace, Threshold: threshold},
					},
				}), "edit " + args[0]
			})
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "text block to locate (approximate match)")
	cmd.Flags().StringVar(&replace, "replace", "", "replacement text")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "similarity floor, 0 for the default")
	return cmd
}

// runOperation acquires the resource lock, wires operation deps and drives a
// strategy through the two-phase protocol.
func (a *app) runOperation(ctx context.Context, build func(operation.Deps, string) (operation.Strategy, string)) error {
	root, err := os.Getwd()
	if err != nil {
		return err
	}
	resourceID, err := a.resourceID(root)
	if err != nil {
		return err
	}

	store, err := a.store()
	if err != nil {
		return err
	}

	snaps, closeSnaps, err := a.openSnapshots()
	if err != nil {
		return err
	}
	defer closeSnaps()

	deps := operation.Deps{
		Store:         store,
		Snapshots:     snaps,
		Logger:        a.logger.WithResource(resourceID),
		MaxEdits:      a.cfg.Limits.MaxEdits,
		MaxSearchSize: a.cfg.Limits.MaxSearchSize,
	}
	strategy, label := build(deps, resourceID)

	if err := a.locks.Acquire(resourceID, label, defaultLockTimeout); err != nil {
		return err
	}
	defer a.locks.Release(resourceID)

	result, err := operation.Execute(ctx, strategy, nil, deps.Logger)
	if err != nil {
		return err
	}

	for _, p := range result.AffectedPaths {
		fmt.Printf("  %s  %s\n", result.Kind, p)
	}
	if result.ContentHash != "" {
		fmt.Printf("  hash: %s\n", result.ContentHash)
	}
	return nil
}

func (a *app) resourceID(root string) (string, error) {
	crumb, err := manifest.LoadBreadcrumb(root)
	if err != nil {
		return "", err
	}
	if crumb == nil {
		return "", fmt.Errorf("not linked to a project; run scriptsync init <resource-id>")
	}
	return crumb.ResourceID, nil
}

func (a *app) store() (remote.Store, error) {
	if a.cfg.Remote.BaseURL == "" {
		return nil, fmt.Errorf("remote.base_url is not configured; set it in %s", config.Path())
	}
	return client.New(a.cfg.Remote.BaseURL, a.cfg.RemoteTimeout()), nil
}

func (a *app) openSnapshots() (*snapshot.Store, func(), error) {
	opts := badger.DefaultOptions(filepath.Join(a.cfg.Snapshot.Dir, "db"))
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("opening snapshot database: %w", err)
	}

	snaps, err := snapshot.New(db, snapshot.Options{
		Root:      a.cfg.Snapshot.Dir,
		CacheSize: a.cfg.Snapshot.CacheSize,
	}, a.logger.Logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return snaps, func() { db.Close() }, nil
}

func renderPlan(plan *syncplan.Plan) {
	if !plan.HasChanges {
		fmt.Println("Already in sync.")
		return
	}

	for _, f := range plan.Add {
		color.Green("  add     %s", f.Path)
	}
	for _, f := range plan.Update {
		color.Yellow("  update  %s", f.Path)
		if f.Display != nil {
			fmt.Printf("          +%d -%d lines\n", f.Display.LinesAdded, f.Display.LinesRemoved)
		}
	}
	for _, f := range plan.Delete {
		color.Red("  delete  %s", f.Path)
	}
	fmt.Printf("\n%d operation(s) planned (%s).\n", plan.TotalOperations, plan.Direction)
}

func printError(err error) {
	switch {
	case xerrors.IsConflict(err):
		color.Red("conflict: %v", err)
		var ce *xerrors.ConflictError
		if errors.As(err, &ce) && ce.Details.Diff != nil {
			fmt.Fprintln(os.Stderr, ce.Details.Diff.Content)
		}
	case xerrors.IsLockTimeout(err):
		color.Red("locked: %v", err)
	default:
		if code, ok := xerrors.PlanCodeOf(err); ok {
			color.Red("%s: %v", code, err)
		} else {
			color.Red("error: %v", err)
		}
	}
}
