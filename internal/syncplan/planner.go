package syncplan

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"

	"scriptsync/internal/fingerprint"
	"scriptsync/internal/manifest"
	"scriptsync/internal/remote"
	"scriptsync/internal/wrap"
	"scriptsync/internal/xerrors"

	"go.uber.org/zap"
)

// Options control one planning run. ResourceID may be empty when the
// working copy's breadcrumb names the project.
type Options struct {
	ResourceID      string
	Direction       Direction
	Force           bool
	ExcludePatterns []string
}

// Planner validates preconditions and produces a sync plan. It is read-only
// end to end: every failure is safe to retry once its cause is fixed.
type Planner struct {
	store   remote.Store
	wrapper wrap.Transformer
	logger  *zap.Logger
}

func NewPlanner(store remote.Store, wrapper wrap.Transformer, logger *zap.Logger) *Planner {
	if wrapper == nil {
		wrapper = wrap.Passthrough{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{store: store, wrapper: wrapper, logger: logger}
}

// Plan checks preconditions, gathers both file sets and classifies them.
func (p *Planner) Plan(ctx context.Context, root string, opts Options) (*Plan, error) {
	if !opts.Direction.Valid() {
		return nil, xerrors.Validation(fmt.Sprintf("direction must be pull or push, got %q", opts.Direction), nil)
	}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, xerrors.PlanWrap(xerrors.PlanLocalReadError,
			fmt.Sprintf("working copy root %s is not a readable directory", root),
			"check the path and its permissions", err)
	}

	crumb, err := manifest.LoadBreadcrumb(root)
	if err != nil {
		return nil, xerrors.PlanWrap(xerrors.PlanLocalReadError,
			"cannot read project breadcrumb", "check .scriptsync/project.json", err)
	}
	resourceID := opts.ResourceID
	if resourceID == "" {
		if crumb == nil {
			return nil, xerrors.Plan(xerrors.PlanBreadcrumbMissing,
				"working copy is not linked to a remote project",
				"run init to register the project id")
		}
		resourceID = crumb.ResourceID
	}

	// Pulling overwrites local files, so refuse while the working copy has
	// uncommitted changes unless the caller forces it.
	if opts.Direction == DirectionPull && !opts.Force {
		if err := p.checkWorkingCopyClean(ctx, root); err != nil {
			return nil, err
		}
	}

	excl := newExcluder(opts.ExcludePatterns)
	if err := excl.loadIgnoreFile(root); err != nil {
		return nil, xerrors.PlanWrap(xerrors.PlanLocalReadError,
			"cannot read ignore file", "check .syncignore", err)
	}

	local, err := NewScanner(root, excl, p.wrapper, p.logger).Scan()
	if err != nil {
		return nil, xerrors.PlanWrap(xerrors.PlanLocalReadError,
			"scanning the working copy failed", "check file permissions under the root", err)
	}

	recs, err := p.store.List(ctx, resourceID)
	if err != nil {
		return nil, xerrors.PlanWrap(xerrors.PlanAPIError,
			fmt.Sprintf("listing remote project %s failed", resourceID),
			"check connectivity and credentials", err)
	}
	remoteSet := remoteFileSet(recs, excl)

	baseline, err := manifest.Load(root)
	if err != nil {
		return nil, xerrors.PlanWrap(xerrors.PlanLocalReadError,
			"cannot read sync manifest", "check .scriptsync/manifest.json", err)
	}

	source, dest := remoteSet, local
	if opts.Direction == DirectionPush {
		source, dest = local, remoteSet
	}

	plan := ComputeDiff(opts.Direction, source, dest, baseline)
	p.logger.Info("sync plan computed",
		zap.String("resource_id", resourceID),
		zap.String("direction", string(opts.Direction)),
		zap.Bool("bootstrap", baseline == nil || baseline.IsBootstrap),
		zap.Int("add", len(plan.Add)),
		zap.Int("update", len(plan.Update)),
		zap.Int("delete", len(plan.Delete)))
	return plan, nil
}

// checkWorkingCopyClean runs git status against the root. A root that is not
// a git repository passes; version control is recommended, not required.
func (p *Planner) checkWorkingCopyClean(ctx context.Context, root string) error {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return xerrors.Plan(xerrors.PlanGitNotFound,
			"git executable not found",
			"install git or pass force to skip the clean check")
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, gitPath, "-C", root, "status", "--porcelain")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		p.logger.Debug("git status failed, skipping clean check",
			zap.String("root", root),
			zap.Error(err))
		return nil
	}
	if out.Len() > 0 {
		return xerrors.Plan(xerrors.PlanUncommittedChanges,
			"working copy has uncommitted changes",
			"commit or stash them, or pass force to overwrite")
	}
	return nil
}

// remoteFileSet converts the remote listing into diffable descriptors.
// Names without an extension gain their kind's local extension so remote
// paths line up with scanned local paths.
func remoteFileSet(recs []remote.FileRecord, excl *excluder) FileSet {
	set := make(FileSet, len(recs))
	for _, rec := range recs {
		p := rec.Name
		if path.Ext(p) == "" {
			p += rec.Kind.Ext()
		}
		if excl != nil && excl.Excluded(p) {
			continue
		}
		set[p] = FileDescriptor{
			Path:        p,
			Content:     rec.Content,
			Fingerprint: fingerprint.File(p, []byte(rec.Content)),
			Origin:      OriginRemote,
		}
	}
	return set
}
