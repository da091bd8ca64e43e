package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/schaermu/fixturesync/internal/config"
	"github.com/schaermu/fixturesync/internal/fixture"
	"github.com/schaermu/fixturesync/internal/git"
	"github.com/schaermu/fixturesync/internal/patch"
	"github.com/schaermu/fixturesync/internal/refs"
)

// Outcome is the terminal state of one fixture sync
type Outcome string

const (
	OutcomeCloned  Outcome = "cloned"
	OutcomeUpdated Outcome = "updated"
	OutcomeCurrent Outcome = "current"
)

// Result describes what SyncFixture did to one fixture
type Result struct {
	Grammar string
	Dir     string
	Target  refs.Target
	// From is the ref the working copy was at before an update
	From    refs.State
	Outcome Outcome
	Patch   *patch.Report
}

// Options tunes a sync run
type Options struct {
	DryRun bool
	// Jobs bounds the number of fixtures synced concurrently; zero uses the config value
	Jobs int
	// Only restricts the run to the named grammars
	Only []string
}

// Engine orchestrates the fixture sync process
type Engine struct {
	cfg     *config.Config
	git     git.Client
	patcher *patch.Patcher
	logger  *slog.Logger
	opts    Options
}

// NewEngine creates a new sync engine. In dry-run mode mutating git commands
// are logged instead of run and patches are reported as diffs.
func NewEngine(cfg *config.Config, gitClient git.Client, logger *slog.Logger, opts Options) *Engine {
	if opts.DryRun {
		gitClient = git.NewDryRunClient(gitClient, logger)
	}
	if opts.Jobs <= 0 {
		opts.Jobs = cfg.Fixtures.Jobs
	}
	if opts.Jobs <= 0 {
		opts.Jobs = 1
	}

	return &Engine{
		cfg:     cfg,
		git:     gitClient,
		patcher: patch.New(opts.DryRun),
		logger:  logger,
		opts:    opts,
	}
}

// Run syncs every fixture of the manifest in manifest order. The first fatal
// error cancels the fixtures that have not started yet.
func (e *Engine) Run(ctx context.Context) error {
	specs, err := fixture.LoadManifest(e.cfg.Fixtures.Manifest)
	if err != nil {
		return err
	}
	specs, err = fixture.Filter(specs, e.opts.Only)
	if err != nil {
		return err
	}

	e.logger.Info("starting fixture sync",
		"manifest", e.cfg.Fixtures.Manifest,
		"fixtures", len(specs),
		"jobs", e.opts.Jobs,
		"dry_run", e.opts.DryRun)

	results := make([]Result, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Jobs)
	for i, spec := range specs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := e.SyncFixture(gctx, spec)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	counts := make(map[Outcome]int)
	for _, res := range results {
		counts[res.Outcome]++
	}
	e.logger.Info("fixture sync completed",
		"cloned", counts[OutcomeCloned],
		"updated", counts[OutcomeUpdated],
		"current", counts[OutcomeCurrent])

	return nil
}

// SyncFixture clones or updates a single fixture and patches its metadata
func (e *Engine) SyncFixture(ctx context.Context, spec fixture.Spec) (Result, error) {
	// a cancelled group must not start new git commands
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	target := spec.Target()
	res := Result{
		Grammar: spec.Grammar,
		Dir:     e.cfg.GrammarDir(spec.Grammar),
		Target:  target,
	}
	logger := e.logger.With("grammar", spec.Grammar)
	logger.Info("fetching grammar", "kind", target.Kind(), "ref", target.String())

	_, err := os.Stat(res.Dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		opts := git.CloneOptions{
			URL:   e.cfg.GrammarURL(spec.Grammar),
			Dest:  res.Dir,
			Ref:   target.String(),
			Depth: e.cfg.CloneDepth(),
		}
		if err := git.Clone(ctx, e.git, opts); err != nil {
			return res, fmt.Errorf("failed to clone the %s grammar: %w", spec.Grammar, err)
		}
		res.Outcome = OutcomeCloned
	case err != nil:
		return res, fmt.Errorf("failed to stat %s: %w", res.Dir, err)
	default:
		repo := git.NewRepo(e.git, res.Dir)
		state, err := git.Inspect(ctx, repo)
		if err != nil {
			return res, fmt.Errorf("failed to inspect %s grammar: %w", spec.Grammar, err)
		}
		res.From = state

		if state.Matches(target) {
			logger.Info("grammar is already at "+target.Kind().String()+" "+target.String(),
				"kind", target.Kind(), "ref", target.String())
			res.Outcome = OutcomeCurrent
			break
		}

		logger.Info("updating grammar",
			"from_kind", state.Kind, "from", state.Name,
			"kind", target.Kind(), "ref", target.String())
		if err := e.update(ctx, repo, spec.Grammar, target); err != nil {
			return res, err
		}
		res.Outcome = OutcomeUpdated
	}

	res.Patch = e.patcher.Patch(res.Dir)
	e.logPatch(logger, res.Patch)

	return res, nil
}

// update moves an existing working copy to target
func (e *Engine) update(ctx context.Context, repo *git.Repo, grammar string, target refs.Target) error {
	switch t := target.(type) {
	case refs.Branch:
		branch := string(t)
		if err := repo.FetchBranch(ctx, branch); err != nil {
			return fmt.Errorf("failed to fetch branch %s: %w", branch, err)
		}
		if err := repo.Switch(ctx, branch); err != nil {
			return fmt.Errorf("failed to checkout branch %s: %w", branch, err)
		}
		if err := repo.SetUpstream(ctx, branch); err != nil {
			return fmt.Errorf("failed to set upstream for branch %s: %w", branch, err)
		}
		if err := repo.Pull(ctx, branch); err != nil {
			return fmt.Errorf("failed to pull latest from branch %s: %w", branch, err)
		}
	case refs.Tag:
		if err := repo.FetchTag(ctx, string(t)); err != nil {
			return fmt.Errorf("failed to fetch %s %s for %s grammar: %w", t.Kind(), t, grammar, err)
		}
	default:
		return fmt.Errorf("unsupported target %T for %s grammar", target, grammar)
	}

	if err := repo.ResetHard(ctx); err != nil {
		return fmt.Errorf("failed to reset %s grammar working tree: %w", grammar, err)
	}
	if err := repo.Checkout(ctx, target.String()); err != nil {
		return fmt.Errorf("failed to checkout %s %s for %s grammar: %w", target.Kind(), target, grammar, err)
	}
	return nil
}

// logPatch reports the patch steps; failed steps are logged and dropped
func (e *Engine) logPatch(logger *slog.Logger, report *patch.Report) {
	for _, step := range report.Steps {
		switch {
		case step.Err != nil:
			logger.Debug("skipped fixture metadata", "path", step.Path, "error", step.Err)
		case step.Action == patch.ActionSkipped || step.Action == patch.ActionUnchanged:
			logger.Debug("fixture metadata "+string(step.Action), "path", step.Path, "reason", step.Reason)
		default:
			logger.Info("fixture metadata "+string(step.Action), "path", step.Path, "reason", step.Reason)
			if step.Diff != "" {
				logger.Info("pending change", "path", step.Path, "diff", step.Diff)
			}
		}
	}
	if err := report.Err(); err != nil {
		logger.Debug("ignoring fixture metadata errors", "error", err)
	}
}
