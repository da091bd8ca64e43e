package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/schaermu/fixturesync/internal/fixture"
	"github.com/schaermu/fixturesync/internal/git"
	"github.com/schaermu/fixturesync/internal/refs"
)

// FixtureStatus compares a fixture's working copy with its manifest entry
type FixtureStatus struct {
	Grammar string
	Target  refs.Target
	// Present is false when the working copy has not been cloned yet
	Present bool
	State   refs.State
}

// Current reports whether the working copy already sits on the target ref
func (s FixtureStatus) Current() bool {
	return s.Present && s.State.Matches(s.Target)
}

// Label is a one-word summary: missing, current or stale
func (s FixtureStatus) Label() string {
	switch {
	case !s.Present:
		return "missing"
	case s.Current():
		return "current"
	default:
		return "stale"
	}
}

// Status inspects every selected fixture without changing anything
func (e *Engine) Status(ctx context.Context) ([]FixtureStatus, error) {
	specs, err := fixture.LoadManifest(e.cfg.Fixtures.Manifest)
	if err != nil {
		return nil, err
	}
	specs, err = fixture.Filter(specs, e.opts.Only)
	if err != nil {
		return nil, err
	}

	statuses := make([]FixtureStatus, 0, len(specs))
	for _, spec := range specs {
		status := FixtureStatus{Grammar: spec.Grammar, Target: spec.Target(), State: refs.UnknownState()}

		dir := e.cfg.GrammarDir(spec.Grammar)
		if _, err := os.Stat(dir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
			}
			statuses = append(statuses, status)
			continue
		}

		status.Present = true
		status.State, err = git.Inspect(ctx, git.NewRepo(e.git, dir))
		if err != nil {
			return nil, fmt.Errorf("failed to inspect %s grammar: %w", spec.Grammar, err)
		}
		statuses = append(statuses, status)
	}

	return statuses, nil
}
