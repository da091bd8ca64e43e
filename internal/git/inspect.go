package git

import (
	"context"

	"github.com/schaermu/fixturesync/internal/refs"
)

// Inspect determines which ref the working copy currently sits on.
// It prefers a tag exactly at HEAD, then the current branch name, and otherwise
// reports refs.UnknownState. A probe that exits non-zero counts as no match;
// only a failure to run git at all is returned as an error.
func Inspect(ctx context.Context, repo *Repo) (refs.State, error) {
	probes := []struct {
		kind  refs.Kind
		probe func(context.Context) (string, error)
	}{
		{kind: refs.KindTag, probe: repo.ExactTag},
		{kind: refs.KindBranch, probe: repo.CurrentBranch},
	}

	for _, p := range probes {
		name, err := p.probe(ctx)
		if err != nil {
			if IsExitFailure(err) {
				continue
			}
			return refs.State{}, err
		}
		if name != "" {
			return refs.State{Name: name, Kind: p.kind}, nil
		}
	}

	return refs.UnknownState(), nil
}
