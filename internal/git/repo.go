package git

import (
	"context"
	"fmt"
	"strconv"
)

// CloneOptions configures Clone
type CloneOptions struct {
	URL  string
	Dest string
	// Ref is passed to --branch; git accepts both branch and tag names there
	Ref string
	// Depth truncates history when greater than zero
	Depth int
}

// Clone clones a repository into opts.Dest. git creates missing parent
// directories itself.
func Clone(ctx context.Context, c Client, opts CloneOptions) error {
	args := []string{"clone"}
	if opts.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(opts.Depth))
	}
	if opts.Ref != "" {
		args = append(args, "--branch", opts.Ref)
	}
	args = append(args, opts.URL, opts.Dest)

	_, err := c.Run(ctx, "", args...)
	return err
}

// Repo runs git commands against an existing working copy
type Repo struct {
	client Client
	dir    string
}

// NewRepo returns a Repo for the working copy at dir
func NewRepo(client Client, dir string) *Repo {
	return &Repo{client: client, dir: dir}
}

// Dir returns the working copy path
func (r *Repo) Dir() string {
	return r.dir
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	return r.client.Run(ctx, r.dir, args...)
}

// ExactTag returns the tag pointing exactly at HEAD
func (r *Repo) ExactTag(ctx context.Context) (string, error) {
	return r.run(ctx, "describe", "--tags", "--exact-match", "HEAD")
}

// CurrentBranch returns the abbreviated name of HEAD ("HEAD" when detached)
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// FetchBranch shallowly fetches branch into its remote-tracking ref.
// The branch is first added to origin's fetch refspecs; a single-branch clone
// does not track it otherwise and git refuses it as an upstream.
func (r *Repo) FetchBranch(ctx context.Context, branch string) error {
	if _, err := r.run(ctx, "remote", "set-branches", "--add", "origin", branch); err != nil {
		return err
	}
	_, err := r.run(ctx, "fetch", "--update-shallow", "origin",
		fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", branch, branch))
	return err
}

// Switch points the local branch at origin/<branch> and switches to it
func (r *Repo) Switch(ctx context.Context, branch string) error {
	_, err := r.run(ctx, "switch", "-C", branch, "origin/"+branch)
	return err
}

// SetUpstream makes origin/<branch> the upstream of branch
func (r *Repo) SetUpstream(ctx context.Context, branch string) error {
	_, err := r.run(ctx, "branch", "--set-upstream-to", "origin/"+branch, branch)
	return err
}

// Pull pulls branch from origin
func (r *Repo) Pull(ctx context.Context, branch string) error {
	_, err := r.run(ctx, "pull", "origin", branch)
	return err
}

// FetchTag fetches a single tag from origin into the local tags namespace
func (r *Repo) FetchTag(ctx context.Context, tag string) error {
	_, err := r.run(ctx, "fetch", "origin", fmt.Sprintf("refs/tags/%s:refs/tags/%s", tag, tag))
	return err
}

// ResetHard discards local modifications to tracked files
func (r *Repo) ResetHard(ctx context.Context) error {
	_, err := r.run(ctx, "reset", "--hard", "HEAD")
	return err
}

// Checkout checks out ref
func (r *Repo) Checkout(ctx context.Context, ref string) error {
	_, err := r.run(ctx, "checkout", ref)
	return err
}
