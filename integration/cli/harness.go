//go:build integration

package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/schaermu/fixturesync/internal/projectroot"
)

const defaultTimeout = 5 * time.Minute

// Harness builds the fixturesync binary and runs it against a scratch project
// whose grammars are served from local upstream repositories
type Harness struct {
	t         *testing.T
	binary    string
	Root      string
	Upstreams string
}

// NewHarness creates a project root, an upstream directory and a fresh binary
func NewHarness(t *testing.T, ctx context.Context) *Harness {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	h := &Harness{
		t:         t,
		Root:      t.TempDir(),
		Upstreams: t.TempDir(),
	}
	h.buildBinary(ctx)

	config := fmt.Sprintf("fixtures:\n  url_template: %q\n", fileURL(h.Upstreams)+"/tree-sitter-{grammar}")
	h.WriteFile("fixturesync.yaml", config)
	h.WriteManifest(`[]`)
	return h
}

func (h *Harness) buildBinary(ctx context.Context) {
	h.t.Helper()

	moduleRoot, err := projectroot.Module()
	if err != nil {
		h.t.Fatalf("get module root: %v", err)
	}

	name := "fixturesync"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	h.binary = filepath.Join(h.t.TempDir(), name)

	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/fixturesync")
	cmd.Dir = moduleRoot
	cmd.Stdout = &testWriter{t: h.t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[build] "}
	if err := cmd.Run(); err != nil {
		h.t.Fatalf("go build: %v", err)
	}
}

// Run executes the binary inside the project root
func (h *Harness) Run(ctx context.Context, args ...string) (string, int, error) {
	h.t.Helper()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, h.binary, args...)
	cmd.Dir = h.Root
	cmd.Stdout = io.MultiWriter(&out, &testWriter{t: h.t, prefix: "[fixturesync] "})
	cmd.Stderr = cmd.Stdout

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", 0, fmt.Errorf("exec failed: %w", err)
		}
	}
	return out.String(), exitCode, nil
}

// MustRun executes the binary and fails the test on a non-zero exit
func (h *Harness) MustRun(ctx context.Context, args ...string) string {
	h.t.Helper()
	out, exitCode, err := h.Run(ctx, args...)
	if err != nil {
		h.t.Fatalf("run failed: %v", err)
	}
	if exitCode != 0 {
		h.t.Fatalf("fixturesync %v failed with exit code %d\n%s", args, exitCode, out)
	}
	return out
}

// WriteFile writes a file relative to the project root
func (h *Harness) WriteFile(rel, content string) {
	h.t.Helper()
	path := filepath.Join(h.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		h.t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		h.t.Fatalf("write file: %v", err)
	}
}

// ReadFile reads a file relative to the project root
func (h *Harness) ReadFile(rel string) string {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(h.Root, filepath.FromSlash(rel)))
	if err != nil {
		h.t.Fatalf("read file: %v", err)
	}
	return string(data)
}

// FileExists checks if a path relative to the project root exists
func (h *Harness) FileExists(rel string) bool {
	_, err := os.Stat(filepath.Join(h.Root, filepath.FromSlash(rel)))
	return err == nil
}

// WriteManifest replaces test/fixtures/fixtures.json
func (h *Harness) WriteManifest(content string) {
	h.t.Helper()
	h.WriteFile("test/fixtures/fixtures.json", content)
}

// GrammarDir returns the checkout path of a grammar
func (h *Harness) GrammarDir(grammar string) string {
	return filepath.Join(h.Root, "test", "fixtures", "grammars", grammar)
}

// Head returns the short ref name and commit of a fixture checkout.
// The name is "HEAD" when detached.
func (h *Harness) Head(grammar string) (string, plumbing.Hash) {
	h.t.Helper()
	repo, err := gogit.PlainOpen(h.GrammarDir(grammar))
	if err != nil {
		h.t.Fatalf("open %s checkout: %v", grammar, err)
	}
	ref, err := repo.Head()
	if err != nil {
		h.t.Fatalf("read %s HEAD: %v", grammar, err)
	}
	return ref.Name().Short(), ref.Hash()
}

// Upstream is a grammar repository the fixtures are cloned from
type Upstream struct {
	t    *testing.T
	repo *gogit.Repository
	wt   *gogit.Worktree
	dir  string
}

// NewUpstream initialises tree-sitter-<grammar> on branch main
func (h *Harness) NewUpstream(grammar string) *Upstream {
	h.t.Helper()

	dir := filepath.Join(h.Upstreams, "tree-sitter-"+grammar)
	repo, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	if err != nil {
		h.t.Fatalf("init upstream %s: %v", grammar, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		h.t.Fatalf("worktree %s: %v", grammar, err)
	}
	return &Upstream{t: h.t, repo: repo, wt: wt, dir: dir}
}

// Commit writes files and commits them on the current branch
func (u *Upstream) Commit(msg string, files map[string]string) plumbing.Hash {
	u.t.Helper()

	for name, content := range files {
		path := filepath.Join(u.dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			u.t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			u.t.Fatalf("write %s: %v", name, err)
		}
		if _, err := u.wt.Add(name); err != nil {
			u.t.Fatalf("add %s: %v", name, err)
		}
	}

	hash, err := u.wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		u.t.Fatalf("commit: %v", err)
	}
	return hash
}

// Tag creates a lightweight tag at hash
func (u *Upstream) Tag(name string, hash plumbing.Hash) {
	u.t.Helper()
	if _, err := u.repo.CreateTag(name, hash, nil); err != nil {
		u.t.Fatalf("tag %s: %v", name, err)
	}
}

// Switch checks out branch, creating it at the current HEAD when needed
func (u *Upstream) Switch(branch string, create bool) {
	u.t.Helper()
	err := u.wt.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: create,
	})
	if err != nil {
		u.t.Fatalf("checkout %s: %v", branch, err)
	}
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)

func fileURL(dir string) string {
	return "file://" + filepath.ToSlash(dir)
}
