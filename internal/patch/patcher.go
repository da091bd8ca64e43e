package patch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/tidwall/gjson"

	"github.com/schaermu/fixturesync/internal/fileutil"
)

const (
	manifestName = "package.json"
	lockfileName = "package-lock.json"
)

// Action describes what happened to a single file
type Action string

const (
	ActionPatched   Action = "patched"
	ActionRewritten Action = "rewritten"
	ActionDeleted   Action = "deleted"
	ActionUnchanged Action = "unchanged"
	ActionSkipped   Action = "skipped"
)

// Step is the outcome of patching one file. A non-nil Err means the file was
// left alone; it never stops the remaining steps.
type Step struct {
	Path   string
	Action Action
	Reason string
	// Diff holds the unified diff of a pending change in dry-run mode
	Diff string
	Err  error
}

// Report collects the steps of one Patch call
type Report struct {
	Dir    string
	DryRun bool
	Steps  []Step
}

func (r *Report) add(step Step) {
	r.Steps = append(r.Steps, step)
}

// Err joins the errors of all failed steps, or returns nil
func (r *Report) Err() error {
	var errs []error
	for _, step := range r.Steps {
		if step.Err != nil {
			errs = append(errs, step.Err)
		}
	}
	return errors.Join(errs...)
}

// Changed counts steps that modified (or in dry-run mode would modify) a file
func (r *Report) Changed() int {
	n := 0
	for _, step := range r.Steps {
		switch step.Action {
		case ActionPatched, ActionRewritten, ActionDeleted:
			n++
		}
	}
	return n
}

// Patcher rewrites fixture metadata to the local tooling conventions
type Patcher struct {
	dryRun bool
}

// New creates a Patcher. In dry-run mode nothing is written or deleted and
// pending changes are reported as diffs.
func New(dryRun bool) *Patcher {
	return &Patcher{dryRun: dryRun}
}

// Patch rewrites the manifests, binding test and lockfiles of the fixture at dir.
// Every file is handled independently; failures are recorded in the report.
func (p *Patcher) Patch(dir string) *Report {
	report := &Report{Dir: dir, DryRun: p.dryRun}

	report.add(p.patchManifest(filepath.Join(dir, manifestName), false))
	report.add(p.RewriteBindingTest(dir))
	if step, ok := p.removeLockfile(filepath.Join(dir, lockfileName)); ok {
		report.add(step)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			report.add(Step{Path: dir, Action: ActionSkipped, Err: fmt.Errorf("list %s: %w", dir, err)})
		}
		return report
	}

	// Multi-grammar repositories keep one private package per grammar, one level down.
	for _, entry := range entries {
		sub := filepath.Join(dir, entry.Name())
		if info, err := os.Stat(sub); err != nil || !info.IsDir() {
			continue
		}

		if _, err := os.Stat(filepath.Join(sub, manifestName)); err == nil {
			report.add(p.patchManifest(filepath.Join(sub, manifestName), true))
		}
		if step, ok := p.removeLockfile(filepath.Join(sub, lockfileName)); ok {
			report.add(step)
		}
	}

	return report
}

func (p *Patcher) patchManifest(path string, requirePrivate bool) Step {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Step{Path: path, Action: ActionSkipped, Reason: "not found"}
		}
		return Step{Path: path, Action: ActionSkipped, Err: fmt.Errorf("read %s: %w", path, err)}
	}

	if !gjson.ValidBytes(data) {
		return Step{Path: path, Action: ActionSkipped, Err: fmt.Errorf("parse %s: %w", path, ErrInvalidManifest)}
	}
	if !gjson.ParseBytes(data).IsObject() {
		return Step{Path: path, Action: ActionSkipped, Reason: "not a JSON object"}
	}
	if requirePrivate && !isPrivate(data) {
		return Step{Path: path, Action: ActionSkipped, Reason: "not a private sub-package"}
	}

	updated, err := TransformManifest(data)
	if err != nil {
		return Step{Path: path, Action: ActionSkipped, Err: fmt.Errorf("rewrite %s: %w", path, err)}
	}

	return p.replace(path, string(data), string(updated), ActionPatched)
}

// RewriteBindingTest replaces a node:test binding test with the bun:test
// template matching its layout. Files already on bun:test, or not on node:test,
// are left alone.
func (p *Patcher) RewriteBindingTest(dir string) Step {
	path := filepath.Join(dir, filepath.FromSlash(BindingTestPath))

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Step{Path: path, Action: ActionSkipped, Reason: "not found"}
		}
		return Step{Path: path, Action: ActionSkipped, Err: fmt.Errorf("read %s: %w", path, err)}
	}

	content := string(data)
	if strings.Contains(content, frameworkMarker) {
		return Step{Path: path, Action: ActionUnchanged, Reason: "already uses " + frameworkMarker}
	}
	if !strings.Contains(content, legacyFrameworkMarker) {
		return Step{Path: path, Action: ActionSkipped, Reason: "does not use " + legacyFrameworkMarker}
	}

	shape := Classify(content)
	step := p.replace(path, content, Template(shape), ActionRewritten)
	if step.Err == nil {
		step.Reason = shape.String() + " template"
	}
	return step
}

func (p *Patcher) replace(path, old, updated string, action Action) Step {
	if old == updated {
		return Step{Path: path, Action: ActionUnchanged}
	}
	if p.dryRun {
		return Step{Path: path, Action: action, Diff: unifiedDiff(path, old, updated)}
	}
	if err := fileutil.WriteFile(path, []byte(updated)); err != nil {
		return Step{Path: path, Action: ActionSkipped, Err: fmt.Errorf("write %s: %w", path, err)}
	}
	return Step{Path: path, Action: action}
}

// removeLockfile deletes a stale lockfile; ok is false when there was none
func (p *Patcher) removeLockfile(path string) (step Step, ok bool) {
	if _, err := os.Lstat(path); err != nil {
		return Step{}, false
	}
	if p.dryRun {
		return Step{Path: path, Action: ActionDeleted}, true
	}
	if _, err := fileutil.RemoveIfExists(path); err != nil {
		return Step{Path: path, Action: ActionSkipped, Err: fmt.Errorf("remove %s: %w", path, err)}, true
	}
	return Step{Path: path, Action: ActionDeleted}, true
}

func unifiedDiff(path, old, updated string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(old),
		B:        difflib.SplitLines(updated),
		FromFile: path,
		ToFile:   path + " (patched)",
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}
