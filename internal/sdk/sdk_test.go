package sdk

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// mockGitClient records argv and creates the clone destination
type mockGitClient struct {
	calls [][]string
	err   error
}

func (m *mockGitClient) Run(_ context.Context, _ string, args ...string) (string, error) {
	m.calls = append(m.calls, args)
	if m.err != nil {
		return "", m.err
	}
	if len(args) > 0 && args[0] == "clone" {
		if err := os.MkdirAll(args[len(args)-1], 0755); err != nil {
			return "", err
		}
	}
	return "", nil
}

type mockInstaller struct {
	calls   [][]string
	dirs    []string
	failOn  string
	failErr error
}

func (m *mockInstaller) Run(_ context.Context, dir string, args ...string) error {
	m.calls = append(m.calls, args)
	m.dirs = append(m.dirs, dir)
	if len(args) > 0 && args[0] == m.failOn {
		return m.failErr
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		URL:     "https://github.com/emscripten-core/emsdk.git",
		Dir:     filepath.Join(t.TempDir(), "target", "emsdk"),
		Version: "4.0.4",
	}
}

func TestProvision(t *testing.T) {
	opts := testOptions(t)
	gitClient := &mockGitClient{}
	installer := &mockInstaller{}

	p := NewProvisioner(opts, gitClient, installer, testLogger())
	if err := p.Provision(context.Background()); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	if len(gitClient.calls) != 1 {
		t.Fatalf("expected 1 git call, got %d", len(gitClient.calls))
	}
	wantClone := "clone " + opts.URL + " " + opts.Dir
	if got := strings.Join(gitClient.calls[0], " "); got != wantClone {
		t.Errorf("expected %q, got %q", wantClone, got)
	}

	if len(installer.calls) != 2 {
		t.Fatalf("expected 2 installer calls, got %d", len(installer.calls))
	}
	if got := strings.Join(installer.calls[0], " "); got != "install 4.0.4" {
		t.Errorf("expected install 4.0.4, got %q", got)
	}
	if got := strings.Join(installer.calls[1], " "); got != "activate 4.0.4" {
		t.Errorf("expected activate 4.0.4, got %q", got)
	}
	for _, dir := range installer.dirs {
		if dir != opts.Dir {
			t.Errorf("expected installer to run in %s, got %s", opts.Dir, dir)
		}
	}
}

func TestProvision_AlreadyExists(t *testing.T) {
	opts := testOptions(t)
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		t.Fatal(err)
	}

	gitClient := &mockGitClient{}
	installer := &mockInstaller{}

	p := NewProvisioner(opts, gitClient, installer, testLogger())
	if err := p.Provision(context.Background()); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	if len(gitClient.calls) != 0 {
		t.Errorf("expected no git calls, got %v", gitClient.calls)
	}
	if len(installer.calls) != 0 {
		t.Errorf("expected no installer calls, got %v", installer.calls)
	}
}

func TestProvision_Failures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		gitErr    error
		failOn    string
		wantErr   string
		wantCalls int
	}{
		{
			name:      "clone",
			gitErr:    boom,
			wantErr:   "failed to clone the Emscripten SDK",
			wantCalls: 0,
		},
		{
			name:      "install",
			failOn:    "install",
			wantErr:   "failed to install Emscripten",
			wantCalls: 1,
		},
		{
			name:      "activate",
			failOn:    "activate",
			wantErr:   "failed to activate Emscripten",
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gitClient := &mockGitClient{err: tt.gitErr}
			installer := &mockInstaller{failOn: tt.failOn, failErr: boom}

			p := NewProvisioner(testOptions(t), gitClient, installer, testLogger())
			err := p.Provision(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
			if !errors.Is(err, boom) {
				t.Errorf("expected wrapped cause, got %v", err)
			}
			if len(installer.calls) != tt.wantCalls {
				t.Errorf("expected %d installer calls, got %d", tt.wantCalls, len(installer.calls))
			}
		})
	}
}

func TestScript(t *testing.T) {
	dir := filepath.Join("target", "emsdk")

	if got, want := Script("windows", dir), filepath.Join(dir, "emsdk.bat"); got != want {
		t.Errorf("Script(windows) = %s, want %s", got, want)
	}
	if got, want := Script("linux", dir), filepath.Join(dir, "emsdk"); got != want {
		t.Errorf("Script(linux) = %s, want %s", got, want)
	}
	if got, want := Script("darwin", dir), filepath.Join(dir, "emsdk"); got != want {
		t.Errorf("Script(darwin) = %s, want %s", got, want)
	}
}

func TestShellInstaller_Run(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("installer script test requires a POSIX shell")
	}

	dir := t.TempDir()
	script := "#!/bin/sh\necho \"$(pwd -P) $*\" >> calls.log\n"
	if err := os.WriteFile(filepath.Join(dir, "emsdk"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr strings.Builder
	installer := NewShellInstaller(&stdout, &stderr)
	ctx := context.Background()

	if err := installer.Run(ctx, dir, "install", "4.0.4"); err != nil {
		t.Fatalf("install failed: %v (stderr: %s)", err, stderr.String())
	}
	if err := installer.Run(ctx, dir, "activate", "4.0.4"); err != nil {
		t.Fatalf("activate failed: %v (stderr: %s)", err, stderr.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "calls.log"))
	if err != nil {
		t.Fatalf("script did not run in the SDK directory: %v", err)
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := resolved + " install 4.0.4\n" + resolved + " activate 4.0.4\n"
	if string(data) != want {
		t.Errorf("unexpected calls:\n%s\nwant:\n%s", data, want)
	}
}

func TestShellInstaller_MissingScript(t *testing.T) {
	installer := NewShellInstaller(nil, nil)
	if err := installer.Run(context.Background(), t.TempDir(), "install", "4.0.4"); err == nil {
		t.Fatal("expected error for missing installer script")
	}
}
