package sdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/schaermu/fixturesync/internal/git"
)

// Installer runs the emsdk installer script of an SDK checkout
type Installer interface {
	// Run invokes the installer inside dir with args
	Run(ctx context.Context, dir string, args ...string) error
}

// ShellInstaller implements Installer by executing the checkout's emsdk script
type ShellInstaller struct {
	goos   string
	stdout io.Writer
	stderr io.Writer
}

// NewShellInstaller creates an installer that streams the script output to
// stdout and stderr
func NewShellInstaller(stdout, stderr io.Writer) *ShellInstaller {
	return &ShellInstaller{goos: runtime.GOOS, stdout: stdout, stderr: stderr}
}

// Script returns the installer path inside dir for the given GOOS
func Script(goos, dir string) string {
	if goos == "windows" {
		return filepath.Join(dir, "emsdk.bat")
	}
	return filepath.Join(dir, "emsdk")
}

// Run executes the installer with its working directory set to dir
func (i *ShellInstaller) Run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, Script(i.goos, dir), args...)
	cmd.Dir = dir
	cmd.Stdout = i.stdout
	cmd.Stderr = i.stderr
	return cmd.Run()
}

// Options configures a Provisioner
type Options struct {
	URL     string
	Dir     string
	Version string
}

// Provisioner clones and activates the Emscripten SDK
type Provisioner struct {
	opts      Options
	git       git.Client
	installer Installer
	logger    *slog.Logger
}

// NewProvisioner creates a new SDK provisioner
func NewProvisioner(opts Options, gitClient git.Client, installer Installer, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		opts:      opts,
		git:       gitClient,
		installer: installer,
		logger:    logger,
	}
}

// Provision clones the SDK and installs and activates the configured version.
// An existing SDK directory is left untouched.
func (p *Provisioner) Provision(ctx context.Context) error {
	if _, err := os.Stat(p.opts.Dir); err == nil {
		p.logger.Info("Emscripten SDK already exists", "dir", p.opts.Dir)
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat %s: %w", p.opts.Dir, err)
	}

	p.logger.Info("cloning the Emscripten SDK", "url", p.opts.URL, "dir", p.opts.Dir)
	if err := git.Clone(ctx, p.git, git.CloneOptions{URL: p.opts.URL, Dest: p.opts.Dir}); err != nil {
		return fmt.Errorf("failed to clone the Emscripten SDK: %w", err)
	}

	p.logger.Info("installing Emscripten", "version", p.opts.Version)
	if err := p.installer.Run(ctx, p.opts.Dir, "install", p.opts.Version); err != nil {
		return fmt.Errorf("failed to install Emscripten: %w", err)
	}

	p.logger.Info("activating Emscripten", "version", p.opts.Version)
	if err := p.installer.Run(ctx, p.opts.Dir, "activate", p.opts.Version); err != nil {
		return fmt.Errorf("failed to activate Emscripten: %w", err)
	}

	p.logger.Info("Emscripten SDK ready", "version", p.opts.Version, "dir", p.opts.Dir)
	return nil
}
