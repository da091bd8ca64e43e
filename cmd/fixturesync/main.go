package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/schaermu/fixturesync/internal/config"
	"github.com/schaermu/fixturesync/internal/git"
	"github.com/schaermu/fixturesync/internal/patch"
	"github.com/schaermu/fixturesync/internal/projectroot"
	"github.com/schaermu/fixturesync/internal/sdk"
	"github.com/schaermu/fixturesync/internal/sync"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	rootDir   string

	// fixtures / patch flags
	dryRun bool
	jobs   int
	only   []string

	// emscripten flags
	emsdkVersion string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fixturesync",
	Short: "Fetch grammar test fixtures and provision the Emscripten SDK",
	Long: `fixturesync keeps the grammar repositories listed in test/fixtures/fixtures.json
checked out at their pinned tag or tracked branch under test/fixtures/grammars,
and rewrites their package metadata and binding tests to the bun toolchain.

It also provisions the Emscripten SDK used for wasm builds into target/emsdk.`,
	SilenceUsage: true,
}

var fixturesCmd = &cobra.Command{
	Use:   "fixtures",
	Short: "Clone or update every grammar fixture",
	Long: `Fixtures reads the fixtures manifest and, for every grammar, clones the
repository at its target ref when it is missing, or moves the existing working
copy to the target ref when it sits on a different one.

After each fixture is synced its package.json files, node binding test and
lockfiles are patched. Patch failures are logged and never fail the run.`,
	RunE: runFixtures,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which fixtures are missing or stale",
	RunE:  runStatus,
}

var patchCmd = &cobra.Command{
	Use:   "patch <dir>...",
	Short: "Patch the metadata of already checked out grammar directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPatch,
}

var emscriptenCmd = &cobra.Command{
	Use:   "emscripten",
	Short: "Clone, install and activate the Emscripten SDK",
	Long: `Emscripten clones the emsdk repository into target/emsdk and runs its
installer to install and activate the configured SDK version.

Nothing is done when the SDK directory already exists.`,
	RunE: runEmscripten,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "fixturesync %s\n", version)
		_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
		_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+config.DefaultFileName+" in the project root, if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json, pretty)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "project root (default is the nearest parent holding "+projectroot.Marker+")")

	// Fixtures command flags
	fixturesCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	fixturesCmd.Flags().IntVar(&jobs, "jobs", 0, "number of fixtures to sync concurrently (default from config)")
	fixturesCmd.Flags().StringSliceVar(&only, "only", nil, "only sync the named grammars")

	statusCmd.Flags().StringSliceVar(&only, "only", nil, "only show the named grammars")

	patchCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the pending changes without writing them")

	emscriptenCmd.Flags().StringVar(&emsdkVersion, "version", "", "Emscripten version to install (default from config)")

	// Add commands
	rootCmd.AddCommand(fixturesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(patchCmd)
	rootCmd.AddCommand(emscriptenCmd)
	rootCmd.AddCommand(versionCmd)
}

func runFixtures(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	// Setup logger
	logger := setupLogger()

	// Load configuration
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine := sync.NewEngine(cfg, newGitClient(cfg), logger, sync.Options{
		DryRun: dryRun,
		Jobs:   jobs,
		Only:   only,
	})

	if err := engine.Run(ctx); err != nil {
		logger.Error("fixture sync failed", "error", err)
		return err
	}

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine := sync.NewEngine(cfg, newGitClient(cfg), logger, sync.Options{Only: only})
	statuses, err := engine.Status(ctx)
	if err != nil {
		logger.Error("status failed", "error", err)
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "GRAMMAR\tTARGET\tCURRENT\tSTATUS")
	for _, s := range statuses {
		current := "-"
		if s.Present {
			current = s.State.Kind.String() + " " + s.State.Name
		}
		_, _ = fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n", s.Grammar, s.Target.Kind(), s.Target, current, s.Label())
	}
	return w.Flush()
}

func runPatch(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	patcher := patch.New(dryRun)

	var errs []error
	for _, dir := range args {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			errs = append(errs, fmt.Errorf("not a directory: %s", dir))
			continue
		}

		report := patcher.Patch(dir)
		for _, step := range report.Steps {
			if step.Err != nil {
				logger.Warn("skipped fixture metadata", "path", step.Path, "error", step.Err)
				continue
			}
			logger.Info("fixture metadata "+string(step.Action), "path", step.Path, "reason", step.Reason)
			if step.Diff != "" {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), step.Diff)
			}
		}
		logger.Info("patched fixture", "dir", dir, "changed", report.Changed(), "dry_run", dryRun)
	}

	return errors.Join(errs...)
}

func runEmscripten(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts := sdk.Options{
		URL:     cfg.Emsdk.URL,
		Dir:     cfg.Emsdk.Dir,
		Version: cfg.Emsdk.Version,
	}
	if emsdkVersion != "" {
		opts.Version = emsdkVersion
	}

	installer := sdk.NewShellInstaller(cmd.OutOrStdout(), cmd.ErrOrStderr())
	provisioner := sdk.NewProvisioner(opts, newGitClient(cfg), installer, logger)
	if err := provisioner.Provision(ctx); err != nil {
		logger.Error("emscripten provisioning failed", "error", err)
		return err
	}

	return nil
}

func newGitClient(cfg *config.Config) git.Client {
	return git.NewShellClient(cfg.Git.Path, cfg.Auth.SSHKeyFile, cfg.Auth.HTTPSTokenFile)
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	switch logFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "pretty":
		handler = log.NewWithOptions(os.Stdout, log.Options{
			Level:           log.Level(level),
			ReportTimestamp: true,
		})
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	root, err := resolveRoot()
	if err != nil {
		return nil, err
	}

	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		candidate := filepath.Join(root, config.DefaultFileName)
		if _, err := os.Stat(candidate); err == nil {
			configPath = candidate
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", candidate, err)
		}
	}

	var cfg *config.Config
	if configPath == "" {
		logger.Debug("no configuration file, using defaults", "root", root)
		cfg, err = config.Default(root)
	} else {
		logger.Info("loading configuration", "path", configPath)
		// an explicit --root wins over the root set in the file
		override := ""
		if rootDir != "" {
			override = root
		}
		cfg, err = config.LoadWithRoot(configPath, override)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"root", cfg.Root,
		"manifest", cfg.Fixtures.Manifest,
		"grammars_dir", cfg.Fixtures.GrammarsDir,
		"emsdk_dir", cfg.Emsdk.Dir,
		"auth", cfg.AuthMethod())

	return cfg, nil
}

// resolveRoot returns --root, or the fixture project around the working directory
func resolveRoot() (string, error) {
	if rootDir != "" {
		return filepath.Abs(rootDir)
	}
	root, err := projectroot.FromWorkingDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine project root: %w", err)
	}
	return root, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
