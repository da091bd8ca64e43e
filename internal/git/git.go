package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Client runs git subcommands
type Client interface {
	// Run executes git with args inside dir (the current directory when dir is empty)
	// and returns its trimmed standard output
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExitError reports a git command that started but exited non-zero
type ExitError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("git %s: exit status %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// IsExitFailure reports whether err came from git exiting non-zero, as opposed to
// git failing to start at all
func IsExitFailure(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}

// ShellClient implements Client by shelling out to the git command
type ShellClient struct {
	gitPath        string
	sshKeyFile     string
	httpsTokenFile string
}

// NewShellClient creates a new git client that uses the git executable at gitPath
// (looked up on PATH when it is a bare name)
func NewShellClient(gitPath, sshKeyFile, httpsTokenFile string) *ShellClient {
	if gitPath == "" {
		gitPath = "git"
	}
	return &ShellClient{
		gitPath:        gitPath,
		sshKeyFile:     sshKeyFile,
		httpsTokenFile: httpsTokenFile,
	}
}

// Run executes a git subcommand and returns its trimmed stdout
func (c *ShellClient) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmdArgs := args
	if dir != "" {
		cmdArgs = append([]string{"-C", dir}, args...)
	}

	cmd := exec.CommandContext(ctx, c.gitPath, cmdArgs...)
	if err := c.configureAuth(cmd); err != nil {
		return "", err
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExitError{
				Args:     args,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return "", fmt.Errorf("failed to run %s: %w", c.gitPath, err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// configureAuth sets up authentication for git operations
func (c *ShellClient) configureAuth(cmd *exec.Cmd) error {
	if c.sshKeyFile == "" && c.httpsTokenFile == "" {
		return nil
	}
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	// SSH authentication
	if c.sshKeyFile != "" {
		// The path is shell-quoted because git hands GIT_SSH_COMMAND to a shell.
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.sshKeyFile))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
		return nil
	}

	// HTTPS authentication with token
	token, err := os.ReadFile(c.httpsTokenFile)
	if err != nil {
		return fmt.Errorf("failed to read HTTPS token file: %w", err)
	}

	cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, "FIXTURESYNC_GIT_TOKEN="+strings.TrimSpace(string(token)))
	cmd.Args = insertGitFlags(cmd.Args,
		"-c", `credential.helper=!f() { echo "username=x-access-token"; echo "password=$FIXTURESYNC_GIT_TOKEN"; }; f`,
	)

	return nil
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "clone", "fetch").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
