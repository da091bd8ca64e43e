package git

import (
	"context"
	"log/slog"
	"strings"
)

// readOnlyCommands are subcommands that only inspect a working copy
var readOnlyCommands = map[string]bool{
	"describe":  true,
	"rev-parse": true,
	"status":    true,
}

// DryRunClient passes read-only commands through to an inner Client and logs
// every other command instead of running it
type DryRunClient struct {
	inner  Client
	logger *slog.Logger
}

// NewDryRunClient wraps inner so that no mutating git command is executed
func NewDryRunClient(inner Client, logger *slog.Logger) *DryRunClient {
	return &DryRunClient{inner: inner, logger: logger}
}

// Run runs read-only commands and logs the rest
func (c *DryRunClient) Run(ctx context.Context, dir string, args ...string) (string, error) {
	if len(args) > 0 && readOnlyCommands[args[0]] {
		return c.inner.Run(ctx, dir, args...)
	}

	c.logger.Info("[dry-run] would run git", "dir", dir, "args", strings.Join(args, " "))
	return "", nil
}
