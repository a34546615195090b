package reputation

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/triage-ai/palisade/package_guard/internal/extract"
	"go.uber.org/zap"
)

const (
	// DefaultBinary is the scoring CLI looked up on PATH.
	DefaultBinary = "socket"

	// DefaultTimeout bounds one scoring call.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxOutputBytes caps how much stdout is buffered from the tool.
	DefaultMaxOutputBytes = 10 << 20

	// InstallHint is shown when the tool is missing.
	InstallHint = "install the Socket CLI with `npm install -g socket` and run `socket login`"

	maxStderrBytes = 4096
	waitDelay      = time.Second
)

// SocketConfig configures a SocketClient.
type SocketConfig struct {
	Binary         string
	Timeout        time.Duration
	MaxOutputBytes int64
	Logger         *zap.Logger
}

// SocketClient scores packages by running `<binary> package score <ecosystem> <name> --json`.
type SocketClient struct {
	binary    string
	timeout   time.Duration
	maxOutput int64
	lookPath  func(string) (string, error)
	logger    *zap.Logger
}

// NewSocketClient creates a SocketClient, filling unset fields with defaults.
func NewSocketClient(cfg SocketConfig) *SocketClient {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &SocketClient{
		binary:    cfg.Binary,
		timeout:   cfg.Timeout,
		maxOutput: cfg.MaxOutputBytes,
		lookPath:  exec.LookPath,
		logger:    cfg.Logger,
	}
}

// Available looks the binary up without running it.
func (c *SocketClient) Available() error {
	if _, err := c.lookPath(c.binary); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrToolNotFound, c.binary, err)
	}
	return nil
}

// Score runs the tool once. Timeouts, non-zero exits, oversized output and
// unparsable reports all wrap ErrIndeterminate; nothing is retried.
func (c *SocketClient) Score(ctx context.Context, ref extract.PackageRef) (*Report, error) {
	path, err := c.lookPath(c.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrToolNotFound, c.binary, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stdout := &cappedBuffer{limit: c.maxOutput}
	stderr := &cappedBuffer{limit: maxStderrBytes}

	cmd := exec.CommandContext(ctx, path, "package", "score", ref.Ecosystem, ref.Name, "--json")
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	c.logger.Debug("reputation tool finished",
		zap.String("package", ref.Name),
		zap.Duration("elapsed", elapsed),
		zap.Int("stdout_bytes", stdout.Len()),
		zap.Error(runErr),
	)

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %s timed out after %s", ErrIndeterminate, c.binary, c.timeout)
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%w: %v", ErrIndeterminate, ctx.Err())
	case runErr != nil:
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%w: %s failed: %v: %s", ErrIndeterminate, c.binary, runErr, msg)
		}
		return nil, fmt.Errorf("%w: %s failed: %v", ErrIndeterminate, c.binary, runErr)
	case stdout.Overflowed():
		return nil, fmt.Errorf("%w: %s output exceeded %d bytes", ErrIndeterminate, c.binary, c.maxOutput)
	}

	report, err := ParseReport(stdout.Bytes(), ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndeterminate, err)
	}
	return report, nil
}
