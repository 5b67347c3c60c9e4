package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"mcpod/internal/domain"
	"mcpod/internal/infra/telemetry"
)

// Runner executes a CLI command and returns its stdout. Injected so tests
// never shell out.
type Runner interface {
	Run(ctx context.Context, stdin string, args ...string) (string, error)
}

type ExecRunnerOptions struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// ExecRunner runs commands through os/exec with bounded retries and
// exponential backoff between attempts. A per-attempt timeout turns a hung
// command into a regular failure that flows through the retry path.
type ExecRunner struct {
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewExecRunner(opts ExecRunnerOptions) *ExecRunner {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultCommandTimeoutSeconds * time.Second
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = domain.DefaultCommandRetries
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = domain.DefaultCommandRetryDelaySecs * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{
		timeout:    timeout,
		retries:    retries,
		retryDelay: retryDelay,
		logger:     logger.Named("runner"),
	}
}

func (r *ExecRunner) Run(ctx context.Context, stdin string, args ...string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("command is required")
	}

	delay := r.retryDelay
	var lastErr error
	for attempt := 1; attempt <= r.retries; attempt++ {
		stdout, err := r.runOnce(ctx, stdin, args)
		if err == nil {
			return stdout, nil
		}
		lastErr = err
		r.logger.Warn("command failed",
			zap.String("command", strings.Join(args, " ")),
			telemetry.AttemptField(attempt),
			telemetry.AttemptsField(r.retries),
			zap.Error(err),
		)

		if attempt < r.retries {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}
	}
	return "", fmt.Errorf("command %s failed after %d attempts: %w", args[0], r.retries, lastErr)
}

func (r *ExecRunner) runOnce(ctx context.Context, stdin string, args []string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return "", domain.E(domain.CodeDeadlineExceeded, "runner.run", "command timeout", runCtx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s: %s", args[0], msg)
	}
	return stdout.String(), nil
}
