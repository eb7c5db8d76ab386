// Package localrunner executes work units as local subprocesses. Intended for
// development; production deployments run work on a cluster.
package localrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowforge-ai/flowforge/internal/provider"
)

const maxOutputBytes = 1 << 20 // 1 MiB of captured output per run

// Runner executes commands on the local machine.
type Runner struct {
	workdir string
	logger  zerolog.Logger
}

// New creates a local runner rooted at workdir (empty means the process cwd).
func New(workdir string, logger zerolog.Logger) *Runner {
	return &Runner{
		workdir: workdir,
		logger:  logger.With().Str("component", "localrunner").Logger(),
	}
}

// Run executes the command and captures combined output. A non-zero exit is a
// result, not an error; errors mean the command could not run at all.
func (r *Runner) Run(ctx context.Context, req provider.RunRequest) (*provider.RunResult, error) {
	if len(req.Command) == 0 {
		return nil, fmt.Errorf("run request has no command")
	}

	cmd := exec.CommandContext(ctx, req.Command[0], req.Command[1:]...)
	cmd.Dir = r.workdir
	cmd.Env = os.Environ()
	for k, v := range req.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("running %q: %w", req.Command[0], err)
		}
		exitCode = exitErr.ExitCode()
	}

	output := buf.Bytes()
	if len(output) > maxOutputBytes {
		output = output[len(output)-maxOutputBytes:]
	}

	r.logger.Info().
		Str("name", req.Name).
		Int("exit_code", exitCode).
		Dur("elapsed", elapsed).
		Msg("command finished")
	return &provider.RunResult{ExitCode: exitCode, Output: string(output)}, nil
}
