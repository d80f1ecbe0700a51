package ffprobe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	RunWithInput(ctx context.Context, input []byte, name string, args ...string) ([]byte, error)
}

// CommandRunner runs commands with os/exec. Stdout is returned; stderr is
// folded into the error.
type CommandRunner struct{}

// NewCommandRunner returns the default runner.
func NewCommandRunner() *CommandRunner {
	return &CommandRunner{}
}

// Run executes name with args.
func (CommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return runCommand(exec.CommandContext(ctx, name, args...))
}

// RunWithInput executes name with input on stdin.
func (CommandRunner) RunWithInput(ctx context.Context, input []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(input)
	return runCommand(cmd)
}

func runCommand(cmd *exec.Cmd) ([]byte, error) {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return output, nil
}
