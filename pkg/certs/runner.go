package certs

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Result is the outcome of a finished subprocess.
type Result struct {
	ExitCode int
	Output   []byte
}

// Runner runs an issuance tool to completion. An error means the tool could
// not be started; a non-zero exit is reported through Result.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec, collecting stdout and stderr.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode(), Output: out.Bytes()}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Output: out.Bytes()}, nil
}
