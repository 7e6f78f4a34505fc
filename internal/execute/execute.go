// Package execute runs a shell command with a request body on its
// standard input and collects bounded output.
package execute

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"reactnet/internal/buffer"
	"reactnet/internal/errors"
)

var (
	// ErrTimeout is returned when the command outlives its deadline.
	ErrTimeout = errors.New("execute: command timed out")

	// ErrOutputOverflow is returned when stdout or stderr exceeds the cap.
	ErrOutputOverflow = errors.New("execute: output limit exceeded")
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultTimeout   = 10 * time.Second
	DefaultMaxOutput = 64 << 10

	// waitDelay bounds how long Run waits for the pipes to drain after
	// the child was killed.
	waitDelay = 500 * time.Millisecond
)

// Options bound a single run.
type Options struct {
	Timeout   time.Duration
	MaxOutput int      // cap for stdout and, separately, stderr
	Env       []string // extra KEY=value pairs on top of the inherited environment
	Dir       string
}

// Result is the outcome of a command that ran.  Stdout and Stderr hold
// whatever was collected, also when Run returns ErrTimeout or
// ErrOutputOverflow.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Run executes command through /bin/sh with input on stdin.  A
// non-zero exit status is not an error; it is reported in
// Result.ExitCode.
func Run(ctx context.Context, command string, input []byte, opts Options) (*Result, error) {
	if command == "" {
		return nil, fmt.Errorf("execute: empty command")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxOutput <= 0 {
		opts.MaxOutput = DefaultMaxOutput
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	stdout := &capped{buf: buffer.New(opts.MaxOutput), cancel: cancel}
	stderr := &capped{buf: buffer.New(opts.MaxOutput), cancel: cancel}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Dir = opts.Dir
	cmd.WaitDelay = waitDelay
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		ExitCode: -1,
		Stdout:   stdout.buf.Clone(),
		Stderr:   stderr.buf.Clone(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case stdout.overflow || stderr.overflow:
		return res, ErrOutputOverflow
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return res, ErrTimeout
	case err == nil:
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.Exited() {
		return res, nil
	}
	return res, fmt.Errorf("execute %q: %w", command, err)
}

// capped collects output up to the buffer limit, keeping the part of
// the write that still fits, and stops the child once the limit is
// crossed.
type capped struct {
	buf      *buffer.Buffer
	cancel   context.CancelFunc
	overflow bool
}

func (c *capped) Write(p []byte) (int, error) {
	if free := c.buf.Free(); len(p) > free {
		n, _ := c.buf.Write(p[:free])
		c.overflow = true
		c.cancel()
		return n, errors.ErrCapacity
	}
	return c.buf.Write(p)
}
