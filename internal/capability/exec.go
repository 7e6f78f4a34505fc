package capability

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"reactnet/httpd"
	"reactnet/internal/errors"
	"reactnet/internal/execute"
	"reactnet/internal/retry"
	"reactnet/util"
)

// Exec runs Command through /bin/sh for every request, with the request
// body on stdin and CGI-style variables in the environment.
//
//	200 text/plain  stdout of a zero exit
//	500 text/plain  stderr of a non-zero exit, or output over the cap
//	503 text/plain  the breaker is open after repeated failures
//	504 text/plain  the command outlived Options.Timeout
type Exec struct {
	Command string
	Options execute.Options
	Breaker *retry.CircuitBreaker // nil disables the breaker
	Logger  *util.Logger
}

// Handle runs the command and sends its outcome.
func (e *Exec) Handle(ctx context.Context, req *httpd.Session) error {
	log := e.Logger
	if log == nil {
		log = util.NewLogger(0)
	}
	if e.Breaker != nil {
		if err := e.Breaker.Allow(); err != nil {
			log.Warn("exec: %v", err)
			return req.SendResponse(503, "text/plain", err.Error()+"\n")
		}
	}

	opts := e.Options
	opts.Env = append(append([]string(nil), e.Options.Env...), requestEnv(req)...)

	res, err := execute.Run(ctx, e.Command, req.Body(), opts)
	outcome := err
	if err == nil && res.ExitCode != 0 {
		outcome = fmt.Errorf("exit status %d", res.ExitCode)
	}
	if e.Breaker != nil {
		e.Breaker.Record(outcome)
	}

	switch {
	case errors.Is(err, execute.ErrTimeout):
		log.Warn("exec: %q timed out after %v", e.Command, res.Duration)
		return req.SendResponse(504, "text/plain", "command timed out\n")
	case errors.Is(err, execute.ErrOutputOverflow):
		log.Warn("exec: %q exceeded the output limit", e.Command)
		return req.SendResponse(500, "text/plain", "command output limit exceeded\n")
	case err != nil:
		log.Error("exec: %v", err)
		return req.SendResponse(500, "text/plain", err.Error()+"\n")
	case res.ExitCode != 0:
		log.Verbose("exec: %q exited %d in %v", e.Command, res.ExitCode, res.Duration)
		return req.SendResponseBytes(500, "text/plain", res.Stderr)
	}
	log.Debug("exec: %q done in %v, %d bytes", e.Command, res.Duration, len(res.Stdout))
	return req.SendResponseBytes(200, "text/plain", res.Stdout)
}

func requestEnv(req *httpd.Session) []string {
	query := ""
	if _, q, ok := strings.Cut(req.Target(), "?"); ok {
		query = q
	}
	return []string{
		"REQUEST_METHOD=" + req.Method(),
		"REQUEST_URI=" + req.Target(),
		"PATH_INFO=" + req.URI(),
		"QUERY_STRING=" + query,
		"CONTENT_LENGTH=" + strconv.Itoa(len(req.Body())),
		"REMOTE_ADDR=" + req.PeerIP(),
		"REMOTE_PORT=" + strconv.Itoa(req.PeerPort()),
	}
}
