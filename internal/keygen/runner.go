// Package keygen supervises the external vanity-address generator process.
// The invocation contract is fixed: five paired flags on the command line,
// exactly one JSON object on stdout.
package keygen

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/whale-professor/Solvan/internal/domain"
)

// ErrDeadlineExceeded reports that the generator hit the hard wall-clock
// deadline and was terminated.
var ErrDeadlineExceeded = errors.New("generator deadline exceeded")

// stderrExcerptLimit caps how much captured stderr travels in diagnostics.
const stderrExcerptLimit = 512

// termGrace is how long a timed-out process gets to exit after SIGTERM
// before it is killed.
const termGrace = 5 * time.Second

// ProcessError describes a generator run that ended without a usable result:
// non-zero exit, empty or malformed output, or a spawn failure.
type ProcessError struct {
	ExitCode int
	Message  string
	Stderr   string
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("generator exited with code %d", e.ExitCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Stderr != "" {
		msg += " (stderr: " + e.Stderr + ")"
	}
	return msg
}

// Runner spawns one generator process per call and enforces the deadline.
type Runner struct {
	bin      string
	deadline time.Duration
	log      zerolog.Logger
}

// NewRunner creates a runner for the given generator binary.
func NewRunner(bin string, deadline time.Duration, log zerolog.Logger) *Runner {
	return &Runner{
		bin:      bin,
		deadline: deadline,
		log:      log.With().Str("component", "keygen").Logger(),
	}
}

// generatorOutput is the raw stdout contract. On failure the generator still
// exits through stdout with an {"error": …} object.
type generatorOutput struct {
	domain.JobResult
	Error string `json:"error"`
}

// Generate runs one search to completion. Exactly one of the result or the
// error is meaningful; the process and its timer are always released before
// return. The synchronous Wait under CommandContext gives a single
// settlement path, so a deadline firing and a process exit cannot both win.
func (r *Runner) Generate(ctx context.Context, req domain.GenerationRequest) (domain.JobResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.deadline)
	defer cancel()

	args := []string{
		"--type", string(req.SearchType),
		"--pattern", req.Pattern,
		"--case-sensitive", strconv.FormatBool(req.CaseSensitive),
		"--count", "1",
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = termGrace

	started := time.Now()
	r.log.Info().Str("pattern", req.Pattern).Str("search_type", string(req.SearchType)).Msg("generator started")

	err := cmd.Run()
	r.logStderr(&stderr)

	if ctx.Err() == context.DeadlineExceeded {
		r.log.Warn().Dur("elapsed", time.Since(started)).Msg("generator killed on deadline")
		return domain.JobResult{}, fmt.Errorf("%w after %s", ErrDeadlineExceeded, r.deadline)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return domain.JobResult{}, &ProcessError{
				ExitCode: exitErr.ExitCode(),
				Message:  failureMessage(stdout.Bytes()),
				Stderr:   excerpt(stderr.Bytes()),
			}
		}
		return domain.JobResult{}, fmt.Errorf("spawn generator: %w", err)
	}

	result, err := parseOutput(stdout.Bytes())
	if err != nil {
		return domain.JobResult{}, &ProcessError{
			ExitCode: 0,
			Message:  err.Error(),
			Stderr:   excerpt(stderr.Bytes()),
		}
	}

	r.log.Info().
		Str("address", result.Address).
		Int64("attempts", result.Attempts).
		Dur("elapsed", time.Since(started)).
		Msg("generator finished")
	return result, nil
}

// parseOutput enforces the stdout contract: exactly one JSON object carrying
// a non-empty address. Anything else is a contract violation.
func parseOutput(out []byte) (domain.JobResult, error) {
	if len(bytes.TrimSpace(out)) == 0 {
		return domain.JobResult{}, errors.New("empty output")
	}

	dec := json.NewDecoder(bytes.NewReader(out))
	var payload generatorOutput
	if err := dec.Decode(&payload); err != nil {
		return domain.JobResult{}, fmt.Errorf("malformed output: %w", err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		return domain.JobResult{}, errors.New("output contains more than one object")
	}

	if payload.Error != "" {
		return domain.JobResult{}, fmt.Errorf("generator error: %s", payload.Error)
	}
	if payload.Address == "" {
		return domain.JobResult{}, errors.New("output carries no address")
	}
	return payload.JobResult, nil
}

// failureMessage pulls the {"error": …} string out of a failed run's stdout
// when there is one.
func failureMessage(out []byte) string {
	var payload generatorOutput
	if err := json.Unmarshal(bytes.TrimSpace(out), &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return ""
}

func (r *Runner) logStderr(buf *bytes.Buffer) {
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			r.log.Debug().Str("stream", "stderr").Msg(line)
		}
	}
}

func excerpt(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if len(s) > stderrExcerptLimit {
		s = "…" + s[len(s)-stderrExcerptLimit:]
	}
	return s
}
