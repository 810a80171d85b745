package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apex/log"

	"github.com/shinji-kodama/tarball-extract/internal/classify"
	"github.com/shinji-kodama/tarball-extract/internal/model"
)

// DefaultMaxAttempts is the attempt budget used when none is configured.
const DefaultMaxAttempts = 5

// ErrBudgetExhausted is wrapped in the ExitStatusError returned when
// conflicts keep appearing after the last permitted attempt.
var ErrBudgetExhausted = errors.New("attempt budget exhausted")

// Runner performs a single extraction attempt.
// *pipeline.Runner is the production implementation.
type Runner interface {
	Run(ctx context.Context, req *model.ExtractionRequest) (*model.AttemptResult, error)
}

// Report summarizes a finished run.
type Report struct {
	// Attempts is the number of pipeline runs performed.
	Attempts int

	// Removed lists every conflict path removed, across all attempts, in
	// removal order. Repeats across attempts are kept.
	Removed []string

	// Status is the exit status returned to the caller.
	Status int

	// Final is the terminal state.
	Final State
}

// Controller drives attempts until success, an unrecoverable failure, or
// the attempt budget runs out.
type Controller struct {
	runner      Runner
	remover     Remover
	logger      log.Interface
	diagnostics io.Writer
	maxAttempts int
}

// Option customizes a Controller.
type Option func(*Controller)

// WithRemover replaces the filesystem remover.
func WithRemover(r Remover) Option {
	return func(c *Controller) { c.remover = r }
}

// WithLogger sets the logger for removal and debug output.
func WithLogger(l log.Interface) Option {
	return func(c *Controller) { c.logger = l }
}

// WithDiagnostics sets where failed attempts' diagnostics are forwarded.
// Default os.Stderr.
func WithDiagnostics(w io.Writer) Option {
	return func(c *Controller) { c.diagnostics = w }
}

// WithMaxAttempts sets the attempt budget. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(c *Controller) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// NewController creates a Controller around runner.
func NewController(runner Runner, opts ...Option) *Controller {
	c := &Controller{
		runner:      runner,
		remover:     FSRemover{},
		logger:      log.Log,
		diagnostics: os.Stderr,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract runs the state machine for req.
//
// On success the returned status is 0 and nothing is written to the
// diagnostics writer. On failure the last attempt's diagnostics are written
// there verbatim, the status is the pipeline's exit status, and the error
// is a *model.ExitStatusError. Errors that are not ExitStatusError mean no
// usable attempt could be made (bad request, tar could not be started).
func (c *Controller) Extract(ctx context.Context, req *model.ExtractionRequest) (*Report, error) {
	if !req.Compression.IsValid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownCompression, req.Compression)
	}

	report := &Report{}
	var (
		result  *model.AttemptResult
		outcome classify.Outcome
		cause   error
	)

	state := StateAttempt
	for !state.IsTerminal() {
		switch state {
		case StateAttempt:
			report.Attempts++
			c.logger.WithField("attempt", report.Attempts).Debug("running extraction")

			var err error
			result, err = c.runner.Run(ctx, req)
			if err != nil {
				return report, fmt.Errorf("attempt %d: %w", report.Attempts, err)
			}
			state = AfterAttempt(result, report.Attempts, c.maxAttempts)
			if state == StateFail && classify.Classify(result, req.TargetDir).Recoverable() {
				cause = ErrBudgetExhausted
			}

		case StateClassify:
			outcome = classify.Classify(result, req.TargetDir)
			c.logger.WithFields(log.Fields{
				"attempt": report.Attempts,
				"status":  result.ExitStatus,
				"outcome": outcome.Kind.String(),
			}).Debug("classified failure")
			state = AfterClassify(outcome)

		case StateRecover:
			err := c.removeConflicts(req.TargetDir, outcome.Paths, report)
			if err != nil {
				c.logger.WithError(err).Error("could not remove conflicting path")
				cause = err
			}
			state = AfterRecover(err)
		}
	}

	report.Final = state
	if state == StateSuccess {
		report.Status = 0
		return report, nil
	}

	report.Status = result.ExitStatus
	if _, err := io.WriteString(c.diagnostics, result.Diagnostics); err != nil {
		return report, fmt.Errorf("forward diagnostics: %w", err)
	}
	return report, &model.ExitStatusError{Status: result.ExitStatus, Err: cause}
}

// removeConflicts removes every conflict path of one batch, in order.
func (c *Controller) removeConflicts(root string, paths []string, report *Report) error {
	for _, p := range paths {
		c.logger.WithFields(log.Fields{
			"path":    p,
			"attempt": report.Attempts,
		}).Info("removing conflicting path")
		if err := c.remover.Remove(root, p); err != nil {
			return err
		}
		report.Removed = append(report.Removed, p)
	}
	return nil
}
