package report

import (
	"context"
	"errors"

	"inputsentry/internal/verdict"
)

// Reporter matches engine.Reporter.
type Reporter interface {
	Report(ctx context.Context, v verdict.Verdict) error
}

// Multi fans a verdict out to every reporter in order. All reporters are
// tried; their errors are joined.
type Multi []Reporter

// Report implements engine.Reporter.
func (m Multi) Report(ctx context.Context, v verdict.Verdict) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
