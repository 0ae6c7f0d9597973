package ingest

import "errors"

// Sentinel errors shared across stores and the pipeline.
var (
	ErrNotFound        = errors.New("not found")
	ErrCompanyNotFound = errors.New("company not found")
	ErrCompanyDisabled = errors.New("company is disabled")
	ErrNoCareersURL    = errors.New("company has no careers URL")
)

// InputError marks a rejected request. No snapshot is recorded for it.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return e.Err.Error()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// NewInputError wraps err as an InputError.
func NewInputError(err error) error {
	return &InputError{Err: err}
}

// IsInputError reports whether err carries an InputError.
func IsInputError(err error) bool {
	var target *InputError
	return errors.As(err, &target)
}
