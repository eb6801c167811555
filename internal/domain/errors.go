package domain

import "errors"

/*
Error taxonomy (§7). These are categories, not exception classes: callers
classify with errors.Is/errors.As and apply the matching retry policy.
Generalized from the teacher's internal/pkg/errors sentinel-var style.
*/
var (
	// Transient infrastructure. Retry with exponential backoff bounded by
	// the step's attempts; surfaces as step-retry, not task failure, until
	// exhausted.
	ErrBackendUnavailable = errors.New("queue backend unavailable")
	ErrStorePutFailed     = errors.New("persistence store write failed")
	ErrStorageIO          = errors.New("object storage io error")

	// Plan build. Fatal to the task before submission; never enqueued.
	ErrUnknownTaskKind  = errors.New("unknown task kind")
	ErrMalformedPayload = errors.New("malformed task payload")
	ErrMalformedPlan    = errors.New("malformed flow plan")

	// Aggregation conflict. Logged and left as-is; backend child-values
	// remain authoritative.
	ErrTerminalConflict = errors.New("conflicting terminal status")

	// Dispatcher.
	ErrUnregisteredStep = errors.New("unregistered step kind")
)

// HandlerError is how a step handler classifies its own failure (§7
// handler-transient vs handler-permanent). Retryable=true is treated the
// same as a transient infrastructure error by the Step Worker; Retryable=
// false writes a failed StepResult immediately and cascades.
type HandlerError struct {
	Retryable bool
	Err       error
}

func (e *HandlerError) Error() string {
	if e == nil || e.Err == nil {
		return "handler error"
	}
	return e.Err.Error()
}

func (e *HandlerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Transient wraps err as a retryable handler error (e.g. rate limits, 5xx
// from an upstream API).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &HandlerError{Retryable: true, Err: err}
}

// Permanent wraps err as a non-retryable handler error (e.g. malformed
// input media, validation failures).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &HandlerError{Retryable: false, Err: err}
}

// IsRetryable classifies any error produced in this system: HandlerError
// carries its own classification; the transient infrastructure sentinels
// are always retryable; everything else defaults to non-retryable (a
// handler-permanent error is the safe default for unclassified errors).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Retryable
	}
	switch {
	case errors.Is(err, ErrBackendUnavailable),
		errors.Is(err, ErrStorePutFailed),
		errors.Is(err, ErrStorageIO):
		return true
	default:
		return false
	}
}
