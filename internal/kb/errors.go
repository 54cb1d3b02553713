package kb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	ErrIndexUnavailable    = errors.New("vector index unavailable")
	ErrPartialIngest       = errors.New("partial ingest failure")
)

// ValidationError reports bad caller input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

// Validationf builds a ValidationError for field.
func Validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ProviderError is a failed embedding call.
type ProviderError struct {
	Op         string
	Status     int
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString("embedding provider: ")
	b.WriteString(e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Is(target error) bool { return target == ErrProviderUnavailable }
func (e *ProviderError) Unwrap() error        { return e.Err }

// IndexError is a failed vector index call.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("vector index: %s: %v", e.Op, e.Err)
}

func (e *IndexError) Is(target error) bool { return target == ErrIndexUnavailable }
func (e *IndexError) Unwrap() error        { return e.Err }

// PartialIngestError reports a document whose chunks were only partly
// embedded or written. Written chunks stay in the index.
type PartialIngestError struct {
	DocumentName string
	Written      []int
	Failed       []int
	Err          error
}

// NewPartialIngestError sorts the index lists so reports are stable.
func NewPartialIngestError(name string, written, failed []int, cause error) *PartialIngestError {
	sort.Ints(written)
	sort.Ints(failed)
	return &PartialIngestError{DocumentName: name, Written: written, Failed: failed, Err: cause}
}

func (e *PartialIngestError) Error() string {
	return fmt.Sprintf("ingest %q: %d chunks written, chunks %v failed: %v",
		e.DocumentName, len(e.Written), e.Failed, e.Err)
}

func (e *PartialIngestError) Is(target error) bool { return target == ErrPartialIngest }
func (e *PartialIngestError) Unwrap() error        { return e.Err }

// IsValidation reports whether err is a caller input error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsCanceled reports whether err comes from a canceled context.
func IsCanceled(err error) bool { return errors.Is(err, context.Canceled) }

// IsRetryable decides whether a failed call is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrValidation) {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	if errors.Is(err, ErrIndexUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// RetryAfter returns the server-provided backoff hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}
