package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks bad user input, rejected before any network work.
	ErrValidation = errors.New("validation error")

	// ErrInvalidURL is a validation error for a manifest URL that is not an
	// absolute http(s) URL.
	ErrInvalidURL = fmt.Errorf("%w: invalid manifest URL", ErrValidation)

	// ErrManifest marks an unreachable, unparseable or unsupported playlist.
	ErrManifest = errors.New("manifest error")

	// ErrEmptyPlaylist is a manifest error for a playlist without media segments.
	ErrEmptyPlaylist = fmt.Errorf("%w: playlist has no segments", ErrManifest)

	// ErrFetch marks a permanent segment fetch failure.
	ErrFetch = errors.New("fetch error")

	// ErrAssembly marks a failure of the muxing step.
	ErrAssembly = errors.New("assembly error")

	// ErrIO marks filesystem or scratch space failures.
	ErrIO = errors.New("io error")

	// ErrCancelled marks a run stopped by an external cancellation.
	ErrCancelled = errors.New("cancelled")
)

// FetchKind classifies a segment fetch failure.
type FetchKind int

const (
	KindNetwork FetchKind = iota
	KindHTTPStatus
	KindTimeout
	KindIncompleteBody
	KindMalformed
)

func (k FetchKind) String() string {
	switch k {
	case KindNetwork:
		return "NetworkError"
	case KindHTTPStatus:
		return "HTTPStatusError"
	case KindTimeout:
		return "TimeoutError"
	case KindIncompleteBody:
		return "IncompleteBodyError"
	case KindMalformed:
		return "MalformedResponse"
	default:
		return "UnknownError"
	}
}

// FetchError is the error attached to a failed SegmentResult.
type FetchError struct {
	Kind      FetchKind
	Code      int // HTTP status, KindHTTPStatus only
	Attempts  int
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Kind == KindHTTPStatus {
		fmt.Fprintf(&b, "{%d}", e.Code)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetch}
	}
	return []error{ErrFetch, e.Err}
}

// AbortedError is returned when the pipeline gave up without producing output.
type AbortedError struct {
	Cause  error
	Failed []SegmentFailure
}

func (e *AbortedError) Error() string {
	if len(e.Failed) == 0 {
		return fmt.Sprintf("pipeline aborted: %v", e.Cause)
	}
	return fmt.Sprintf("pipeline aborted: %v (failed segments: %s)", e.Cause, FailedIndices(e.Failed))
}

func (e *AbortedError) Unwrap() error { return e.Cause }

// PartialFailureError is returned under the partial policy when output was
// produced with some segments missing.
type PartialFailureError struct {
	OutputPath string
	Failed     []SegmentFailure
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("output %s is missing %d segment(s): %s", e.OutputPath, len(e.Failed), FailedIndices(e.Failed))
}

func (e *PartialFailureError) Unwrap() error { return ErrFetch }

// FailedIndices formats failure indices as "2, 5, 9".
func FailedIndices(failed []SegmentFailure) string {
	parts := make([]string, len(failed))
	for i, f := range failed {
		parts[i] = fmt.Sprint(f.Index)
	}
	return strings.Join(parts, ", ")
}
