package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/datallboy/hlsget/internal/domain"
)

// transportError classifies errors from the round trip or the body read.
// All of them are transient.
func transportError(err error) *domain.FetchError {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &domain.FetchError{Kind: domain.KindTimeout, Transient: true, Err: err}
	}
	return &domain.FetchError{Kind: domain.KindNetwork, Transient: true, Err: err}
}

// ParseContentRange parses a "bytes start-end/total" header value.
// Total is -1 when the server sends "*".
func ParseContentRange(header string) (start, end, total int64, err error) {
	if !strings.HasPrefix(header, "bytes ") {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q", header)
	}
	header = strings.TrimPrefix(header, "bytes ")

	span, size, ok := strings.Cut(header, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q", header)
	}

	first, last, ok := strings.Cut(span, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q", header)
	}

	if start, err = strconv.ParseInt(first, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}
	if end, err = strconv.ParseInt(last, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}
	if end < start {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q: end before start", header)
	}

	if size == "*" {
		return start, end, -1, nil
	}
	if total, err = strconv.ParseInt(size, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
	}

	return start, end, total, nil
}
