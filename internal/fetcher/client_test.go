package fetcher

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/datallboy/hlsget/internal/domain"
	"github.com/datallboy/hlsget/internal/infra/logger"
)

func testClient(attempts int) *Client {
	return New(Options{
		Timeout:         5 * time.Second,
		UserAgent:       "hlsget-test",
		RetryAttempts:   attempts,
		RetryBackoff:    time.Millisecond,
		RetryMaxBackoff: 5 * time.Millisecond,
	}, logger.Discard())
}

func TestFetchSuccess(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "hlsget-test" {
			t.Errorf("unexpected User-Agent %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "segment_00000.ts")
	res := testClient(3).Fetch(context.Background(), domain.Segment{Index: 0, URI: srv.URL + "/seg0.ts"}, dest)

	if res.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected success, got %s: %v", res.Outcome, res.Err)
	}
	if res.BytesWritten != int64(len(payload)) || res.Attempts != 1 || res.Path != dest {
		t.Fatalf("unexpected result %+v", res)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("written bytes differ from payload")
	}
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	tests := []struct {
		name string
		code int
	}{
		{"server error", http.StatusBadGateway},
		{"rate limited", http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) < 3 {
					w.WriteHeader(tt.code)
					return
				}
				_, _ = w.Write([]byte("ok"))
			}))
			defer srv.Close()

			dest := filepath.Join(t.TempDir(), "seg.ts")
			res := testClient(3).Fetch(context.Background(), domain.Segment{Index: 4, URI: srv.URL}, dest)

			if res.Outcome != domain.OutcomeSuccess {
				t.Fatalf("expected success on third attempt, got %s: %v", res.Outcome, res.Err)
			}
			if res.Attempts != 3 || hits.Load() != 3 {
				t.Fatalf("expected 3 attempts, got result %d / server %d", res.Attempts, hits.Load())
			}
		})
	}
}

func TestFetchPermanentStatusFailsImmediately(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "seg.ts")
	res := testClient(3).Fetch(context.Background(), domain.Segment{Index: 2, URI: srv.URL}, dest)

	if res.Outcome != domain.OutcomeFailure {
		t.Fatalf("expected failure, got %s", res.Outcome)
	}
	if hits.Load() != 1 || res.Attempts != 1 {
		t.Fatalf("404 must not be retried, server saw %d requests", hits.Load())
	}

	var fe *domain.FetchError
	if !errors.As(res.Err, &fe) || fe.Kind != domain.KindHTTPStatus || fe.Code != http.StatusNotFound || fe.Transient {
		t.Fatalf("unexpected error %v", res.Err)
	}
	if !errors.Is(res.Err, domain.ErrFetch) {
		t.Fatalf("fetch error should match ErrFetch")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("partial file should be removed, stat err = %v", err)
	}
}

func TestFetchExhaustsAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res := testClient(3).Fetch(context.Background(), domain.Segment{URI: srv.URL}, filepath.Join(t.TempDir(), "seg.ts"))

	if res.Outcome != domain.OutcomeFailure || res.Attempts != 3 || hits.Load() != 3 {
		t.Fatalf("expected 3 failed attempts, got %+v (server %d)", res, hits.Load())
	}
	var fe *domain.FetchError
	if !errors.As(res.Err, &fe) || !fe.Transient || fe.Attempts != 3 {
		t.Fatalf("unexpected error %v", res.Err)
	}
	if !strings.Contains(res.Err.Error(), "HTTPStatusError{503} after 3 attempt(s)") {
		t.Fatalf("unexpected message %q", res.Err.Error())
	}
}

func TestFetchByteRange(t *testing.T) {
	content := []byte("abcdefghijklmnopqrstuvwxyz")

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "partial content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.ServeContent(w, r, "main.ts", time.Time{}, bytes.NewReader(content))
			},
		},
		{
			name: "range ignored",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(content)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			dest := filepath.Join(t.TempDir(), "seg.ts")
			seg := domain.Segment{URI: srv.URL, Range: &domain.ByteRange{Offset: 5, Length: 10}}
			res := testClient(1).Fetch(context.Background(), seg, dest)
			if res.Outcome != domain.OutcomeSuccess {
				t.Fatalf("expected success, got %v", res.Err)
			}

			got, _ := os.ReadFile(dest)
			if string(got) != "fghijklmno" {
				t.Fatalf("got %q", got)
			}
		})
	}
}

func TestFetchMalformedContentRange(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Range", "bytes 0-3/26")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("abcd"))
	}))
	defer srv.Close()

	seg := domain.Segment{URI: srv.URL, Range: &domain.ByteRange{Offset: 5, Length: 10}}
	res := testClient(3).Fetch(context.Background(), seg, filepath.Join(t.TempDir(), "seg.ts"))

	var fe *domain.FetchError
	if !errors.As(res.Err, &fe) || fe.Kind != domain.KindMalformed {
		t.Fatalf("expected malformed response, got %v", res.Err)
	}
	if hits.Load() != 1 {
		t.Fatalf("malformed response must not be retried, server saw %d requests", hits.Load())
	}
}

func TestFetchIncompleteBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("short"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "seg.ts")
	res := testClient(2).Fetch(context.Background(), domain.Segment{URI: srv.URL}, dest)

	var fe *domain.FetchError
	if !errors.As(res.Err, &fe) || fe.Kind != domain.KindIncompleteBody {
		t.Fatalf("expected incomplete body, got %v", res.Err)
	}
	if res.Attempts != 2 {
		t.Fatalf("incomplete body is transient, expected 2 attempts, got %d", res.Attempts)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("partial file should be removed")
	}
}

func TestFetchCancelled(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	dest := filepath.Join(t.TempDir(), "seg.ts")
	res := testClient(3).Fetch(ctx, domain.Segment{Index: 7, URI: srv.URL}, dest)

	if res.Outcome != domain.OutcomeCancelled {
		t.Fatalf("expected cancelled outcome, got %s: %v", res.Outcome, res.Err)
	}
	if res.Index != 7 || !errors.Is(res.Err, domain.ErrCancelled) {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("partial file should be removed")
	}
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		in                string
		start, end, total int64
		wantErr           bool
	}{
		{in: "bytes 0-99/1000", start: 0, end: 99, total: 1000},
		{in: "bytes 100-199/*", start: 100, end: 199, total: -1},
		{in: "0-99/1000", wantErr: true},
		{in: "bytes 10-5/100", wantErr: true},
		{in: "bytes x-5/100", wantErr: true},
		{in: "bytes 0-5", wantErr: true},
	}

	for _, tt := range tests {
		start, end, total, err := ParseContentRange(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseContentRange(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && (start != tt.start || end != tt.end || total != tt.total) {
			t.Errorf("ParseContentRange(%q) = %d, %d, %d", tt.in, start, end, total)
		}
	}
}
