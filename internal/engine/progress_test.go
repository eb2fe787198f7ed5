package engine

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/datallboy/hlsget/internal/domain"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		percent float64
		want    string
	}{
		{0, "[>                   ]"},
		{50, "[==========>         ]"},
		{100, "[====================]"},
	}
	for _, tt := range tests {
		if got := progressBar(tt.percent); got != tt.want {
			t.Errorf("progressBar(%v) = %q, want %q", tt.percent, got, tt.want)
		}
	}
}

func TestRenderCLIProgress(t *testing.T) {
	job := domain.NewJob("id", "u", "n")
	job.State.Reset(4)
	job.State.Completed.Add(3)
	job.State.BytesWritten.Store(3 * 1024 * 1024)

	var buf bytes.Buffer
	renderCLIProgress(&buf, job, time.Now().Add(-3*time.Second), 1024*1024, false)

	line := buf.String()
	for _, want := range []string{"75.0%", "3/4 segs", "1.0 MiB/s", "3.0 MiB"} {
		if !strings.Contains(line, want) {
			t.Errorf("progress line %q is missing %q", line, want)
		}
	}

	buf.Reset()
	renderCLIProgress(&buf, domain.NewJob("id", "u", "n"), time.Now(), 0, false)
	if buf.Len() != 0 {
		t.Fatalf("nothing should be drawn before the total is known")
	}
}
