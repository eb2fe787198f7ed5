package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/datallboy/hlsget/internal/domain"
)

// ProgressEnabled reports whether f is an interactive terminal.
func ProgressEnabled(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// StartCLIProgress redraws a single progress line every second until ctx ends,
// then draws the final line.
func StartCLIProgress(ctx context.Context, job *domain.Job, w io.Writer) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	start := time.Now()
	var lastBytes uint64

	for {
		select {
		case <-ticker.C:
			current := job.State.BytesWritten.Load()
			delta := current - lastBytes
			lastBytes = current

			renderCLIProgress(w, job, start, delta, false)
		case <-ctx.Done():
			renderCLIProgress(w, job, start, 0, true)
			fmt.Fprintln(w)
			return
		}
	}
}

// renderCLIProgress prints: [Bar] 50% | 12/24 segs | 3.1 MiB/s | ETA: 2m30s | 40 MiB
func renderCLIProgress(w io.Writer, job *domain.Job, start time.Time, bytesPerTick uint64, final bool) {
	total := job.State.Total.Load()
	if total == 0 {
		return
	}

	done := job.State.Completed.Load() + job.State.Failed.Load()
	written := job.State.BytesWritten.Load()
	elapsed := time.Since(start)
	percent := float64(done) / float64(total) * 100

	speed := bytesPerTick
	etaStr := "calc..."
	timeLabel := "ETA"

	if final {
		timeLabel = "Time"
		etaStr = elapsed.Truncate(time.Second).String()

		// Guard against division by zero or sub-millisecond durations
		seconds := max(elapsed.Seconds(), 0.1)
		speed = uint64(float64(written) / seconds)
	} else if done > 0 {
		perSegment := elapsed / time.Duration(done)
		etaStr = (perSegment * time.Duration(total-done)).Truncate(time.Second).String()
	}

	fmt.Fprintf(w, "\r%s %5.1f%% | %d/%d segs | %9s/s | %s: %-7s | %s      ",
		progressBar(percent), percent, done, total, humanize.IBytes(speed), timeLabel, etaStr, humanize.IBytes(written))
}

// progressBar draws [====>     ]
func progressBar(percent float64) string {
	const barWidth = 20
	completedWidth := min(int(percent/100*barWidth), barWidth)
	bar := strings.Repeat("=", completedWidth)
	if completedWidth < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-completedWidth-1)
	}
	return "[" + bar + "]"
}
