package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/datallboy/hlsget/internal/app"
	"github.com/datallboy/hlsget/internal/domain"
	"github.com/datallboy/hlsget/internal/infra/logger"
)

// Scheduler runs segment fetches on a fixed number of workers.
type Scheduler struct {
	fetcher     app.Fetcher
	concurrency int
	logger      *logger.Logger
}

func NewScheduler(f app.Fetcher, concurrency int, l *logger.Logger) *Scheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scheduler{fetcher: f, concurrency: concurrency, logger: l}
}

// Run is one scheduling pass over a segment list.
type Run struct {
	segments []domain.Segment
	results  chan domain.SegmentResult

	// window bounds dispatched-but-unemitted segments. The dispatcher fills
	// a slot per segment, the sequencer frees it on emission.
	window chan struct{}
}

// Results yields exactly one result per segment and is closed after the last one.
func (r *Run) Results() <-chan domain.SegmentResult { return r.results }

func (r *Run) Total() int { return len(r.segments) }

func (r *Run) Segment(index int) domain.Segment { return r.segments[index] }

// Release frees one window slot without blocking.
func (r *Run) Release() {
	select {
	case <-r.window:
	default:
	}
}

// Run starts the dispatcher and workers. pathFor maps a segment to the file
// its bytes are written to.
func (s *Scheduler) Run(ctx context.Context, segments []domain.Segment, pathFor func(domain.Segment) string) *Run {
	run := &Run{
		segments: segments,
		results:  make(chan domain.SegmentResult, s.concurrency),
		window:   make(chan struct{}, 2*s.concurrency),
	}

	jobs := make(chan DownloadJob)

	var wg sync.WaitGroup
	for w := 1; w <= s.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, jobs, run.results)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.dispatchJobs(ctx, run, pathFor, jobs)
	}()

	go func() {
		wg.Wait()
		close(run.results)
	}()

	return run
}

// worker pulls jobs from the channel and executes them until channel is closed
func (s *Scheduler) worker(ctx context.Context, jobs <-chan DownloadJob, results chan<- domain.SegmentResult) {
	for job := range jobs {
		if ctx.Err() != nil {
			results <- cancelledResult(ctx, job.Segment.Index)
			continue
		}

		s.logger.Debug("Segment %d started: %s", job.Segment.Index, job.Segment.URI)
		results <- s.fetcher.Fetch(ctx, job.Segment, job.Path)
	}
}

// dispatchJobs hands out segments in ascending index order. Anything not
// dispatched when ctx ends is reported as cancelled.
func (s *Scheduler) dispatchJobs(ctx context.Context, run *Run, pathFor func(domain.Segment) string, jobs chan<- DownloadJob) {
	defer close(jobs)

	for i, seg := range run.segments {
		select {
		case <-ctx.Done():
			s.cancelRemaining(ctx, run, i)
			return
		case run.window <- struct{}{}:
		}

		select {
		case <-ctx.Done():
			s.cancelRemaining(ctx, run, i)
			return
		case jobs <- DownloadJob{Segment: seg, Path: pathFor(seg)}:
		}
	}
}

func (s *Scheduler) cancelRemaining(ctx context.Context, run *Run, from int) {
	for _, seg := range run.segments[from:] {
		run.results <- cancelledResult(ctx, seg.Index)
	}
}

func cancelledResult(ctx context.Context, index int) domain.SegmentResult {
	return domain.SegmentResult{
		Index:   index,
		Outcome: domain.OutcomeCancelled,
		Err:     fmt.Errorf("%w: %w", domain.ErrCancelled, context.Cause(ctx)),
	}
}
