package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/datallboy/hlsget/internal/app"
	"github.com/datallboy/hlsget/internal/domain"
	"github.com/datallboy/hlsget/internal/infra/logger"
	"github.com/datallboy/hlsget/internal/processor"
)

// Downloader runs the fetch, order, mux and finalize pipeline for one job.
type Downloader struct {
	ctx       *app.Context
	processor *processor.FileProcessor
	logger    *logger.Logger
}

func NewDownloader(ctx *app.Context) *Downloader {
	cfg := ctx.Config.Download
	return &Downloader{
		ctx:       ctx,
		processor: processor.NewFileProcessor(ctx.Logger, cfg.OutDir, cfg.ScratchDir),
		logger:    ctx.Logger.Component("engine"),
	}
}

// Download processes a job from start to finish. The returned report is never
// nil. Scratch space is released on every path; on success or partial
// success the only thing left behind is the output file.
func (s *Downloader) Download(ctx context.Context, job *domain.Job) (report *domain.Report, err error) {
	start := time.Now()
	report = &domain.Report{JobID: job.ID}
	defer func() {
		report.Elapsed = time.Since(start)
		report.Status = StatusFor(err)
	}()

	if err := processor.ValidateName(job.OutputName); err != nil {
		return report, err
	}

	pl, err := s.ctx.Manifests.Load(ctx, job.ManifestURL)
	if err != nil {
		return report, err
	}
	if pl.MediaCount() == 0 {
		return report, domain.ErrEmptyPlaylist
	}

	segments := pl.Segments
	report.Segments = len(segments)
	job.State.Reset(len(segments))

	ws, err := s.processor.Prepare(job.ID, job.OutputName, s.ctx.Muxer.Extension())
	if err != nil {
		return report, err
	}
	defer ws.Close()

	asm, err := NewAssembler(ws.ListPath())
	if err != nil {
		return report, err
	}
	defer asm.Close()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	job.SetStatus(domain.StatusDownloading)
	s.logger.Info("Starting download for: %s (%d segments, %d workers)", job.OutputName, len(segments), s.ctx.Config.Download.Concurrency)

	scheduler := NewScheduler(s.ctx.Fetcher, s.ctx.Config.Download.Concurrency, s.logger)
	run := scheduler.Run(runCtx, segments, func(seg domain.Segment) string {
		return ws.SegmentPath(seg, len(segments))
	})

	sequencer := NewSequencer(s.ctx.Config.Download.FailurePolicy, &job.State, cancel, s.logger)
	summary, err := sequencer.Consume(runCtx, run, asm)

	report.Emitted = summary.Emitted
	report.Bytes = summary.Bytes
	report.Failed = summary.Failed

	if err != nil {
		s.logger.Error("Download of %s aborted: %v", job.OutputName, err)
		return report, err
	}

	if summary.Emitted == 0 {
		err = &domain.AbortedError{
			Cause:  fmt.Errorf("%w: no segment could be fetched", domain.ErrFetch),
			Failed: summary.Failed,
		}
		s.logger.Error("Download of %s aborted: %v", job.OutputName, err)
		return report, err
	}

	job.SetStatus(domain.StatusMuxing)
	s.logger.Info("Muxing %d segment(s) with %s", summary.Emitted, s.ctx.Muxer.Name())

	tmpOutput := ws.TempOutputPath()
	if err := asm.Finish(runCtx, s.ctx.Muxer, tmpOutput); err != nil {
		s.logger.Error("Muxing %s failed: %v", job.OutputName, err)
		return report, err
	}

	out, err := ws.Finalize(tmpOutput)
	if err != nil {
		return report, err
	}
	report.OutputPath = out

	if len(summary.Failed) > 0 {
		err = &domain.PartialFailureError{OutputPath: out, Failed: summary.Failed}
		s.logger.Warn("Saved %s with %d missing segment(s): %s", out, len(summary.Failed), domain.FailedIndices(summary.Failed))
		return report, err
	}

	s.logger.Info("Saved %s (%d segments, %s in %s)", out, summary.Emitted,
		humanize.IBytes(summary.Bytes), time.Since(start).Truncate(time.Millisecond))

	return report, nil
}

// StatusFor maps a Download error to the job's terminal status.
func StatusFor(err error) domain.JobStatus {
	var partial *domain.PartialFailureError
	switch {
	case err == nil:
		return domain.StatusCompleted
	case errors.As(err, &partial):
		return domain.StatusPartial
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, context.Canceled):
		return domain.StatusCancelled
	default:
		return domain.StatusFailed
	}
}
