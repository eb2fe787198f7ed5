package domain

import "sync/atomic"

// PipelineState holds the counters of one pipeline execution.
type PipelineState struct {
	Total        atomic.Int64
	Completed    atomic.Int64
	Failed       atomic.Int64
	BytesWritten atomic.Uint64

	cancelled atomic.Bool
}

// Cancel flags the run as stopped, by the user or by an abort. The pipeline
// itself stops through its context; the flag is what status readers see.
// It reports whether this call was the one that flipped the flag.
func (s *PipelineState) Cancel() bool {
	return s.cancelled.CompareAndSwap(false, true)
}

func (s *PipelineState) Cancelled() bool {
	return s.cancelled.Load()
}

// Reset prepares the counters for a new run over total segments.
func (s *PipelineState) Reset(total int) {
	s.Total.Store(int64(total))
	s.Completed.Store(0)
	s.Failed.Store(0)
	s.BytesWritten.Store(0)
	s.cancelled.Store(false)
}
