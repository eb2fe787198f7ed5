package engine

import "github.com/datallboy/hlsget/internal/domain"

// DownloadJob is one unit of work handed to a worker.
type DownloadJob struct {
	Segment domain.Segment
	Path    string
}

// Summary is what the sequencer hands back once the result stream is drained.
type Summary struct {
	Emitted int
	Bytes   uint64
	Failed  []domain.SegmentFailure
}

// Sink receives successful results strictly in index order.
type Sink interface {
	Accept(res domain.SegmentResult) error
}
