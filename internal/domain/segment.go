package domain

import "fmt"

// ByteRange is an EXT-X-BYTERANGE sub-range of a resource.
type ByteRange struct {
	Offset int64
	Length int64
}

// Header renders the range as an HTTP Range header value (inclusive end).
func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Offset, r.Offset+r.Length-1)
}

// Segment describes one piece of the stream. Index is the only ordering key.
type Segment struct {
	Index    int
	URI      string
	Range    *ByteRange
	Duration float64

	// Init marks the EXT-X-MAP initialization section, always placed first.
	Init bool
}

// Outcome is the terminal state of a single segment fetch.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// SegmentResult is produced exactly once per Segment by the fetch layer.
type SegmentResult struct {
	Index        int
	Outcome      Outcome
	Path         string // file holding the segment bytes (Success only)
	BytesWritten int64
	Attempts     int
	Err          error
}

// SegmentFailure records why an index did not make it into the output.
type SegmentFailure struct {
	Index    int    `json:"index"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason"`
}

// Playlist is the parsed form of a media playlist.
type Playlist struct {
	URL      string
	Segments []Segment // ordered, Index 0..N-1

	// Live is set when the playlist had no EXT-X-ENDLIST; only the fetched
	// snapshot is downloaded.
	Live bool
}

// MediaCount returns the number of media segments, ignoring the init section.
func (p *Playlist) MediaCount() int {
	n := 0
	for _, s := range p.Segments {
		if !s.Init {
			n++
		}
	}
	return n
}

// MuxRequest is handed to the muxer once every segment is on disk.
type MuxRequest struct {
	ListPath   string   // concat list enumerating Segments in order
	Segments   []string // segment files in ascending index order
	OutputPath string
}
