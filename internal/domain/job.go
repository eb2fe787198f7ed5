package domain

import (
	"context"
	"sync"
	"time"
)

type JobStatus string

const (
	StatusPending     JobStatus = "pending"
	StatusDownloading JobStatus = "downloading"
	StatusMuxing      JobStatus = "muxing"
	StatusCompleted   JobStatus = "completed"
	StatusPartial     JobStatus = "partial" // output produced with missing segments
	StatusFailed      JobStatus = "failed"
	StatusCancelled   JobStatus = "cancelled"
)

// Finished reports whether the status is terminal.
func (s JobStatus) Finished() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job represents one manifest download from queueing to its terminal state.
// It holds a lock and atomic counters, so it is always passed by pointer;
// use View for a consistent copy.
type Job struct {
	ID          string
	ManifestURL string
	OutputName  string
	CreatedAt   time.Time

	State PipelineState

	mu         sync.RWMutex
	status     JobStatus
	outputPath string
	failed     []SegmentFailure
	errMsg     string
	startedAt  time.Time
	endedAt    time.Time
	cancel     context.CancelFunc
}

// NewJob builds a pending job.
func NewJob(id, manifestURL, outputName string) *Job {
	return &Job{
		ID:          id,
		ManifestURL: manifestURL,
		OutputName:  outputName,
		CreatedAt:   time.Now().UTC(),
		status:      StatusPending,
	}
}

// JobView is a point-in-time copy of a Job, used for persistence and the API.
type JobView struct {
	ID                string           `json:"id"`
	ManifestURL       string           `json:"manifest_url"`
	OutputName        string           `json:"output_name"`
	OutputPath        string           `json:"output_path,omitempty"`
	Status            JobStatus        `json:"status"`
	TotalSegments     int64            `json:"total_segments"`
	CompletedSegments int64            `json:"completed_segments"`
	FailedSegments    int64            `json:"failed_segments"`
	Bytes             uint64           `json:"bytes"`
	Failed            []SegmentFailure `json:"failed,omitempty"`
	Error             string           `json:"error,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	StartedAt         time.Time        `json:"started_at,omitzero"`
	EndedAt           time.Time        `json:"ended_at,omitzero"`
}

func (j *Job) View() JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return JobView{
		ID:                j.ID,
		ManifestURL:       j.ManifestURL,
		OutputName:        j.OutputName,
		OutputPath:        j.outputPath,
		Status:            j.status,
		TotalSegments:     j.State.Total.Load(),
		CompletedSegments: j.State.Completed.Load(),
		FailedSegments:    j.State.Failed.Load(),
		Bytes:             j.State.BytesWritten.Load(),
		Failed:            append([]SegmentFailure(nil), j.failed...),
		Error:             j.errMsg,
		CreatedAt:         j.CreatedAt,
		StartedAt:         j.startedAt,
		EndedAt:           j.endedAt,
	}
}

// JobFromView rebuilds a finished job loaded from history.
func JobFromView(v JobView) *Job {
	j := &Job{
		ID:          v.ID,
		ManifestURL: v.ManifestURL,
		OutputName:  v.OutputName,
		CreatedAt:   v.CreatedAt,
		status:      v.Status,
		outputPath:  v.OutputPath,
		failed:      v.Failed,
		errMsg:      v.Error,
		startedAt:   v.StartedAt,
		endedAt:     v.EndedAt,
	}
	j.State.Total.Store(v.TotalSegments)
	j.State.Completed.Store(v.CompletedSegments)
	j.State.Failed.Store(v.FailedSegments)
	j.State.BytesWritten.Store(v.Bytes)
	return j
}

func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// SetStatus moves the job to status, stamping the start time on the first
// transition to downloading.
func (j *Job) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
	if status == StatusDownloading && j.startedAt.IsZero() {
		j.startedAt = time.Now().UTC()
	}
}

// Begin moves a pending job to downloading and stores the function that
// stops its pipeline. It reports false, leaving the job untouched, when the
// job is no longer pending.
func (j *Job) Begin(cancel context.CancelFunc) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != StatusPending {
		return false
	}
	j.cancel = cancel
	j.status = StatusDownloading
	if j.startedAt.IsZero() {
		j.startedAt = time.Now().UTC()
	}
	return true
}

// Cancel stops a running job. It reports false when the job already finished.
// A pending job is marked cancelled directly.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status.Finished() {
		return false
	}
	j.State.Cancel()
	if j.cancel != nil {
		j.cancel()
		return true
	}
	if j.status == StatusPending {
		j.status = StatusCancelled
		j.endedAt = time.Now().UTC()
	}
	return true
}

// Finish records the terminal outcome of a run.
func (j *Job) Finish(status JobStatus, report *Report, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.status = status
	j.endedAt = time.Now().UTC()
	j.cancel = nil
	if report != nil {
		j.outputPath = report.OutputPath
		j.failed = report.Failed
	}
	if err != nil {
		j.errMsg = err.Error()
	}
}

// Report is the terminal outcome of one pipeline execution.
type Report struct {
	JobID      string
	OutputPath string
	Segments   int
	Emitted    int
	Bytes      uint64
	Failed     []SegmentFailure
	Status     JobStatus
	Elapsed    time.Duration
}
