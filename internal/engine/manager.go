package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/segmentio/ksuid"

	"github.com/datallboy/hlsget/internal/app"
	"github.com/datallboy/hlsget/internal/domain"
	"github.com/datallboy/hlsget/internal/infra/logger"
	"github.com/datallboy/hlsget/internal/manifest"
	"github.com/datallboy/hlsget/internal/processor"
)

// JobRunner executes a single job. *Downloader is the production implementation.
type JobRunner interface {
	Download(ctx context.Context, job *domain.Job) (*domain.Report, error)
}

// QueueManager runs queued jobs one at a time.
type QueueManager struct {
	mu         sync.RWMutex
	downloader JobRunner
	queue      []*domain.Job
	activeItem *domain.Job
	store      app.Store
	logger     *logger.Logger

	newJobChan chan struct{}
}

// NewQueueManager builds a queue. store may be nil when history is disabled.
func NewQueueManager(d JobRunner, store app.Store, l *logger.Logger) *QueueManager {
	return &QueueManager{
		downloader: d,
		store:      store,
		logger:     l.Component("queue"),
		newJobChan: make(chan struct{}, 1),
	}
}

// Add validates the request, creates a job and notifies the run loop.
func (m *QueueManager) Add(manifestURL, outputName string) (*domain.Job, error) {
	if err := processor.ValidateName(outputName); err != nil {
		return nil, err
	}
	if _, err := manifest.ValidateURL(manifestURL); err != nil {
		return nil, err
	}

	job := domain.NewJob(ksuid.New().String(), manifestURL, outputName)

	if err := m.save(context.Background(), job); err != nil {
		return nil, fmt.Errorf("failed to save job to database: %w", err)
	}

	m.mu.Lock()
	m.queue = append(m.queue, job)
	m.mu.Unlock()

	m.logger.Info("Queued %s for %s", job.ID, outputName)

	// Signal the Start() loop that there is work to do
	select {
	case m.newJobChan <- struct{}{}:
	default:
		// Signal already pending, no need to block
	}

	return job, nil
}

// RecoverInterrupted marks jobs left running by a previous process as
// failed; they are not resumed. Call it before accepting new jobs.
func (m *QueueManager) RecoverInterrupted(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	n, err := m.store.MarkInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("mark interrupted jobs: %w", err)
	}
	if n > 0 {
		m.logger.Warn("Marked %d interrupted job(s) as failed", n)
	}
	return nil
}

// Start processes jobs until ctx is cancelled.
func (m *QueueManager) Start(ctx context.Context) {
	for {
		next := m.nextPending()

		if next == nil {
			select {
			case <-m.newJobChan:
				continue
			case <-ctx.Done():
				return
			}
		}

		if ctx.Err() != nil {
			return
		}

		jobCtx, cancel := context.WithCancel(ctx)

		// Cancelled between pick and start
		if !next.Begin(cancel) {
			cancel()
			_ = m.save(ctx, next)
			continue
		}

		m.mu.Lock()
		m.activeItem = next
		m.mu.Unlock()

		_ = m.save(ctx, next)

		report, jobErr := m.downloader.Download(jobCtx, next)

		m.finalizeJob(next, report, jobErr)
		cancel()
	}
}

func (m *QueueManager) nextPending() *domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.queue {
		if job.Status() == domain.StatusPending {
			return job
		}
	}

	if m.store != nil {
		// Drop jobs cancelled while still pending
		m.queue = m.pruneFinished()
	}
	return nil
}

func (m *QueueManager) pruneFinished() []*domain.Job {
	kept := m.queue[:0]
	for _, job := range m.queue {
		if !job.Status().Finished() {
			kept = append(kept, job)
			continue
		}
		_ = m.save(context.Background(), job)
	}
	return kept
}

// GetActiveItem allows the UI to see what's currently running
func (m *QueueManager) GetActiveItem() *domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeItem
}

// GetItem searches the live queue, then the history store.
func (m *QueueManager) GetItem(id string) (*domain.Job, bool) {
	m.mu.RLock()
	for _, job := range m.queue {
		if job.ID == id {
			m.mu.RUnlock()
			return job, true
		}
	}
	m.mu.RUnlock()

	if m.store == nil {
		return nil, false
	}

	job, err := m.store.GetJob(context.Background(), id)
	if err == nil && job != nil {
		return job, true
	}

	return nil, false
}

// GetAllItems returns a copy of the live queue.
func (m *QueueManager) GetAllItems() []*domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]*domain.Job, len(m.queue))
	copy(items, m.queue)
	return items
}

// Cancel stops a queued or running job. It returns false for unknown or
// already finished jobs.
func (m *QueueManager) Cancel(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, job := range m.queue {
		if job.ID == id {
			if !job.Cancel() {
				return false
			}
			m.logger.Info("Cancel requested for %s", id)
			return true
		}
	}
	return false
}

func (m *QueueManager) finalizeJob(job *domain.Job, report *domain.Report, err error) {
	status := StatusFor(err)
	if status == domain.StatusCancelled {
		m.logger.Info("Job %s cancelled", job.ID)
	}

	job.Finish(status, report, err)

	// Persist the final outcome
	if serr := m.save(context.Background(), job); serr != nil {
		m.logger.Error("Failed to persist job %s: %v", job.ID, serr)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.activeItem = nil

	// Without a store the queue doubles as the job history
	if m.store != nil {
		m.removeFromLiveQueue(job.ID)
	}
}

func (m *QueueManager) save(ctx context.Context, job *domain.Job) error {
	if m.store == nil {
		return nil
	}
	return m.store.SaveJob(ctx, job)
}

// removeFromLiveQueue keeps the active slice small by removing finished items
func (m *QueueManager) removeFromLiveQueue(id string) {
	for i, job := range m.queue {
		if job.ID == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
}
