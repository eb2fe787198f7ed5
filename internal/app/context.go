package app

import (
	"context"

	"github.com/datallboy/hlsget/internal/domain"
	"github.com/datallboy/hlsget/internal/infra/config"
	"github.com/datallboy/hlsget/internal/infra/logger"
)

type ManifestLoader interface {
	// Load fetches and parses a media playlist into ordered segment descriptors
	Load(ctx context.Context, uri string) (*domain.Playlist, error)
}

type Fetcher interface {
	// Fetch writes one segment to dest and always returns a result, never panics
	Fetch(ctx context.Context, seg domain.Segment, dest string) domain.SegmentResult
}

type Muxer interface {
	Name() string
	Extension() string
	Mux(ctx context.Context, req domain.MuxRequest) error
}

type Store interface {
	SaveJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobs(ctx context.Context, limit int) ([]*domain.Job, error)
	MarkInterrupted(ctx context.Context) (int64, error)
	Close() error
}

type Queue interface {
	Add(manifestURL, outputName string) (*domain.Job, error)
	GetItem(id string) (*domain.Job, bool)
	GetAllItems() []*domain.Job
	Cancel(id string) bool
}

// Context holds the core environment and shared resources for hlsget.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Manifests ManifestLoader
	Fetcher   Fetcher
	Muxer     Muxer

	// Store is nil when job history is disabled
	Store Store
	Queue Queue
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}
