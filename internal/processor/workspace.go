package processor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/datallboy/hlsget/internal/domain"
	"github.com/datallboy/hlsget/internal/infra/logger"
)

const concatListName = "concat_list.txt"

// FileProcessor hands out per-run workspaces and places finished outputs.
type FileProcessor struct {
	logger     *logger.Logger
	outDir     string
	scratchDir string
}

func NewFileProcessor(l *logger.Logger, outDir, scratchDir string) *FileProcessor {
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	return &FileProcessor{logger: l.Component("workspace"), outDir: outDir, scratchDir: scratchDir}
}

// Prepare locks the output name and creates the scratch directory for one run.
// The caller must Close the returned workspace on every path.
func (p *FileProcessor) Prepare(jobID, name, ext string) (*Workspace, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return nil, fmt.Errorf("%w: output extension is required", domain.ErrIO)
	}

	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create output dir: %w", domain.ErrIO, err)
	}

	lockPath := filepath.Join(p.outDir, "."+name+".lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: acquire output lock: %w", domain.ErrIO, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: output %q is already being written by another run", domain.ErrIO, name)
	}

	if err := os.MkdirAll(p.scratchDir, 0o755); err != nil {
		p.release(lock, lockPath)
		return nil, fmt.Errorf("%w: create scratch root: %w", domain.ErrIO, err)
	}

	dir, err := os.MkdirTemp(p.scratchDir, "hlsget-"+scratchTag(jobID)+"-")
	if err != nil {
		p.release(lock, lockPath)
		return nil, fmt.Errorf("%w: create scratch dir: %w", domain.ErrIO, err)
	}

	p.logger.Debug("Scratch dir for %s: %s", name, dir)

	return &Workspace{
		Dir:       dir,
		name:      name,
		ext:       ext,
		outDir:    p.outDir,
		lock:      lock,
		lockPath:  lockPath,
		logger:    p.logger,
		processor: p,
	}, nil
}

func (p *FileProcessor) release(lock *flock.Flock, lockPath string) {
	if err := lock.Unlock(); err != nil {
		p.logger.Warn("Failed to release lock %s: %v", lockPath, err)
	}
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("Failed to remove lock %s: %v", lockPath, err)
	}
}

func scratchTag(jobID string) string {
	if validName.MatchString(jobID) {
		return jobID
	}
	return "run"
}

// Workspace is the scratch area of a single pipeline run.
type Workspace struct {
	Dir string

	name     string
	ext      string
	outDir   string
	lock     *flock.Flock
	lockPath string
	logger   *logger.Logger

	processor *FileProcessor
	closeOnce sync.Once
	closeErr  error
}

// SegmentPath is where the fetched bytes of seg are stored.
func (w *Workspace) SegmentPath(seg domain.Segment, total int) string {
	return filepath.Join(w.Dir, segmentFileName(seg, total))
}

// ListPath is the concatenation list consumed by the muxer.
func (w *Workspace) ListPath() string {
	return filepath.Join(w.Dir, concatListName)
}

// TempOutputPath is where the muxer writes before the result is moved out.
func (w *Workspace) TempOutputPath() string {
	return filepath.Join(w.Dir, "output."+w.ext)
}

// OutputPath is the final destination of the artifact.
func (w *Workspace) OutputPath() string {
	return filepath.Join(w.outDir, w.name+"."+w.ext)
}

// Finalize moves the muxed artifact to its final location. An existing file
// with the same name is replaced.
func (w *Workspace) Finalize(tmpOutput string) (string, error) {
	dest := w.OutputPath()
	if err := moveFile(tmpOutput, dest); err != nil {
		return "", fmt.Errorf("%w: move output to %s: %w", domain.ErrIO, dest, err)
	}
	return dest, nil
}

// Close removes the scratch directory and releases the output lock.
// Safe to call more than once.
func (w *Workspace) Close() error {
	w.closeOnce.Do(func() {
		if err := os.RemoveAll(w.Dir); err != nil {
			w.closeErr = fmt.Errorf("%w: remove scratch dir: %w", domain.ErrIO, err)
			w.logger.Error("Failed to remove scratch dir %s: %v", w.Dir, err)
		}
		w.processor.release(w.lock, w.lockPath)
	})
	return w.closeErr
}
