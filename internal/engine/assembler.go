package engine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/datallboy/hlsget/internal/app"
	"github.com/datallboy/hlsget/internal/domain"
)

// Assembler records emitted segments in order: as concat demuxer lines in the
// list file and as paths for muxers that read the segments directly.
type Assembler struct {
	listPath string
	file     *os.File
	w        *bufio.Writer
	paths    []string
	closed   bool
}

func NewAssembler(listPath string) (*Assembler, error) {
	f, err := os.Create(listPath)
	if err != nil {
		return nil, fmt.Errorf("%w: create concat list: %w", domain.ErrIO, err)
	}
	return &Assembler{listPath: listPath, file: f, w: bufio.NewWriter(f)}, nil
}

// Accept appends one segment. Callers guarantee ascending index order.
func (a *Assembler) Accept(res domain.SegmentResult) error {
	if a.closed {
		return fmt.Errorf("%w: concat list already closed", domain.ErrIO)
	}
	if _, err := fmt.Fprintf(a.w, "file '%s'\n", quoteConcatPath(filepath.Base(res.Path))); err != nil {
		return err
	}
	a.paths = append(a.paths, res.Path)
	return nil
}

// Paths returns the emitted segment files in order.
func (a *Assembler) Paths() []string {
	return a.paths
}

// Finish closes the list and runs the muxer into outputPath.
func (a *Assembler) Finish(ctx context.Context, m app.Muxer, outputPath string) error {
	if err := a.Close(); err != nil {
		return err
	}
	if len(a.paths) == 0 {
		return fmt.Errorf("%w: nothing to mux", domain.ErrAssembly)
	}

	return m.Mux(ctx, domain.MuxRequest{
		ListPath:   a.listPath,
		Segments:   a.paths,
		OutputPath: outputPath,
	})
}

// Close flushes and releases the list handle. Safe to call more than once.
func (a *Assembler) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	flushErr := a.w.Flush()
	closeErr := a.file.Close()
	if flushErr != nil {
		return fmt.Errorf("%w: flush concat list: %w", domain.ErrIO, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: close concat list: %w", domain.ErrIO, closeErr)
	}
	return nil
}

// quoteConcatPath escapes single quotes the way the concat demuxer expects.
func quoteConcatPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}
