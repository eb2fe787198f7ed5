package mux

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/datallboy/hlsget/internal/domain"
	"github.com/datallboy/hlsget/internal/infra/logger"
)

const defaultConcatExtension = "ts"

// Concat joins segment files byte for byte. MPEG-TS segments and fMP4
// fragments behind their init section play back correctly this way.
type Concat struct {
	ext string
	log *logger.Logger
}

func NewConcat(ext string, log *logger.Logger) *Concat {
	if ext == "" {
		ext = defaultConcatExtension
	}
	return &Concat{ext: ext, log: log.Component("mux")}
}

func (c *Concat) Name() string      { return "concat" }
func (c *Concat) Extension() string { return c.ext }

func (c *Concat) Mux(ctx context.Context, req domain.MuxRequest) (err error) {
	if len(req.Segments) == 0 {
		return fmt.Errorf("%w: %w", domain.ErrAssembly, errNoSegments)
	}

	out, err := os.Create(req.OutputPath)
	if err != nil {
		return fmt.Errorf("%w: create output: %w", domain.ErrAssembly, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close output: %w", domain.ErrAssembly, cerr)
		}
		if err != nil {
			_ = os.Remove(req.OutputPath)
		}
	}()

	var written int64
	for _, path := range req.Segments {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", domain.ErrCancelled, context.Cause(ctx))
		}

		n, err := appendAndCleanup(path, out)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrAssembly, err)
		}
		written += n
	}

	c.log.Debug("Concatenated %d segment(s), %d bytes into %s", len(req.Segments), written, req.OutputPath)
	return nil
}

// appendAndCleanup streams one segment into dst and removes it to free
// scratch space as the output grows.
func appendAndCleanup(srcPath string, dst io.Writer) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		// If a segment is missing, the whole file is corrupt.
		return 0, fmt.Errorf("missing segment file %s: %w", srcPath, err)
	}

	n, err := io.Copy(dst, src)
	src.Close() // Close before removing

	if err != nil {
		return n, fmt.Errorf("append %s: %w", srcPath, err)
	}

	return n, os.Remove(srcPath)
}
