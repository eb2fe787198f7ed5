package mux

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/datallboy/hlsget/internal/domain"
	"github.com/datallboy/hlsget/internal/infra/logger"
)

const defaultFFmpegExtension = "mp4"

// FFmpeg remuxes the concatenation list with the concat demuxer and stream copy.
type FFmpeg struct {
	binary string
	ext    string
	run    commandRunner
	log    *logger.Logger
}

func NewFFmpeg(binary, ext string, log *logger.Logger) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	if ext == "" {
		ext = defaultFFmpegExtension
	}
	return &FFmpeg{
		binary: binary,
		ext:    ext,
		run:    defaultCommandRunner,
		log:    log.Component("mux"),
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (f *FFmpeg) WithCommandRunner(r commandRunner) {
	if f != nil && r != nil {
		f.run = r
	}
}

func (f *FFmpeg) Name() string      { return "ffmpeg" }
func (f *FFmpeg) Extension() string { return f.ext }

func (f *FFmpeg) Mux(ctx context.Context, req domain.MuxRequest) error {
	if strings.TrimSpace(req.ListPath) == "" {
		return fmt.Errorf("%w: concat list path is required", domain.ErrAssembly)
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return fmt.Errorf("%w: output path is required", domain.ErrAssembly)
	}
	if len(req.Segments) == 0 {
		return fmt.Errorf("%w: %w", domain.ErrAssembly, errNoSegments)
	}
	if _, err := os.Stat(req.ListPath); err != nil {
		return fmt.Errorf("%w: concat list not found: %w", domain.ErrAssembly, err)
	}

	args := buildFFmpegArgs(req.ListPath, req.OutputPath)
	f.log.Debug("Running %s %s", f.binary, strings.Join(args, " "))

	if err := f.run(ctx, f.binary, args...); err != nil {
		_ = os.Remove(req.OutputPath)
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", domain.ErrCancelled, context.Cause(ctx))
		}
		return fmt.Errorf("%w: ffmpeg failed: %w", domain.ErrAssembly, err)
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return fmt.Errorf("%w: ffmpeg did not produce output file: %w", domain.ErrAssembly, err)
	}
	if info.Size() == 0 {
		_ = os.Remove(req.OutputPath)
		return fmt.Errorf("%w: ffmpeg produced an empty file", domain.ErrAssembly)
	}

	return nil
}

// buildFFmpegArgs keeps codecs untouched; segment paths in the list are
// resolved by ffmpeg relative to the list file.
func buildFFmpegArgs(listPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	}
}
