package mux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/datallboy/hlsget/internal/app"
	"github.com/datallboy/hlsget/internal/infra/config"
	"github.com/datallboy/hlsget/internal/infra/logger"
)

var errNoSegments = errors.New("no segments to mux")

// commandRunner executes an external tool. Swapped out in tests.
type commandRunner func(ctx context.Context, name string, args ...string) error

// New returns the muxer selected by mux.mode.
func New(cfg config.MuxConfig, log *logger.Logger) (app.Muxer, error) {
	switch cfg.Mode {
	case config.MuxFFmpeg, "":
		return NewFFmpeg(cfg.FFmpegPath, cfg.Extension, log), nil
	case config.MuxConcat:
		return NewConcat(cfg.Extension, log), nil
	default:
		return nil, fmt.Errorf("unknown mux mode %q", cfg.Mode)
	}
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// Include output in error for debugging
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
