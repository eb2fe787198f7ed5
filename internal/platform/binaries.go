package platform

import (
	"fmt"
	"os/exec"

	"github.com/datallboy/hlsget/internal/infra/config"
)

// ValidateDependencies checks that the external binaries the configured
// muxer needs are on PATH.
func ValidateDependencies(cfg config.MuxConfig) error {
	if cfg.Mode != config.MuxFFmpeg {
		return nil
	}

	bin := cfg.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}

	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("required dependency: '%s' not found in PATH (set mux.mode=concat to skip ffmpeg)", bin)
	}
	return nil
}
