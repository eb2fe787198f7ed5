package main

import (
	"context"
	"errors"

	"github.com/datallboy/hlsget/internal/domain"
)

const (
	exitSuccess       = 0
	exitGeneral       = 1
	exitInvalidName   = 2
	exitEmptyPlaylist = 3
	exitFetch         = 4
	exitAssembly      = 5
	exitPartial       = 6
	exitManifest      = 7
	exitInterrupted   = 130
)

// exitCode maps a command error to the process exit status. Order matters:
// a partial result unwraps to ErrFetch, a bad manifest URL to ErrValidation,
// an empty playlist and an unreachable manifest both unwrap to ErrManifest.
func exitCode(err error) int {
	var partial *domain.PartialFailureError
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.As(err, &partial):
		return exitPartial
	case errors.Is(err, domain.ErrInvalidURL):
		return exitManifest
	case errors.Is(err, domain.ErrValidation):
		return exitInvalidName
	case errors.Is(err, domain.ErrEmptyPlaylist):
		return exitEmptyPlaylist
	case errors.Is(err, domain.ErrFetch):
		return exitFetch
	case errors.Is(err, domain.ErrAssembly):
		return exitAssembly
	case errors.Is(err, domain.ErrManifest):
		return exitManifest
	default:
		return exitGeneral
	}
}
