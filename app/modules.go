package app

import (
	"github.com/artpar/modgate/adapters/clock"
	"github.com/artpar/modgate/core/registry"
	"github.com/rs/zerolog"
)

// Candidates returns the built-in modules for discovery. Application modules
// are appended by the caller.
func Candidates(version string, base clock.Clock, logger zerolog.Logger) []registry.Candidate {
	return []registry.Candidate{
		func() (any, error) {
			return NewClockService(base, logger.With().Str("module", ClockServiceName).Logger()), nil
		},
		func() (any, error) {
			return NewSystemRouter(version, logger.With().Str("module", SystemRouterName).Logger()), nil
		},
	}
}
