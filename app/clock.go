// Package app contains the built-in modules every server starts with: the
// clock service and the system router.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/artpar/modgate/adapters/clock"
	"github.com/artpar/modgate/config"
	"github.com/artpar/modgate/core/module"
	"github.com/rs/zerolog"
)

// ClockServiceName is the registry name of the clock service.
const ClockServiceName = "clock"

// ClockService reports the current time in the configured timezone. The zone
// comes from app.timezone, falling back to logging.timezone.
type ClockService struct {
	desc   module.Descriptor
	base   clock.Clock
	logger zerolog.Logger

	mu   sync.RWMutex
	zone string
	now  clock.Zoned
}

// NewClockService creates the clock service. A nil base uses the real clock.
func NewClockService(base clock.Clock, logger zerolog.Logger) *ClockService {
	if base == nil {
		base = clock.Real{}
	}
	return &ClockService{
		desc:   module.NewService(ClockServiceName).Build(),
		base:   base,
		logger: logger,
		zone:   "UTC",
		now:    clock.InZone(base, time.UTC),
	}
}

func (s *ClockService) Descriptor() module.Descriptor { return s.desc }

// Configure records the timezone to load during Init.
func (s *ClockService) Configure(_ context.Context, cfg *config.Config) error {
	zone := cfg.AppString("timezone", cfg.Logging.Timezone)
	if zone == "" {
		zone = "UTC"
	}
	s.mu.Lock()
	s.zone = zone
	s.mu.Unlock()
	return nil
}

// Init loads the configured timezone.
func (s *ClockService) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, err := time.LoadLocation(s.zone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", s.zone, err)
	}
	s.now = clock.InZone(s.base, loc)
	s.logger.Debug().Str("timezone", loc.String()).Msg("clock service ready")
	return nil
}

// Now returns the current time in the configured zone.
func (s *ClockService) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now.Now()
}

// Location returns the configured zone.
func (s *ClockService) Location() *time.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now.Location()
}
