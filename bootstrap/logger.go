package bootstrap

import (
	"io"
	"sync"
	"time"

	"github.com/artpar/modgate/adapters/clock"
	"github.com/artpar/modgate/config"
	"github.com/rs/zerolog"
)

// logWriter lets the log format change after startup. Loggers derived from
// the root logger keep writing through it.
type logWriter struct {
	mu  sync.RWMutex
	out io.Writer
	w   io.Writer
}

func newLogWriter(out io.Writer, format string) *logWriter {
	lw := &logWriter{out: out}
	lw.setFormat(format)
	return lw
}

func (lw *logWriter) setFormat(format string) {
	var w io.Writer = lw.out
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: lw.out, TimeFormat: time.RFC3339}
	}
	lw.mu.Lock()
	lw.w = w
	lw.mu.Unlock()
}

func (lw *logWriter) Write(p []byte) (int, error) {
	lw.mu.RLock()
	defer lw.mu.RUnlock()
	return lw.w.Write(p)
}

// setupLogger builds the root logger from the logging section. Timestamps are
// reported in logging.timezone.
func setupLogger(cfg config.LoggingConfig, out io.Writer, clk clock.Clock) (zerolog.Logger, *logWriter) {
	applyLevel(cfg.Level)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	zoned := clock.InZone(clk, loc)
	zerolog.TimestampFunc = zoned.Now

	lw := newLogWriter(out, cfg.Format)
	return zerolog.New(lw).With().Timestamp().Logger(), lw
}

func applyLevel(levelStr string) {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
