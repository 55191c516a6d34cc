package cache

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

type config struct {
	now      func() time.Time
	recorder Recorder
	log      logrus.FieldLogger
}

// Option configures a Store.
type Option func(*config)

// WithClock replaces time.Now as the store's single source of the current
// instant. Both insertion stamps and staleness checks read it.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRecorder reports hits, misses, stale reads, writes and clears to r.
func WithRecorder(r Recorder) Option {
	return func(c *config) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
