package contextx

import (
	"context"

	"github.com/sirupsen/logrus"
)

// WithLogger returns a derived context that carries l.
func WithLogger(ctx context.Context, l logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// Logger returns the logger stored in ctx, falling back to fallback. When
// ctx carries a request ID the result is tagged with it.
func Logger(ctx context.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	l, ok := ctx.Value(loggerKey).(logrus.FieldLogger)
	if !ok {
		l = fallback
	}
	if id := RequestIDFromContext(ctx); id != "" {
		return l.WithField("request_id", id)
	}
	return l
}
