package interceptors

import (
	"context"
	"time"

	"github.com/Keksclan/ipcache/contextx"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// logLevel picks the level for a finished call: errors that point at the
// server are warnings, everything else is informational.
func logLevel(code codes.Code) logrus.Level {
	switch code {
	case codes.Internal, codes.Unavailable, codes.Unknown, codes.DataLoss, codes.DeadlineExceeded:
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

// requestLogger returns the request-scoped logger and a ctx carrying it.
func requestLogger(ctx context.Context, log logrus.FieldLogger, method string) (context.Context, logrus.FieldLogger) {
	l := contextx.Logger(ctx, log).WithField("method", method)
	return contextx.WithLogger(ctx, l), l
}

func logCall(l logrus.FieldLogger, err error, elapsed time.Duration) {
	code := status.Code(err)
	e := l.WithFields(logrus.Fields{
		"code":     code.String(),
		"duration": elapsed,
	})
	if err != nil {
		e = e.WithError(err)
	}
	if logLevel(code) == logrus.WarnLevel {
		e.Warn("grpc call finished")
		return
	}
	e.Info("grpc call finished")
}

// LoggingUnary returns a unary server interceptor that logs every call with
// its method, status code and duration. The request-scoped logger is stored
// on the context for handlers (see [contextx.Logger]).
func LoggingUnary(log logrus.FieldLogger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		ctx, l := requestLogger(ctx, log, info.FullMethod)
		resp, err := handler(ctx, req)
		logCall(l, err, time.Since(start))
		return resp, err
	}
}

// LoggingStream is the stream counterpart of [LoggingUnary].
func LoggingStream(log logrus.FieldLogger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		ctx, l := requestLogger(ss.Context(), log, info.FullMethod)
		err := handler(srv, &contextStream{ServerStream: ss, ctx: ctx})
		logCall(l, err, time.Since(start))
		return err
	}
}
