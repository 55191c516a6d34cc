package interceptors

import (
	"context"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errInternal = status.Error(codes.Internal, "internal server error")

func logPanic(log logrus.FieldLogger, method string, r any) {
	if log == nil {
		return
	}
	log.WithFields(logrus.Fields{
		"method": method,
		"panic":  r,
		"stack":  string(debug.Stack()),
	}).Error("recovered from handler panic")
}

// RecoveryUnary returns a unary server interceptor that recovers from panics,
// logs them with their stack, and returns codes.Internal instead of crashing
// the process. log may be nil.
func RecoveryUnary(log logrus.FieldLogger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(log, info.FullMethod, r)
				resp = nil
				err = errInternal
			}
		}()
		return handler(ctx, req)
	}
}

// RecoveryStream is the stream counterpart of [RecoveryUnary].
func RecoveryStream(log logrus.FieldLogger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(log, info.FullMethod, r)
				err = errInternal
			}
		}()
		return handler(srv, ss)
	}
}
