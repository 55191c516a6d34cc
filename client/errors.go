package client

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fields lists the single-attribute endpoints the upstream serves.
var fields = []string{"ip", "hostname", "city", "region", "country", "loc", "org", "postal", "timezone"}

func validField(f string) bool {
	return slices.Contains(fields, f)
}

// apiError is the upstream's JSON error body.
type apiError struct {
	Error struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	} `json:"error"`
}

// upstreamError maps a non-2xx upstream response to a gRPC status error.
func upstreamError(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}

	msg := http.StatusText(code)
	var ae apiError
	if json.Unmarshal(body, &ae) == nil && ae.Error.Message != "" {
		msg = ae.Error.Message
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) < 256 {
		msg = text
	}

	switch {
	case code == http.StatusBadRequest:
		return status.Error(codes.InvalidArgument, msg)
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return status.Error(codes.Unauthenticated, msg)
	case code == http.StatusNotFound:
		return status.Error(codes.NotFound, msg)
	case code == http.StatusTooManyRequests:
		return status.Error(codes.ResourceExhausted, msg)
	case code >= 500:
		return status.Error(codes.Unavailable, msg)
	default:
		return status.Errorf(codes.Unknown, "upstream status %d: %s", code, msg)
	}
}
