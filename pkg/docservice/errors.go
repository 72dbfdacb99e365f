package docservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindNetwork         ErrorKind = "network"
	KindTimeout         ErrorKind = "timeout"
	KindHTTPStatus      ErrorKind = "http_status"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindCanceled        ErrorKind = "canceled"
)

// Error describes a failed call to the service.
type Error struct {
	Op      string
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindHTTPStatus && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
	case e.Kind == KindHTTPStatus:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a 404 answer from the service.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindHTTPStatus && e.Status == http.StatusNotFound
}

type bearerKey struct{}

// WithBearerToken attaches a caller's token to ctx so that it is forwarded to the service.
func WithBearerToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, bearerKey{}, token)
}

// BearerTokenFrom returns the caller's token attached to ctx, if any.
func BearerTokenFrom(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(bearerKey{}).(string)
	return tok, ok && tok != ""
}
