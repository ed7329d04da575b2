// Package api provides the authenticated client for the OMERO server REST
// surface.
package api

import (
	"context"
	"errors"
	"net"
)

// ErrRemoteUnavailable covers every failure talking to the remote server:
// network errors, timeouts, non-2xx statuses and malformed JSON. Nothing
// below this boundary leaks a raw transport error to callers.
var ErrRemoteUnavailable = errors.New("remote server unavailable")

// ErrSourceGone indicates the remote explicitly reported the resource as
// gone (404/410), as opposed to being merely unreachable. Sync uses it to
// flag a reference's source as missing.
var ErrSourceGone = errors.New("remote source is gone")

// IsUnavailable reports whether err is a remote-unavailable condition,
// including wrapped timeouts.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRemoteUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
