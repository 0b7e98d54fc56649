package storage

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/emersion/go-webdav"
)

type statusKey struct{}

// Status records the HTTP status of the last response seen by a call made
// with a context from TrackStatus. go-webdav reports failed requests with
// an error type it does not export, so callers classify them through the
// recorded status instead.
type Status struct {
	code atomic.Int64
}

// Code returns the last recorded status, 0 when no response arrived.
func (s *Status) Code() int { return int(s.code.Load()) }

// NotFound reports whether the server answered 404 or 410.
func (s *Status) NotFound() bool {
	c := s.Code()
	return c == http.StatusNotFound || c == http.StatusGone
}

// TrackStatus returns a context that records response statuses into the
// returned Status.
func TrackStatus(ctx context.Context) (context.Context, *Status) {
	st := &Status{}
	return context.WithValue(ctx, statusKey{}, st), st
}

type statusClient struct {
	next webdav.HTTPClient
}

// StatusClient wraps hc so that requests carrying a TrackStatus context
// record their response status.
func StatusClient(hc webdav.HTTPClient) webdav.HTTPClient {
	return statusClient{next: hc}
}

func (c statusClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.next.Do(req)
	if resp != nil {
		RecordStatus(req.Context(), resp.StatusCode)
	}
	return resp, err
}

// RecordStatus stores code in the Status carried by ctx, if any.
func RecordStatus(ctx context.Context, code int) {
	if st, ok := ctx.Value(statusKey{}).(*Status); ok {
		st.code.Store(int64(code))
	}
}
