package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rzbill/ordernotify/internal/services/orderstream"
)

// sseSink implements orderstream.Sink for Server-Sent Events.
//
// Each frame is written as a single "data: {json}\n\n" event.
type sseSink struct {
	w http.ResponseWriter
	r *http.Request
}

// Send formats and sends a frame as an SSE data event.
func (s sseSink) Send(f orderstream.Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return nil
}

// Context returns the request context for cancellation.
func (s sseSink) Context() context.Context {
	return s.r.Context()
}

// Flush pushes buffered bytes to the client.
func (s sseSink) Flush() error {
	return http.NewResponseController(s.w).Flush()
}

// flushable reports whether w, or a writer it wraps, can flush.
func flushable(w http.ResponseWriter) bool {
	for {
		switch v := w.(type) {
		case interface{ Unwrap() http.ResponseWriter }:
			w = v.Unwrap()
		case http.Flusher:
			return true
		default:
			return false
		}
	}
}

// setStreamHeaders disables caching and proxy buffering for an SSE response.
func setStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
