// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2atest

import (
	"io"
	"net/http"

	"github.com/agentvault/a2a"
)

// sseWriter writes Server-Sent-Event frames and flushes each one to the client.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	f, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: f}
}

// open sets the stream headers and flushes the 200 handshake.
func (sw *sseWriter) open() {
	h := sw.w.Header()
	h.Set("Content-Type", a2a.ContentTypeEventStream)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	sw.w.WriteHeader(http.StatusOK)
	sw.flush()
}

func (sw *sseWriter) event(ev a2a.Event) error {
	frame, err := a2a.EncodeSSEEvent(ev)
	if err != nil {
		return err
	}
	return sw.raw(string(frame))
}

func (sw *sseWriter) raw(frame string) error {
	if _, err := io.WriteString(sw.w, frame); err != nil {
		return err
	}
	sw.flush()
	return nil
}

func (sw *sseWriter) flush() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}
