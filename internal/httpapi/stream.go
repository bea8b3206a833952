package httpapi

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// sseWriter emits Server-Sent Events frames in the OpenAI shape, one
// "data: <json>" block per frame, flushed immediately so clients observe
// the scheduled pacing rather than buffer boundaries.
type sseWriter struct {
	bw      *bufio.Writer
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter, flusher http.Flusher) *sseWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{bw: bufio.NewWriter(w), flusher: flusher}
}

func (s *sseWriter) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.bw, "data: %s\n\n", b); err != nil {
		return err
	}
	return s.flush()
}

// done writes the SSE terminator sentinel.
func (s *sseWriter) done() error {
	if _, err := fmt.Fprint(s.bw, "data: [DONE]\n\n"); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseWriter) flush() error {
	if err := s.bw.Flush(); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// ndjsonWriter emits newline-delimited JSON frames in the Ollama shape.
type ndjsonWriter struct {
	bw      *bufio.Writer
	flusher http.Flusher
}

func newNDJSONWriter(w http.ResponseWriter, flusher http.Flusher) *ndjsonWriter {
	w.Header().Set("Content-Type", "application/x-ndjson")
	return &ndjsonWriter{bw: bufio.NewWriter(w), flusher: flusher}
}

func (n *ndjsonWriter) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := n.bw.Write(b); err != nil {
		return err
	}
	if err := n.bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := n.bw.Flush(); err != nil {
		return err
	}
	n.flusher.Flush()
	return nil
}

// pace sleeps for a scheduled delay, scaled by TIME_SCALE. Scaling changes
// wall-clock gaps only; the bytes on the wire stay identical across scales.
func (s *Server) pace(ctx context.Context, seconds float64) error {
	scale := s.cfg.TimeScale
	if scale < 0 {
		scale = 0
	}
	sleepWithContext(ctx, time.Duration(seconds*scale*float64(time.Second)))
	return ctx.Err()
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
		return
	}
}
