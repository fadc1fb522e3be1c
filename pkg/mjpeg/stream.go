// Package mjpeg writes motion-JPEG multipart streams: each part is one
// encoded frame behind a boundary marker, a content-type header and an
// explicit content-length header.
package mjpeg

import (
	"fmt"
	"io"
	"time"
)

// Boundary separates parts in the multipart stream.
const Boundary = "frame"

// ContentType is the response content type for an MJPEG stream.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// Source produces the next encoded JPEG, reporting false when no frame
// is available yet.
type Source func() ([]byte, bool)

// WritePart emits one boundary-delimited frame.
func WritePart(w io.Writer, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

type flusher interface {
	Flush() error
}

// Serve pushes frames from next to w at the given cadence until the
// client goes away (write error) or stop is closed. A missing frame is
// skipped, not an error.
func Serve(w io.Writer, next Source, interval time.Duration, stop <-chan struct{}) error {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
		}
		jpeg, ok := next()
		if !ok {
			continue
		}
		if err := WritePart(w, jpeg); err != nil {
			return err
		}
		if f, ok := w.(flusher); ok {
			if err := f.Flush(); err != nil {
				return err
			}
		}
	}
}
