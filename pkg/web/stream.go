package web

import (
	"bufio"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cropeye/rig/pkg/camera"
	"github.com/cropeye/rig/pkg/mjpeg"
	"github.com/cropeye/rig/pkg/multispec"
)

// Stream cadences. The preview follows the camera's native pace closely;
// mosaic rendering is heavier, so it runs slower.
const (
	previewInterval = 66 * time.Millisecond
	mosaicInterval  = 200 * time.Millisecond
)

// serveMJPEG hands the response body to a streaming writer that pushes
// parts until the client disconnects or the server shuts down.
func (s *Server) serveMJPEG(c *fiber.Ctx, src mjpeg.Source, interval time.Duration) error {
	c.Set(fiber.HeaderContentType, mjpeg.ContentType)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		mjpeg.Serve(w, src, interval, s.stop)
	})
	return nil
}

// sessionSource encodes snapshots downscaled to fit the UI box. Capture
// runs at native resolution for saved images; shipping that over MJPEG
// would waste field-network bandwidth.
func sessionSource(sess interface{ Snapshot() *camera.Frame }, maxW, maxH, quality int) mjpeg.Source {
	return func() ([]byte, bool) {
		frame := sess.Snapshot()
		if frame == nil {
			return nil, false
		}
		jpeg, err := camera.EncodeJPEGFit(*frame, maxW, maxH, quality)
		if err != nil {
			return nil, false
		}
		return jpeg, true
	}
}

func (s *Server) handlePreviewStream(c *fiber.Ctx) error {
	if s.preview == nil {
		return errJSON(c, fiber.StatusServiceUnavailable, "camera not available")
	}
	cam := s.cfg.Camera
	return s.serveMJPEG(c, sessionSource(s.preview, cam.PreviewWidth, cam.PreviewHeight, cam.PreviewQuality), previewInterval)
}

func (s *Server) handleChannelStream(c *fiber.Ctx) error {
	if s.spectral == nil {
		return errJSON(c, fiber.StatusServiceUnavailable, "multispec array not available")
	}
	channel := c.Params("channel")
	quality := s.cfg.Multispec.JPEGQuality
	src := func() ([]byte, bool) {
		frame := s.spectral.Snapshot(channel)
		if frame == nil {
			return nil, false
		}
		jpeg, err := camera.EncodeJPEG(*frame, quality)
		if err != nil {
			return nil, false
		}
		return jpeg, true
	}
	return s.serveMJPEG(c, src, previewInterval)
}

// handleMosaicStream streams all six bands as one tiled image.
func (s *Server) handleMosaicStream(c *fiber.Ctx) error {
	if s.spectral == nil {
		return errJSON(c, fiber.StatusServiceUnavailable, "multispec array not available")
	}
	quality := s.cfg.Multispec.JPEGQuality
	src := func() ([]byte, bool) {
		jpeg, err := multispec.Mosaic(s.spectral, quality)
		if err != nil {
			return nil, false
		}
		return jpeg, true
	}
	return s.serveMJPEG(c, src, mosaicInterval)
}
