package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cropeye/rig/pkg/camera"
	"github.com/cropeye/rig/pkg/plc"
	"github.com/cropeye/rig/pkg/route"
	"github.com/cropeye/rig/pkg/saver"
)

func errJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func (s *Server) plcUnavailable(c *fiber.Ctx) error {
	return errJSON(c, fiber.StatusServiceUnavailable, "plc link not connected")
}

// handleState returns the aggregate rig snapshot.
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.currentState())
}

// AxisRequest carries optional per-axis values; missing axes are left
// untouched on the PLC.
type AxisRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

func (s *Server) handleSpeeds(c *fiber.Ctx) error {
	if s.link == nil {
		return s.plcUnavailable(c)
	}
	var req AxisRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid body")
	}
	written, err := s.link.WriteSpeeds(req.X, req.Y, req.Z)
	if err != nil {
		return errJSON(c, fiber.StatusBadGateway, err.Error())
	}
	return c.JSON(fiber.Map{"written": written})
}

func (s *Server) handleCoords(c *fiber.Ctx) error {
	if s.link == nil {
		return s.plcUnavailable(c)
	}
	var req AxisRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid body")
	}
	written, err := s.link.WriteCoords(req.X, req.Y, req.Z)
	if err != nil {
		return errJSON(c, fiber.StatusBadGateway, err.Error())
	}
	return c.JSON(fiber.Map{"written": written})
}

// CoilRequest names a coil action. Pulse actions strobe the coil;
// level actions need an explicit value.
type CoilRequest struct {
	Action string `json:"action"`
	Pulse  bool   `json:"pulse"`
	Value  *bool  `json:"value"`
}

func (s *Server) handleCoil(c *fiber.Ctx) error {
	if s.link == nil {
		return s.plcUnavailable(c)
	}
	var req CoilRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid body")
	}
	if err := s.link.HandleCoil(req.Action, req.Pulse, req.Value); err != nil {
		if errors.Is(err, plc.ErrUnknownCoil) {
			return errJSON(c, fiber.StatusBadRequest, err.Error())
		}
		return errJSON(c, fiber.StatusBadGateway, err.Error())
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) handleListRoutes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"routes": s.cfg.Routes,
		"bounds": s.cfg.Bounds,
	})
}

// RouteStartRequest starts a configured route by name or an inline one.
type RouteStartRequest struct {
	Name  string       `json:"name"`
	Route *route.Route `json:"route"`
}

func (s *Server) handleRouteStart(c *fiber.Ctx) error {
	if s.runner == nil {
		return s.plcUnavailable(c)
	}
	var req RouteStartRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid body")
	}
	var r route.Route
	switch {
	case req.Route != nil:
		r = *req.Route
	case req.Name != "":
		var ok bool
		if r, ok = s.cfg.RouteByName(req.Name); !ok {
			return errJSON(c, fiber.StatusNotFound, "unknown route: "+req.Name)
		}
	default:
		return errJSON(c, fiber.StatusBadRequest, "name or route required")
	}
	if len(r.Points) == 0 {
		return errJSON(c, fiber.StatusBadRequest, "route has no waypoints")
	}
	if err := s.runner.Start(r); err != nil {
		if errors.Is(err, route.ErrAlreadyRunning) {
			return errJSON(c, fiber.StatusConflict, err.Error())
		}
		return errJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(s.runner.State())
}

func (s *Server) handleRouteStop(c *fiber.Ctx) error {
	if s.runner == nil {
		return s.plcUnavailable(c)
	}
	var req struct {
		Home bool `json:"home"`
	}
	c.BodyParser(&req) // empty body means no homing
	s.runner.Stop(req.Home)
	return c.JSON(s.runner.State())
}

func (s *Server) handleRoutePause(c *fiber.Ctx) error {
	if s.runner == nil {
		return s.plcUnavailable(c)
	}
	var req struct {
		Pause bool `json:"pause"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid body")
	}
	s.runner.Pause(req.Pause)
	return c.JSON(s.runner.State())
}

func (s *Server) handleRouteState(c *fiber.Ctx) error {
	if s.runner == nil {
		return c.JSON(route.State{})
	}
	return c.JSON(s.runner.State())
}

func (s *Server) handleSave(c *fiber.Ctx) error {
	if s.recorder == nil {
		return errJSON(c, fiber.StatusServiceUnavailable, "camera not available")
	}
	var req struct {
		Dir string `json:"dir"`
	}
	c.BodyParser(&req)
	path, ok := s.recorder.SaveCurrent(req.Dir)
	if !ok {
		return errJSON(c, fiber.StatusConflict, "no frame available yet")
	}
	return c.JSON(fiber.Map{"saved": true, "path": path})
}

func (s *Server) handleTimedStart(c *fiber.Ctx) error {
	if s.recorder == nil {
		return errJSON(c, fiber.StatusServiceUnavailable, "camera not available")
	}
	dir, err := s.recorder.StartTimed()
	if err != nil {
		if errors.Is(err, saver.ErrTimedRunning) {
			return errJSON(c, fiber.StatusConflict, err.Error())
		}
		return errJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"started": true, "dir": dir})
}

func (s *Server) handleTimedStop(c *fiber.Ctx) error {
	if s.recorder == nil {
		return errJSON(c, fiber.StatusServiceUnavailable, "camera not available")
	}
	s.recorder.StopTimed()
	return c.JSON(fiber.Map{"stopped": true})
}

// SaveParamsRequest tunes the save pipeline. Zero values keep the
// current setting.
type SaveParamsRequest struct {
	SaveDir        string  `json:"save_dir"`
	SaveFormat     string  `json:"save_format"`
	JPEGQuality    int     `json:"jpeg_quality"`
	PNGCompression int     `json:"png_compression"`
	IntervalSec    float64 `json:"interval_sec"`
	SaveWorkers    int     `json:"save_workers"`
}

func (s *Server) handleSaveParams(c *fiber.Ctx) error {
	if s.recorder == nil {
		return errJSON(c, fiber.StatusServiceUnavailable, "camera not available")
	}
	var req SaveParamsRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid body")
	}
	interval := time.Duration(req.IntervalSec * float64(time.Second))
	s.recorder.SetParams(req.SaveDir, req.SaveFormat, interval)
	pool := s.recorder.Pool()
	if req.JPEGQuality > 0 || req.PNGCompression > 0 {
		pool.SetQuality(req.JPEGQuality, req.PNGCompression)
	}
	// Worker count is fixed per pool, so a change rebuilds it. The fresh
	// pool inherits the old one's encoder settings.
	if req.SaveWorkers > 0 && req.SaveWorkers != pool.Workers() {
		jq, pc := pool.Quality()
		fresh := saver.New(saver.Options{
			Workers:        req.SaveWorkers,
			JPEGQuality:    jq,
			PNGCompression: pc,
			Notify:         s.notify,
		})
		fresh.Start()
		s.recorder.SetPool(fresh)
		pool.Stop()
	}
	return c.JSON(fiber.Map{"ok": true})
}

// AutofocusRequest toggles the preview camera's continuous autofocus.
type AutofocusRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleAutofocus(c *fiber.Ctx) error {
	if s.preview == nil || s.prevCtrl == nil {
		return errJSON(c, fiber.StatusServiceUnavailable, "camera not available")
	}
	var req AutofocusRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid body")
	}
	s.prevCtrl.Update(func(ctrl *camera.Controls) {
		enabled := req.Enabled
		ctrl.Autofocus = &enabled
	})
	// Disabling re-applies the stored manual focus on reopen.
	s.preview.Refresh()
	return c.JSON(fiber.Map{"ok": true, "enabled": req.Enabled})
}

// FocusRequest sets a manual focus position. Out-of-range values are
// clamped to the device's focus range.
type FocusRequest struct {
	Value int `json:"value"`
}

func (s *Server) handleFocus(c *fiber.Ctx) error {
	if s.preview == nil || s.prevCtrl == nil {
		return errJSON(c, fiber.StatusServiceUnavailable, "camera not available")
	}
	var req FocusRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid body")
	}
	var clamped int
	s.prevCtrl.Update(func(ctrl *camera.Controls) {
		clamped = ctrl.ClampFocus(req.Value)
		off := false
		ctrl.Autofocus = &off
		ctrl.Focus = clamped
	})
	s.preview.Refresh()
	return c.JSON(fiber.Map{"ok": true, "value": clamped})
}

func (s *Server) handleCameraStatus(c *fiber.Ctx) error {
	st := cameraStatus{}
	if s.preview != nil {
		st.PreviewUp = s.preview.Snapshot() != nil
	}
	if s.recorder != nil {
		st.QueueLen = s.recorder.Pool().QueueLen()
		st.SessionDir = s.recorder.SessionDir()
	}
	return c.JSON(st)
}

func (s *Server) handleChannels(c *fiber.Ctx) error {
	if s.spectral == nil {
		return c.JSON(fiber.Map{"channels": []string{}})
	}
	return c.JSON(fiber.Map{"channels": s.spectral.ListChannels()})
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	if s.spectral == nil {
		return errJSON(c, fiber.StatusServiceUnavailable, "multispec array not available")
	}
	s.spectral.Rebuild(s.cfg.Multispec.Channels)
	return c.JSON(fiber.Map{"channels": s.spectral.ListChannels()})
}
