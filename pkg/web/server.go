// Package web exposes the rig over HTTP: a JSON control API, MJPEG
// preview streams and a websocket telemetry feed.
package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/cropeye/rig/internal/config"
	"github.com/cropeye/rig/internal/log"
	"github.com/cropeye/rig/pkg/camera"
	"github.com/cropeye/rig/pkg/hub"
	"github.com/cropeye/rig/pkg/multispec"
	"github.com/cropeye/rig/pkg/plc"
	"github.com/cropeye/rig/pkg/route"
	"github.com/cropeye/rig/pkg/saver"
)

// Components holds the rig subsystems the server fronts. Nil entries are
// legal: endpoints for an absent subsystem answer 503.
type Components struct {
	Link     *plc.Link
	Runner   *route.Runner
	Preview  *camera.Session
	Recorder *saver.Recorder
	Spectral *multispec.Registry

	// PreviewControls is the control store the preview opener reads.
	// Required for the focus endpoints; nil turns them into 503s.
	PreviewControls *camera.ControlsStore

	// Events carries save notifications to websocket viewers. Optional.
	Events <-chan saver.Event

	// Notify is handed to rebuilt save pools so notifications keep
	// flowing after a worker-count change. Optional.
	Notify chan<- saver.Event
}

// Server is the rig's HTTP control surface.
type Server struct {
	app *fiber.App
	cfg *config.Config

	link     *plc.Link
	runner   *route.Runner
	preview  *camera.Session
	recorder *saver.Recorder
	spectral *multispec.Registry
	prevCtrl *camera.ControlsStore
	events   <-chan saver.Event
	notify   chan<- saver.Event

	stateHub *hub.Hub
	stop     chan struct{}
}

// NewServer builds the fiber app and wires all routes.
func NewServer(cfg *config.Config, c Components) *Server {
	s := &Server{
		cfg:      cfg,
		link:     c.Link,
		runner:   c.Runner,
		preview:  c.Preview,
		recorder: c.Recorder,
		spectral: c.Spectral,
		prevCtrl: c.PreviewControls,
		events:   c.Events,
		notify:   c.Notify,
		stateHub: hub.New("state"),
		stop:     make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "cropeye rig",
		DisableStartupMessage: true,
	})

	// CORS for the field tablet UI
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Post("/plc/speeds", s.handleSpeeds)
	api.Post("/plc/coords", s.handleCoords)
	api.Post("/plc/coil", s.handleCoil)

	api.Get("/routes", s.handleListRoutes)
	api.Post("/route/start", s.handleRouteStart)
	api.Post("/route/stop", s.handleRouteStop)
	api.Post("/route/pause", s.handleRoutePause)
	api.Get("/route/state", s.handleRouteState)

	api.Post("/camera/save", s.handleSave)
	api.Post("/camera/timed/start", s.handleTimedStart)
	api.Post("/camera/timed/stop", s.handleTimedStop)
	api.Post("/camera/params", s.handleSaveParams)
	api.Post("/camera/autofocus", s.handleAutofocus)
	api.Post("/camera/focus", s.handleFocus)
	api.Get("/camera/status", s.handleCameraStatus)

	api.Get("/multispec/channels", s.handleChannels)
	api.Post("/multispec/refresh", s.handleRefresh)

	app.Get("/camera/stream", s.handlePreviewStream)
	app.Get("/multispec/stream", s.handleMosaicStream)
	app.Get("/multispec/stream/:channel", s.handleChannelStream)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))

	s.app = app
	return s
}

// Start blocks serving on the configured listen address.
func (s *Server) Start() error {
	go s.stateHub.Run()
	go s.pollState()
	log.Info("http server listening", "addr", s.cfg.Listen)
	return s.app.Listen(s.cfg.Listen)
}

// Shutdown stops the stream/telemetry goroutines and the fiber app.
func (s *Server) Shutdown() error {
	close(s.stop)
	s.stateHub.Stop()
	return s.app.Shutdown()
}

// statePayload is the websocket telemetry envelope.
type statePayload struct {
	PLC    *plc.Telemetry `json:"plc"`
	Route  route.State    `json:"route"`
	Camera cameraStatus   `json:"camera"`
}

type cameraStatus struct {
	PreviewUp  bool   `json:"preview_up"`
	QueueLen   int    `json:"queue_len"`
	SessionDir string `json:"session_dir,omitempty"`
}

func (s *Server) currentState() statePayload {
	var p statePayload
	if s.link != nil {
		t := s.link.State()
		p.PLC = &t
	}
	if s.runner != nil {
		p.Route = s.runner.State()
	}
	if s.preview != nil {
		p.Camera.PreviewUp = s.preview.Snapshot() != nil
	}
	if s.recorder != nil {
		p.Camera.QueueLen = s.recorder.Pool().QueueLen()
		p.Camera.SessionDir = s.recorder.SessionDir()
	}
	return p
}

// savedPayload announces one landed image to websocket viewers.
type savedPayload struct {
	Saved saver.Event `json:"saved"`
}

// pollState publishes a telemetry snapshot to websocket viewers once a
// second while any are connected, and relays save notifications as they
// arrive. A nil events channel never fires.
func (s *Server) pollState() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case ev := <-s.events:
			if s.stateHub.ClientCount() > 0 {
				s.stateHub.BroadcastJSON(savedPayload{Saved: ev})
			}
		case <-ticker.C:
			if s.stateHub.ClientCount() > 0 {
				s.stateHub.BroadcastJSON(s.currentState())
			}
		}
	}
}

// handleStateWS feeds telemetry snapshots to a websocket viewer.
func (s *Server) handleStateWS(c *websocket.Conn) {
	c.WriteJSON(s.currentState())
	hub.NewClient(s.stateHub, c).Run()
}
