// Package route drives the gantry through pre-programmed waypoint
// sequences, pulsing the PLC's go-target coils and dwelling at each point.
package route

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cropeye/rig/internal/log"
)

// Commander issues motion commands. Satisfied by *plc.Link.
type Commander interface {
	WriteSpeeds(x, y, z *float64) (bool, error)
	WriteCoords(x, y, z *float64) (bool, error)
	Pulse(coil string) error
}

// ErrAlreadyRunning is returned by Start while a route is in flight.
var ErrAlreadyRunning = errors.New("route: already running")

// Waypoint is one target position.
type Waypoint struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Speed is a per-axis speed setting; nil axes keep the PLC's current value.
type Speed struct {
	X *float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y *float64 `json:"y,omitempty" yaml:"y,omitempty"`
	Z *float64 `json:"z,omitempty" yaml:"z,omitempty"`
}

func (s Speed) empty() bool { return s.X == nil && s.Y == nil && s.Z == nil }

// Route is an immutable movement program.
type Route struct {
	Name   string     `json:"name" yaml:"name"`
	Points []Waypoint `json:"points" yaml:"points"`
	Speed  Speed      `json:"speed,omitempty" yaml:"speed,omitempty"`
	Dwell  float64    `json:"dwell" yaml:"dwell"` // seconds at each waypoint
}

// State is a snapshot of the runner. Index counts waypoints attempted,
// 1-based. When Running is false, Error holds the terminal cause if any.
type State struct {
	Running bool    `json:"running"`
	Route   *string `json:"route"`
	RunID   string  `json:"run_id,omitempty"`
	Index   *int    `json:"index"`
	Total   *int    `json:"total"`
	Paused  bool    `json:"paused"`
	Error   *string `json:"error"`
}

// Runner executes one route at a time on its own goroutine. All state
// mutations happen under one lock; State returns a consistent snapshot.
type Runner struct {
	cmd Commander

	mu            sync.Mutex
	state         State
	stopFlag      bool
	pauseFlag     bool
	homeAfterStop bool
}

// NewRunner creates an idle runner.
func NewRunner(cmd Commander) *Runner {
	return &Runner{cmd: cmd}
}

// State returns a locked snapshot. Pointer fields reference values that
// are never mutated after publication.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start launches the route. Rejected while another route is running; the
// in-flight route's state is left untouched.
func (r *Runner) Start(route Route) error {
	r.mu.Lock()
	if r.state.Running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	name := route.Name
	if name == "" {
		name = "custom"
	}
	zero := 0
	total := len(route.Points)
	r.stopFlag = false
	r.pauseFlag = false
	r.homeAfterStop = false
	r.state = State{
		Running: true,
		Route:   &name,
		RunID:   uuid.NewString(),
		Index:   &zero,
		Total:   &total,
	}
	runID := r.state.RunID
	r.mu.Unlock()

	log.Info("route started", "route", name, "run_id", runID, "points", total)
	go r.run(route)
	return nil
}

// Pause sets or clears the pause flag. Meaningful only while running.
func (r *Runner) Pause(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.Running {
		return
	}
	r.pauseFlag = v
	r.state.Paused = v
}

// Stop requests a cooperative stop. The route exits at its next poll
// point; partial progress stays visible in Index. When home is true the
// gantry is homed after the route winds down.
func (r *Runner) Stop(home bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.Running {
		return
	}
	r.homeAfterStop = home
	r.stopFlag = true
}

func (r *Runner) stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopFlag
}

func (r *Runner) paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pauseFlag
}

func (r *Runner) setIndex(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := i
	r.state.Index = &idx
}

func (r *Runner) run(route Route) {
	runErr := r.execute(route)

	r.mu.Lock()
	if runErr != nil {
		msg := runErr.Error()
		r.state.Error = &msg
	}
	r.state.Running = false
	r.state.Paused = false
	r.stopFlag = false
	r.pauseFlag = false
	home := r.homeAfterStop
	r.homeAfterStop = false
	name := r.state.Route
	r.mu.Unlock()

	if runErr != nil {
		log.Error("route ended with error", "route", deref(name), "err", runErr)
	} else {
		log.Info("route ended", "route", deref(name))
	}

	if home {
		// Best effort: a failed home pulse must not mask route completion.
		if err := r.cmd.Pulse("xy_home"); err != nil {
			log.Warn("xy home pulse failed", "err", err)
		}
		if err := r.cmd.Pulse("z_home"); err != nil {
			log.Warn("z home pulse failed", "err", err)
		}
	}
}

func (r *Runner) execute(route Route) error {
	if !route.Speed.empty() {
		if _, err := r.cmd.WriteSpeeds(route.Speed.X, route.Speed.Y, route.Speed.Z); err != nil {
			return err
		}
	}
	for i, pt := range route.Points {
		if r.stopped() {
			break
		}
		x, y, z := pt.X, pt.Y, pt.Z
		if _, err := r.cmd.WriteCoords(&x, &y, &z); err != nil {
			return err
		}
		// Go-target pulses are best effort; the PLC may already be moving.
		if err := r.cmd.Pulse("xy_go_target"); err != nil {
			log.Warn("xy go-target pulse failed", "err", err)
		}
		if err := r.cmd.Pulse("z_go_target"); err != nil {
			log.Warn("z go-target pulse failed", "err", err)
		}
		r.setIndex(i + 1)
		r.dwell(route.Dwell)
	}
	return nil
}

// dwell waits out the per-waypoint pause, polling the stop flag at fine
// granularity and blocking coarser while paused.
func (r *Runner) dwell(seconds float64) {
	end := time.Now().Add(time.Duration(seconds * float64(time.Second)))
	for time.Now().Before(end) {
		if r.stopped() {
			return
		}
		for r.paused() && !r.stopped() {
			time.Sleep(100 * time.Millisecond)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
