package camera

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cropeye/rig/internal/log"
)

// ErrDeviceUnavailable is returned when a camera cannot be resolved or
// opened at construction time.
var ErrDeviceUnavailable = errors.New("camera: device unavailable")

// Device is an open camera handle. Read reports false when no frame could
// be grabbed.
type Device interface {
	Read() (Frame, bool)
	Close() error
}

// OpenFunc opens a resolved device reference at the requested resolution.
type OpenFunc func(ref string, width, height int) (Device, error)

// Resolver maps a device keyword to an openable reference. Implementations
// are platform specific; the session never branches on platform.
type Resolver interface {
	Resolve(keyword string) (string, error)
}

// ReconnectPolicy controls how a session reacts to consecutive read
// failures. The defaults match the field rig's tuning; none of the values
// carry deeper meaning.
type ReconnectPolicy struct {
	Threshold     int           // consecutive failures before reconnecting
	RetryDelay    time.Duration // sleep between failed reads below threshold
	ReopenBackoff time.Duration // sleep before retrying a failed reopen
}

// DefaultReconnectPolicy returns the standard policy.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Threshold:     10,
		RetryDelay:    30 * time.Millisecond,
		ReopenBackoff: 200 * time.Millisecond,
	}
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	d := DefaultReconnectPolicy()
	if p.Threshold <= 0 {
		p.Threshold = d.Threshold
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = d.RetryDelay
	}
	if p.ReopenBackoff <= 0 {
		p.ReopenBackoff = d.ReopenBackoff
	}
	return p
}

// SessionConfig describes one camera session.
type SessionConfig struct {
	Name    string // channel label, used in logs and filenames
	Keyword string // discovery keyword handed to the resolver
	Width   int
	Height  int
	Policy  ReconnectPolicy
}

// Session runs one camera's acquisition loop on its own goroutine and
// exposes the latest frame as a locked snapshot. Steady-state failures are
// self-healing via reconnect and never surface to readers.
type Session struct {
	cfg      SessionConfig
	resolver Resolver
	open     OpenFunc

	mu    sync.Mutex
	frame *Frame

	device   Device // owned by the acquisition goroutine after Open
	failures int

	stop     chan struct{}
	refresh  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Open resolves and opens the device, then starts the acquisition loop.
// A resolve or open failure here is fatal and reported to the caller.
func Open(cfg SessionConfig, resolver Resolver, open OpenFunc) (*Session, error) {
	cfg.Policy = cfg.Policy.withDefaults()

	ref, err := resolver.Resolve(cfg.Keyword)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %q: %v", ErrDeviceUnavailable, cfg.Keyword, err)
	}
	dev, err := open(ref, cfg.Width, cfg.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrDeviceUnavailable, ref, err)
	}

	s := &Session{
		cfg:      cfg,
		resolver: resolver,
		open:     open,
		device:   dev,
		stop:     make(chan struct{}),
		refresh:  make(chan struct{}, 1),
	}
	s.wg.Add(1)
	go s.loop()
	return s, nil
}

// Snapshot returns a copy of the latest frame, or nil when none is
// available. It never blocks on device I/O.
func (s *Session) Snapshot() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil
	}
	c := s.frame.Clone()
	return &c
}

// Name returns the configured channel label.
func (s *Session) Name() string { return s.cfg.Name }

// Refresh asks the acquisition loop to reopen the device so that changed
// capture controls are picked up. Non-blocking; coalesces with a pending
// refresh.
func (s *Session) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Stop ends the acquisition loop, joins it, and releases the device.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	if s.device != nil {
		if err := s.device.Close(); err != nil {
			log.Warn("camera close failed", "camera", s.cfg.Name, "err", err)
		}
		s.device = nil
	}
}

func (s *Session) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case <-s.refresh:
			s.reconnect()
			continue
		default:
		}

		if s.device == nil {
			if s.sleepInterruptible(s.cfg.Policy.ReopenBackoff) {
				return
			}
			s.reconnect()
			continue
		}

		frame, ok := s.device.Read()
		if ok {
			if frame.CapturedAt.IsZero() {
				frame.CapturedAt = time.Now()
			}
			s.failures = 0
			s.mu.Lock()
			s.frame = &frame
			s.mu.Unlock()
			continue
		}

		s.failures++
		if s.failures >= s.cfg.Policy.Threshold {
			s.reconnect()
			continue
		}
		if s.sleepInterruptible(s.cfg.Policy.RetryDelay) {
			return
		}
	}
}

// reconnect releases the current handle, re-resolves the keyword and
// reopens with the same configuration. On failure the session is left
// without a device and without a frame; the loop retries after a backoff.
func (s *Session) reconnect() {
	if s.device != nil {
		_ = s.device.Close()
		s.device = nil
	}
	s.mu.Lock()
	s.frame = nil
	s.mu.Unlock()
	s.failures = 0

	ref, err := s.resolver.Resolve(s.cfg.Keyword)
	if err != nil {
		log.Warn("camera re-resolve failed", "camera", s.cfg.Name, "keyword", s.cfg.Keyword, "err", err)
		return
	}
	dev, err := s.open(ref, s.cfg.Width, s.cfg.Height)
	if err != nil {
		log.Warn("camera reopen failed", "camera", s.cfg.Name, "ref", ref, "err", err)
		return
	}
	s.device = dev
	log.Info("camera reconnected", "camera", s.cfg.Name, "ref", ref)
}

// sleepInterruptible waits for d and reports whether stop was signalled.
func (s *Session) sleepInterruptible(d time.Duration) bool {
	select {
	case <-s.stop:
		return true
	case <-time.After(d):
		return false
	}
}
