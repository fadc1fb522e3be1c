package saver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cropeye/rig/internal/log"
	"github.com/cropeye/rig/pkg/camera"
)

// FrameSource supplies the latest frame snapshot, or nil when none exists.
type FrameSource interface {
	Snapshot() *camera.Frame
}

// ErrTimedRunning is returned when a timed capture session is already active.
var ErrTimedRunning = errors.New("saver: timed capture already running")

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	SaveDir  string
	Format   string        // "jpg" or "png"; anything else becomes "jpg"
	Interval time.Duration // timed capture cadence, min 50 ms
}

// Recorder turns snapshots into save jobs: one-shot manual saves and
// interval-driven timed sessions under a timestamp-named subdirectory.
type Recorder struct {
	source FrameSource
	pool   *Pool

	mu         sync.Mutex
	saveDir    string
	format     string
	interval   time.Duration
	sessionDir string

	timedStop chan struct{}
	timedWG   sync.WaitGroup
}

// NewRecorder wires a frame source to a save pool.
func NewRecorder(source FrameSource, pool *Pool, opts RecorderOptions) *Recorder {
	r := &Recorder{source: source, pool: pool}
	r.SetParams(opts.SaveDir, opts.Format, opts.Interval)
	return r
}

// SetPool swaps the save pool. Used when the worker count changes and the
// pool is rebuilt. The caller owns stopping the old pool.
func (r *Recorder) SetPool(p *Pool) {
	r.mu.Lock()
	r.pool = p
	r.mu.Unlock()
}

// Pool returns the recorder's current save pool.
func (r *Recorder) Pool() *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool
}

// SetParams updates save directory, format and timed interval. Empty or
// zero values keep the current setting.
func (r *Recorder) SetParams(saveDir, format string, interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if saveDir != "" {
		r.saveDir = saveDir
	}
	if format != "" {
		if format != "jpg" && format != "png" {
			format = "jpg"
		}
		r.format = format
	}
	if interval > 0 {
		if interval < 50*time.Millisecond {
			interval = 50 * time.Millisecond
		}
		r.interval = interval
	}
	if r.saveDir == "" {
		r.saveDir = "captures"
	}
	if r.format == "" {
		r.format = "jpg"
	}
	if r.interval == 0 {
		r.interval = time.Second
	}
}

// SaveCurrent submits the latest frame for saving into dir (or the
// configured save directory). Reports the destination path, or false when
// no frame is available yet.
func (r *Recorder) SaveCurrent(dir string) (string, bool) {
	frame := r.source.Snapshot()
	if frame == nil {
		return "", false
	}
	r.mu.Lock()
	if dir == "" {
		dir = r.saveDir
	}
	ext := "." + r.format
	pool := r.pool
	r.mu.Unlock()

	path := filepath.Join(dir, frame.Timestamp()+ext)
	pool.Submit(*frame, path)
	return path, true
}

// StartTimed begins periodic capture into a new timestamp-named session
// directory under the save root. Returns the session directory.
func (r *Recorder) StartTimed() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timedStop != nil {
		return "", ErrTimedRunning
	}
	dir := filepath.Join(r.saveDir, time.Now().Format("20060102_150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	r.sessionDir = dir
	r.timedStop = make(chan struct{})
	stop := r.timedStop
	interval := r.interval

	r.timedWG.Add(1)
	go func() {
		defer r.timedWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if _, ok := r.SaveCurrent(dir); !ok {
				log.Debug("timed capture: no frame yet", "dir", dir)
			}
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
	log.Info("timed capture started", "dir", dir, "interval", interval)
	return dir, nil
}

// StopTimed ends the timed session, if any, and joins its goroutine.
func (r *Recorder) StopTimed() {
	r.mu.Lock()
	stop := r.timedStop
	r.timedStop = nil
	r.sessionDir = ""
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	r.timedWG.Wait()
}

// SessionDir returns the active timed session directory, or empty.
func (r *Recorder) SessionDir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionDir
}
