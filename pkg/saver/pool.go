// Package saver encodes and persists frames through a bounded worker pool.
// The queue is the system's backpressure mechanism: when full, the oldest
// pending job is dropped in favor of the newest.
package saver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/cropeye/rig/internal/log"
	"github.com/cropeye/rig/pkg/camera"
)

// Job is one frame bound for disk. Consumed exactly once by a worker.
type Job struct {
	Frame camera.Frame
	Path  string
}

// Event notifies a listener that a file was written.
type Event struct {
	Path string
	At   time.Time
}

// Options configures a Pool. Zero values fall back to defaults; quality
// parameters are clamped to their encoder ranges.
type Options struct {
	QueueSize      int         // default 200
	Workers        int         // default 2
	JPEGQuality    int         // 10..100, default 92
	PNGCompression int         // 0..9, default 3
	Notify         chan<- Event // optional, best-effort
}

// Pool is a fixed worker pool draining one bounded job queue.
type Pool struct {
	jobs   chan Job
	notify chan<- Event

	mu             sync.Mutex
	jpegQuality    int
	pngCompression int

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	workers  int
	started  bool
}

// New creates a pool. Call Start to launch workers.
func New(opts Options) *Pool {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 200
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	p := &Pool{
		jobs:           make(chan Job, opts.QueueSize),
		notify:         opts.Notify,
		stop:           make(chan struct{}),
		workers:        opts.Workers,
		jpegQuality:    92,
		pngCompression: 3,
	}
	p.SetQuality(opts.JPEGQuality, opts.PNGCompression)
	return p
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop signals the workers, lets in-flight jobs finish, and joins.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

// QueueLen reports the number of pending jobs.
func (p *Pool) QueueLen() int { return len(p.jobs) }

// SetQuality updates encoder parameters, clamped to valid ranges. A zero
// value keeps the current setting.
func (p *Pool) SetQuality(jpegQuality, pngCompression int) {
	p.mu.Lock()
	if jpegQuality != 0 {
		p.jpegQuality = clamp(jpegQuality, 10, 100)
	}
	if pngCompression != 0 {
		p.pngCompression = clamp(pngCompression, 0, 9)
	}
	p.mu.Unlock()
}

// Workers reports the pool's worker count.
func (p *Pool) Workers() int { return p.workers }

// Quality reports the current encoder parameters. Used to carry settings
// over when the pool is rebuilt.
func (p *Pool) Quality() (jpegQuality, pngCompression int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jpegQuality, p.pngCompression
}

// Submit enqueues a job without ever blocking the caller. When the queue
// is full the oldest pending job is evicted first.
func (p *Pool) Submit(frame camera.Frame, path string) {
	job := Job{Frame: frame, Path: path}
	select {
	case p.jobs <- job:
		return
	default:
	}
	select {
	case old := <-p.jobs:
		log.Debug("save queue full, dropped oldest", "path", old.Path)
	default:
	}
	select {
	case p.jobs <- job:
	default:
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case job := <-p.jobs:
			path, err := p.encodeWrite(job)
			if err != nil {
				log.Error("save failed", "worker", id, "path", job.Path, "err", err)
				continue
			}
			if p.notify != nil {
				select {
				case p.notify <- Event{Path: path, At: time.Now()}:
				default:
				}
			}
		}
	}
}

// encodeWrite encodes per target extension and writes the file, creating
// the destination directory when absent. Unknown extensions take the PNG
// path and gain a .png suffix.
func (p *Pool) encodeWrite(job Job) (string, error) {
	p.mu.Lock()
	jpegQuality := p.jpegQuality
	pngCompression := p.pngCompression
	p.mu.Unlock()

	mat, err := camera.ToMat(job.Frame)
	if err != nil {
		return "", err
	}
	defer mat.Close()

	path := job.Path
	var fileExt gocv.FileExt
	var params []int
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		fileExt = gocv.JPEGFileExt
		params = []int{gocv.IMWriteJpegQuality, jpegQuality}
	case ".png":
		fileExt = gocv.PNGFileExt
		params = []int{gocv.IMWritePngCompression, pngCompression}
	default:
		fileExt = gocv.PNGFileExt
		params = []int{gocv.IMWritePngCompression, pngCompression}
		path += ".png"
	}

	buf, err := gocv.IMEncodeWithParams(fileExt, mat, params)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	defer buf.Close()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, buf.GetBytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
