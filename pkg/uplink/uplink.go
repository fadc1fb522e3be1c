// Package uplink pushes capture notifications to a remote collector so
// field sessions can be tracked without polling the rig.
package uplink

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cropeye/rig/internal/httpc"
	"github.com/cropeye/rig/internal/log"
	"github.com/cropeye/rig/pkg/saver"
)

// Notice is the JSON body posted for each saved image.
type Notice struct {
	Path string    `json:"path"`
	At   time.Time `json:"at"`
	Rig  string    `json:"rig,omitempty"`
}

// Uplink drains save events and posts one notice per event. Delivery is
// best effort: the image is already on disk, so a failed post is logged
// and dropped rather than retried.
type Uplink struct {
	url    string
	rig    string
	client *http.Client
	events <-chan saver.Event

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New wires an event channel to a collector endpoint. rig names this
// machine in the notices and may be empty.
func New(url, rig string, events <-chan saver.Event) *Uplink {
	return &Uplink{
		url:    url,
		rig:    rig,
		client: httpc.Client,
		events: events,
		stop:   make(chan struct{}),
	}
}

// Start launches the delivery goroutine.
func (u *Uplink) Start() {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		for {
			select {
			case <-u.stop:
				return
			case ev := <-u.events:
				u.post(Notice{Path: ev.Path, At: ev.At, Rig: u.rig})
			}
		}
	}()
}

// Stop ends delivery. Events still queued are abandoned.
func (u *Uplink) Stop() {
	u.stopOnce.Do(func() { close(u.stop) })
	u.wg.Wait()
}

func (u *Uplink) post(n Notice) {
	body, err := json.Marshal(n)
	if err != nil {
		log.Error("uplink encode failed", "err", err)
		return
	}
	resp, err := u.client.Post(u.url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Warn("uplink post failed", "url", u.url, "err", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Warn("uplink rejected notice", "url", u.url, "status", resp.StatusCode)
	}
}
