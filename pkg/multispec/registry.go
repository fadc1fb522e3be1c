// Package multispec orchestrates the narrow-band camera array: one
// acquisition session per spectral channel, rebuilt whenever the device
// topology changes.
package multispec

import (
	"sort"
	"sync"

	"github.com/cropeye/rig/internal/log"
	"github.com/cropeye/rig/pkg/camera"
)

// BandOrder is the presentation order for channel listings and mosaics.
var BandOrder = []string{"480", "550", "660", "720", "840", "rgb"}

// BandMapping ties MS602 device names to their spectral band labels.
var BandMapping = map[string]string{
	"YeRui-MS602-1": "480",
	"YeRui-MS602-2": "550",
	"YeRui-MS602-3": "660",
	"YeRui-MS602-4": "720",
	"YeRui-MS602-5": "840",
	"YeRui-MS602-6": "rgb",
}

// ChannelConfig describes one spectral channel's device and resolution.
type ChannelConfig struct {
	Keyword string `yaml:"keyword" json:"keyword"`
	Width   int    `yaml:"width" json:"width"`
	Height  int    `yaml:"height" json:"height"`
}

// DefaultChannels returns the standard MS602 channel set: five narrow
// bands at 1280x800 and the RGB sensor at 1600x1200.
func DefaultChannels() map[string]ChannelConfig {
	channels := make(map[string]ChannelConfig, len(BandMapping))
	for device, band := range BandMapping {
		cfg := ChannelConfig{Keyword: device, Width: 1280, Height: 800}
		if band == "rgb" {
			cfg.Width, cfg.Height = 1600, 1200
		}
		channels[band] = cfg
	}
	return channels
}

// Registry owns one camera session per channel.
type Registry struct {
	resolver camera.Resolver
	open     camera.OpenFunc
	policy   camera.ReconnectPolicy

	mu       sync.Mutex
	sessions map[string]*camera.Session
}

// NewRegistry builds sessions for the given mapping. Channels whose
// device cannot be opened are logged and skipped; a later Rebuild picks
// them up once the hardware is back.
func NewRegistry(mapping map[string]ChannelConfig, resolver camera.Resolver, open camera.OpenFunc) *Registry {
	r := &Registry{
		resolver: resolver,
		open:     open,
		policy:   camera.DefaultReconnectPolicy(),
		sessions: make(map[string]*camera.Session),
	}
	r.build(mapping)
	return r
}

func (r *Registry) build(mapping map[string]ChannelConfig) {
	for name, cfg := range mapping {
		sess, err := camera.Open(camera.SessionConfig{
			Name:    name,
			Keyword: cfg.Keyword,
			Width:   cfg.Width,
			Height:  cfg.Height,
			Policy:  r.policy,
		}, r.resolver, r.open)
		if err != nil {
			log.Warn("channel unavailable", "channel", name, "keyword", cfg.Keyword, "err", err)
			continue
		}
		r.sessions[name] = sess
		log.Info("channel online", "channel", name, "keyword", cfg.Keyword)
	}
}

// ListChannels returns the live channel names in band order, then any
// extras sorted.
func (r *Registry) ListChannels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	seen := make(map[string]bool)
	for _, band := range BandOrder {
		if _, ok := r.sessions[band]; ok {
			out = append(out, band)
			seen[band] = true
		}
	}
	var extras []string
	for name := range r.sessions {
		if !seen[name] {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	return append(out, extras...)
}

// Snapshot returns the latest frame for a channel, or nil when the
// channel is unknown or has no frame yet.
func (r *Registry) Snapshot(channel string) *camera.Frame {
	r.mu.Lock()
	sess := r.sessions[channel]
	r.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Snapshot()
}

// Rebuild stops every session and reconstructs from the new mapping.
// Used when the device topology changes.
func (r *Registry) Rebuild(mapping map[string]ChannelConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, sess := range r.sessions {
		sess.Stop()
		delete(r.sessions, name)
	}
	r.build(mapping)
}

// Stop releases every session.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, sess := range r.sessions {
		sess.Stop()
		delete(r.sessions, name)
	}
}
