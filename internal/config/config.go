// Package config loads the rig daemon's YAML configuration with sane
// defaults and environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cropeye/rig/pkg/camera"
	"github.com/cropeye/rig/pkg/multispec"
	"github.com/cropeye/rig/pkg/route"
)

// PLC holds the modbus endpoint settings.
type PLC struct {
	Addr       string  `yaml:"addr"`
	SlaveID    int     `yaml:"slave_id"`
	TimeoutSec float64 `yaml:"timeout_sec"`
}

// Timeout returns the transaction timeout as a duration.
func (p PLC) Timeout() time.Duration {
	return time.Duration(p.TimeoutSec * float64(time.Second))
}

// Camera holds the RGB preview camera and save-pipeline settings.
type Camera struct {
	Keyword        string  `yaml:"keyword"`
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	SaveDir        string  `yaml:"save_dir"`
	SaveFormat     string  `yaml:"save_format"`
	JPEGQuality    int     `yaml:"jpeg_quality"`
	PNGCompression int     `yaml:"png_compression"`
	SaveWorkers    int     `yaml:"save_workers"`
	IntervalSec    float64 `yaml:"interval_sec"`
	PreviewQuality int     `yaml:"preview_quality"`
	PreviewWidth   int     `yaml:"preview_width"`
	PreviewHeight  int     `yaml:"preview_height"`
	Autofocus      *bool   `yaml:"autofocus"`
	FocusValue     int     `yaml:"focus_value"`
	FocusMax       int     `yaml:"focus_max"`
}

// FocusControls builds the capture controls for the preview camera.
func (c Camera) FocusControls() camera.Controls {
	return camera.Controls{
		Autofocus: c.Autofocus,
		Focus:     c.FocusValue,
		FocusMax:  c.FocusMax,
	}
}

// Interval returns the timed-capture cadence.
func (c Camera) Interval() time.Duration {
	return time.Duration(c.IntervalSec * float64(time.Second))
}

// Multispec holds the spectral array settings. An empty channel map means
// the channels are discovered from the MS602 defaults, and zeroed
// controls fall back to the MS602 factory settings.
type Multispec struct {
	JPEGQuality int                                 `yaml:"jpeg_quality"`
	Channels    map[string]multispec.ChannelConfig `yaml:"channels"`
	Controls    camera.Controls                     `yaml:"controls"`
}

// Bounds describes the gantry's workspace grid for route planning.
type Bounds struct {
	XMin float64 `yaml:"x_min" json:"x_min"`
	XMax float64 `yaml:"x_max" json:"x_max"`
	YMin float64 `yaml:"y_min" json:"y_min"`
	YMax float64 `yaml:"y_max" json:"y_max"`
	Cols int     `yaml:"cols" json:"cols"`
	Rows int     `yaml:"rows" json:"rows"`
}

// Uplink names the remote collector for save notifications. An empty
// URL disables the uplink.
type Uplink struct {
	URL string `yaml:"url"`
	Rig string `yaml:"rig"`
}

// Config is the full daemon configuration.
type Config struct {
	Listen    string        `yaml:"listen"`
	LogLevel  string        `yaml:"log_level"`
	PLC       PLC           `yaml:"plc"`
	Camera    Camera        `yaml:"camera"`
	Multispec Multispec     `yaml:"multispec"`
	Uplink    Uplink        `yaml:"uplink"`
	Bounds    Bounds        `yaml:"bounds"`
	Routes    []route.Route `yaml:"routes"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Listen:   ":5000",
		LogLevel: "info",
		PLC: PLC{
			Addr:       "192.168.1.88:502",
			SlaveID:    1,
			TimeoutSec: 2.0,
		},
		Camera: Camera{
			Keyword:        "FicVideo",
			Width:          1920,
			Height:         1080,
			SaveDir:        "camera_images",
			SaveFormat:     "jpg",
			JPEGQuality:    92,
			PNGCompression: 3,
			SaveWorkers:    2,
			IntervalSec:    1.0,
			PreviewQuality: 85,
			PreviewWidth:   960,
			PreviewHeight:  540,
			FocusValue:     50,
			FocusMax:       camera.DefaultFocusMax,
		},
		Multispec: Multispec{JPEGQuality: 80},
		Bounds: Bounds{
			XMin: 0, XMax: 2000,
			YMin: 0, YMax: 2000,
			Cols: 10, Rows: 10,
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is
// not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults apply
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if addr := os.Getenv("RIG_LISTEN"); addr != "" {
		cfg.Listen = addr
	}
	if addr := os.Getenv("RIG_PLC_ADDR"); addr != "" {
		cfg.PLC.Addr = addr
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Camera.SaveFormat != "jpg" && c.Camera.SaveFormat != "png" {
		c.Camera.SaveFormat = "jpg"
	}
	c.Camera.JPEGQuality = clamp(c.Camera.JPEGQuality, 10, 100)
	c.Camera.PNGCompression = clamp(c.Camera.PNGCompression, 0, 9)
	if c.Camera.SaveWorkers < 1 {
		c.Camera.SaveWorkers = 1
	}
	if c.Camera.IntervalSec < 0.05 {
		c.Camera.IntervalSec = 0.05
	}
	c.Camera.PreviewQuality = clamp(c.Camera.PreviewQuality, 10, 100)
	if c.Camera.PreviewWidth < 1 {
		c.Camera.PreviewWidth = 960
	}
	if c.Camera.PreviewHeight < 1 {
		c.Camera.PreviewHeight = 540
	}
	if c.Camera.FocusMax < 1 {
		c.Camera.FocusMax = camera.DefaultFocusMax
	}
	c.Camera.FocusValue = clamp(c.Camera.FocusValue, 0, c.Camera.FocusMax)
	if c.Camera.Autofocus == nil {
		on := true
		c.Camera.Autofocus = &on
	}
	c.Multispec.JPEGQuality = clamp(c.Multispec.JPEGQuality, 10, 100)
	if len(c.Multispec.Channels) == 0 {
		c.Multispec.Channels = multispec.DefaultChannels()
	}
	if c.Multispec.Controls == (camera.Controls{}) {
		c.Multispec.Controls = camera.SpectralControls()
	}
}

// RouteByName returns the configured route with the given name.
func (c *Config) RouteByName(name string) (route.Route, bool) {
	for _, r := range c.Routes {
		if r.Name == name {
			return r, true
		}
	}
	return route.Route{}, false
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
