package camera

import (
	"fmt"
	"sync"
)

// DefaultFocusMax is the top of the focus range on the rig's RGB camera.
const DefaultFocusMax = 127

// Controls holds the tunable capture parameters applied when a device is
// opened. Zero values mean "leave the driver default alone".
type Controls struct {
	// AutoExposure selects the driver AE mode. V4L2 maps 1 to manual
	// and 3 to aperture-priority auto.
	AutoExposure float64 `json:"auto_exposure"`

	// Exposure is the manual exposure setting, only honored when
	// AutoExposure selects manual mode.
	Exposure float64 `json:"exposure"`

	// Gain is the analogue sensor gain.
	Gain float64 `json:"gain"`

	// BufferSize caps the driver-side frame queue. 1 keeps snapshots
	// close to live.
	BufferSize int `json:"buffer_size"`

	// Trigger selects the sensor trigger mode. The MS602 abuses the
	// backlight control for this; 0 is continuous.
	Trigger float64 `json:"trigger"`

	// Autofocus toggles the driver's continuous autofocus. nil leaves
	// the driver default alone. When disabled, Focus is applied.
	Autofocus *bool `json:"autofocus,omitempty"`

	// Focus is the manual focus position, clamped to [0, FocusMax].
	// Only honored when Autofocus is off.
	Focus int `json:"focus"`

	// FocusMax is the device's focus range upper bound. 0 means
	// DefaultFocusMax.
	FocusMax int `json:"focus_max"`
}

// ClampFocus bounds v to the device's focus range.
func (c Controls) ClampFocus(v int) int {
	max := c.FocusMax
	if max <= 0 {
		max = DefaultFocusMax
	}
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// SpectralControls are the capture settings the MS602 narrow-band
// sensors ship with: continuous trigger, single-frame buffer, auto
// exposure and a fixed gain.
func SpectralControls() Controls {
	return Controls{
		AutoExposure: 3.0,
		Gain:         16,
		BufferSize:   1,
	}
}

// Validate reports out-of-range settings.
func (c Controls) Validate() error {
	if c.Gain < 0 || c.Gain > 64 {
		return fmt.Errorf("gain %.1f out of range [0, 64]", c.Gain)
	}
	if c.BufferSize < 0 || c.BufferSize > 10 {
		return fmt.Errorf("buffer size %d out of range [0, 10]", c.BufferSize)
	}
	if c.FocusMax < 0 {
		return fmt.Errorf("focus max %d is negative", c.FocusMax)
	}
	return nil
}

// ControlsStore holds capture controls shared between the HTTP handlers
// and an opener. Openers read the store at every (re)open, so runtime
// changes survive a device reconnect.
type ControlsStore struct {
	mu sync.Mutex
	c  Controls
}

// NewControlsStore seeds a store with the given controls.
func NewControlsStore(c Controls) *ControlsStore {
	return &ControlsStore{c: c}
}

// Get returns a copy of the current controls.
func (s *ControlsStore) Get() Controls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}

// Update applies fn to the stored controls under the lock.
func (s *ControlsStore) Update(fn func(*Controls)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.c)
}
