package camera

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// gocvDevice adapts a gocv capture handle to the Device interface. The
// scratch Mat is reused between reads; Frame buffers are copied out of it.
type gocvDevice struct {
	cap *gocv.VideoCapture
	mat gocv.Mat
}

func (d *gocvDevice) Read() (Frame, bool) {
	if !d.cap.Read(&d.mat) || d.mat.Empty() {
		return Frame{}, false
	}
	return Frame{
		Data:       d.mat.ToBytes(),
		Width:      d.mat.Cols(),
		Height:     d.mat.Rows(),
		Channels:   d.mat.Channels(),
		CapturedAt: time.Now(),
	}, true
}

func (d *gocvDevice) Close() error {
	d.mat.Close()
	return d.cap.Close()
}

// UVCOpener opens a UVC camera in MJPG mode at the requested resolution.
// Used for the RGB preview camera. When ctrl is non-nil its current
// controls are applied at every open, so focus changes made at runtime
// carry over a reconnect.
func UVCOpener(ctrl *ControlsStore) OpenFunc {
	return func(ref string, width, height int) (Device, error) {
		cap, err := gocv.OpenVideoCapture(ref)
		if err != nil {
			return nil, fmt.Errorf("open capture %q: %w", ref, err)
		}
		if !cap.IsOpened() {
			cap.Close()
			return nil, fmt.Errorf("capture %q did not open", ref)
		}
		cap.Set(gocv.VideoCaptureFOURCC, cap.ToCodec("MJPG"))
		cap.Set(gocv.VideoCaptureFrameWidth, float64(width))
		cap.Set(gocv.VideoCaptureFrameHeight, float64(height))
		if ctrl != nil {
			applyFocus(cap, ctrl.Get())
		}
		return &gocvDevice{cap: cap, mat: gocv.NewMat()}, nil
	}
}

// SpectralOpener opens a narrow-band sensor and applies the given capture
// controls. Pass SpectralControls() for the MS602 factory settings.
func SpectralOpener(ctrl Controls) OpenFunc {
	return func(ref string, width, height int) (Device, error) {
		if err := ctrl.Validate(); err != nil {
			return nil, fmt.Errorf("capture controls: %w", err)
		}
		cap, err := gocv.OpenVideoCapture(ref)
		if err != nil {
			return nil, fmt.Errorf("open capture %q: %w", ref, err)
		}
		if !cap.IsOpened() {
			cap.Close()
			return nil, fmt.Errorf("capture %q did not open", ref)
		}
		cap.Set(gocv.VideoCaptureFrameWidth, float64(width))
		cap.Set(gocv.VideoCaptureFrameHeight, float64(height))
		applyControls(cap, ctrl)
		return &gocvDevice{cap: cap, mat: gocv.NewMat()}, nil
	}
}

func applyControls(cap *gocv.VideoCapture, c Controls) {
	// The MS602 repurposes the backlight control as its trigger mode.
	cap.Set(gocv.VideoCaptureBacklight, c.Trigger)
	if c.BufferSize > 0 {
		cap.Set(gocv.VideoCaptureBufferSize, float64(c.BufferSize))
	}
	if c.AutoExposure > 0 {
		cap.Set(gocv.VideoCaptureAutoExposure, c.AutoExposure)
	}
	if c.AutoExposure == 1 && c.Exposure > 0 {
		cap.Set(gocv.VideoCaptureExposure, c.Exposure)
	}
	if c.Gain > 0 {
		cap.Set(gocv.VideoCaptureGain, c.Gain)
	}
	applyFocus(cap, c)
}

func applyFocus(cap *gocv.VideoCapture, c Controls) {
	if c.Autofocus == nil {
		return
	}
	if *c.Autofocus {
		cap.Set(gocv.VideoCaptureAutoFocus, 1)
		return
	}
	cap.Set(gocv.VideoCaptureAutoFocus, 0)
	cap.Set(gocv.VideoCaptureFocus, float64(c.ClampFocus(c.Focus)))
}
