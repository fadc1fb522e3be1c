// Package camera owns per-device frame acquisition: one background session
// per physical camera, with failure detection and reconnection.
package camera

import "time"

// Frame is one acquired image. The acquiring session owns its buffer until
// it is handed out as a copy; consumers never mutate it.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	Channels   int
	CapturedAt time.Time
}

// Clone returns a deep copy safe to hand to another goroutine.
func (f Frame) Clone() Frame {
	c := f
	c.Data = append([]byte(nil), f.Data...)
	return c
}

// Timestamp renders the capture time as a filename-safe stamp with
// millisecond precision, e.g. 20260831_142530_123.
func (f Frame) Timestamp() string {
	t := f.CapturedAt
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format("20060102_150405") + "_" + msPart(t)
}

func msPart(t time.Time) string {
	ms := t.Nanosecond() / int(time.Millisecond)
	return string([]byte{'0' + byte(ms/100), '0' + byte(ms/10%10), '0' + byte(ms%10)})
}
