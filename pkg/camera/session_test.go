package camera

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	read   func() (Frame, bool)
	reads  atomic.Int64
	closed atomic.Bool
}

func (d *fakeDevice) Read() (Frame, bool) {
	d.reads.Add(1)
	return d.read()
}

func (d *fakeDevice) Close() error {
	d.closed.Store(true)
	return nil
}

type countingResolver struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingResolver) Resolve(keyword string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return fmt.Sprintf("/dev/video%d", r.calls-1), nil
}

func (r *countingResolver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func solidFrame(w, h int, fill byte) Frame {
	data := make([]byte, w*h*3)
	for i := range data {
		data[i] = fill
	}
	return Frame{Data: data, Width: w, Height: h, Channels: 3, CapturedAt: time.Now()}
}

func fastPolicy() ReconnectPolicy {
	return ReconnectPolicy{Threshold: 10, RetryDelay: time.Millisecond, ReopenBackoff: time.Millisecond}
}

func TestOpen_ResolveFailureIsFatal(t *testing.T) {
	resolver := &countingResolver{err: errors.New("no such device")}
	_, err := Open(SessionConfig{Keyword: "FicVideo"}, resolver, func(string, int, int) (Device, error) {
		t.Fatal("opener must not be called when resolve fails")
		return nil, nil
	})
	require.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestOpen_OpenFailureIsFatal(t *testing.T) {
	resolver := &countingResolver{}
	_, err := Open(SessionConfig{Keyword: "FicVideo"}, resolver, func(string, int, int) (Device, error) {
		return nil, errors.New("busy")
	})
	require.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestSession_SnapshotIsACopy(t *testing.T) {
	dev := &fakeDevice{}
	dev.read = func() (Frame, bool) { return solidFrame(4, 2, 7), true }
	resolver := &countingResolver{}

	s, err := Open(SessionConfig{Keyword: "cam", Policy: fastPolicy()}, resolver,
		func(string, int, int) (Device, error) { return dev, nil })
	require.NoError(t, err)
	defer s.Stop()

	waitSnapshot(t, s)
	a := s.Snapshot()
	require.NotNil(t, a)
	a.Data[0] = 99

	b := s.Snapshot()
	require.NotNil(t, b)
	assert.EqualValues(t, 7, b.Data[0], "mutating one snapshot must not leak into another")
}

func TestSession_ReconnectAfterThreshold(t *testing.T) {
	resolver := &countingResolver{}

	first := &fakeDevice{}
	first.read = func() (Frame, bool) { return Frame{}, false }
	second := &fakeDevice{}
	second.read = func() (Frame, bool) { return solidFrame(2, 2, 1), true }

	var opens atomic.Int64
	opener := func(string, int, int) (Device, error) {
		if opens.Add(1) == 1 {
			return first, nil
		}
		return second, nil
	}

	s, err := Open(SessionConfig{Keyword: "cam", Policy: fastPolicy()}, resolver, opener)
	require.NoError(t, err)
	defer s.Stop()

	waitSnapshot(t, s)

	// Exactly 10 failed reads on the first device, then one reconnect.
	assert.EqualValues(t, 10, first.reads.Load(), "reconnect must fire after the 10th consecutive failure")
	assert.True(t, first.closed.Load(), "old handle released on reconnect")
	assert.EqualValues(t, 2, opens.Load())
	assert.Equal(t, 2, resolver.count(), "one resolve at open, one at reconnect")
}

func TestSession_ReopenFailureClearsFrame(t *testing.T) {
	resolver := &countingResolver{}

	var opens atomic.Int64
	healthy := true
	var mu sync.Mutex
	dev := &fakeDevice{}
	dev.read = func() (Frame, bool) {
		mu.Lock()
		defer mu.Unlock()
		if healthy {
			return solidFrame(2, 2, 3), true
		}
		return Frame{}, false
	}
	opener := func(string, int, int) (Device, error) {
		if opens.Add(1) == 1 {
			return dev, nil
		}
		return nil, errors.New("still gone")
	}

	s, err := Open(SessionConfig{Keyword: "cam", Policy: fastPolicy()}, resolver, opener)
	require.NoError(t, err)
	defer s.Stop()

	waitSnapshot(t, s)

	mu.Lock()
	healthy = false
	mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Snapshot() == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("snapshot not cleared after reconnect failed")
}

func TestSession_SnapshotNeverTorn(t *testing.T) {
	resolver := &countingResolver{}

	var n atomic.Int64
	dev := &fakeDevice{}
	dev.read = func() (Frame, bool) {
		// Alternate between two self-consistent shapes.
		if n.Add(1)%2 == 0 {
			return solidFrame(8, 4, 8), true
		}
		return solidFrame(2, 1, 2), true
	}

	s, err := Open(SessionConfig{Keyword: "cam", Policy: fastPolicy()}, resolver,
		func(string, int, int) (Device, error) { return dev, nil })
	require.NoError(t, err)
	defer s.Stop()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				f := s.Snapshot()
				if f == nil {
					continue
				}
				if len(f.Data) != f.Width*f.Height*f.Channels {
					t.Errorf("torn frame: %d bytes for %dx%dx%d", len(f.Data), f.Width, f.Height, f.Channels)
					return
				}
				want := byte(f.Width)
				for _, b := range f.Data {
					if b != want {
						t.Errorf("torn frame payload: got %d, want %d", b, want)
						return
					}
				}
			}
		}()
	}
	time.Sleep(200 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestSession_StopReleasesDevice(t *testing.T) {
	resolver := &countingResolver{}
	dev := &fakeDevice{}
	dev.read = func() (Frame, bool) { return solidFrame(2, 2, 5), true }

	s, err := Open(SessionConfig{Keyword: "cam", Policy: fastPolicy()}, resolver,
		func(string, int, int) (Device, error) { return dev, nil })
	require.NoError(t, err)

	waitSnapshot(t, s)
	s.Stop()
	assert.True(t, dev.closed.Load())
	// Stop twice is safe.
	s.Stop()
}

func TestSession_RefreshReopensDevice(t *testing.T) {
	resolver := &countingResolver{}

	var opens atomic.Int64
	newDevice := func() *fakeDevice {
		dev := &fakeDevice{}
		dev.read = func() (Frame, bool) { return solidFrame(2, 2, 2), true }
		return dev
	}
	first := newDevice()
	second := newDevice()
	opener := func(string, int, int) (Device, error) {
		if opens.Add(1) == 1 {
			return first, nil
		}
		return second, nil
	}

	s, err := Open(SessionConfig{Keyword: "cam", Policy: fastPolicy()}, resolver, opener)
	require.NoError(t, err)
	defer s.Stop()

	waitSnapshot(t, s)
	s.Refresh()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if opens.Load() >= 2 && second.reads.Load() > 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	assert.EqualValues(t, 2, opens.Load(), "refresh must reopen the device")
	assert.True(t, first.closed.Load(), "old handle released on refresh")
	assert.Equal(t, 2, resolver.count())
	waitSnapshot(t, s)
}

func waitSnapshot(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Snapshot() != nil {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("no snapshot before deadline")
}
