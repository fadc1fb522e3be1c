package mjpeg

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePart(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{0xFF, 0xD8, 0xFF, 0xD9}

	require.NoError(t, WritePart(&buf, payload))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "--frame\r\n"))
	assert.Contains(t, out, "Content-Type: image/jpeg\r\n")
	assert.Contains(t, out, fmt.Sprintf("Content-Length: %d\r\n\r\n", len(payload)))
	assert.True(t, strings.HasSuffix(out, "\r\n"))
	assert.True(t, bytes.Contains(buf.Bytes(), payload))
}

func TestServe_StopEndsStream(t *testing.T) {
	var buf bytes.Buffer
	stop := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- Serve(&buf, func() ([]byte, bool) { return []byte("x"), true }, time.Millisecond, stop)
	}()

	time.Sleep(20 * time.Millisecond)
	close(stop)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after stop")
	}
	assert.Contains(t, buf.String(), "--frame")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("client gone") }

func TestServe_WriteErrorReturns(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)

	err := Serve(failingWriter{}, func() ([]byte, bool) { return []byte("x"), true }, time.Millisecond, stop)
	require.Error(t, err)
}

func TestServe_SkipsMissingFrames(t *testing.T) {
	var buf bytes.Buffer
	stop := make(chan struct{})
	done := make(chan error, 1)

	calls := 0
	go func() {
		done <- Serve(&buf, func() ([]byte, bool) {
			calls++
			return nil, false
		}, time.Millisecond, stop)
	}()

	time.Sleep(20 * time.Millisecond)
	close(stop)
	<-done
	assert.Zero(t, buf.Len(), "no parts written without frames")
	assert.Greater(t, calls, 0)
}
