package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	h := New("test")
	for i := 0; i < cap(h.broadcast)+10; i++ {
		h.Broadcast(NewBinaryMessage([]byte{byte(i)}))
	}
	assert.Equal(t, cap(h.broadcast), len(h.broadcast))
}

func TestHub_StopEndsRun(t *testing.T) {
	h := New("test")
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	h.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	// Stop is idempotent.
	h.Stop()
}
