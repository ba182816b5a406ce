package realtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendDuringConcurrentCloseDoesNotPanic(t *testing.T) {
	c := newTestClient()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				c.Send([]byte(`{"event":"ping"}`))
			}
		}()
	}
	c.Close()
	c.Close()
	wg.Wait()

	require.False(t, c.Send([]byte(`{}`)))
}

func TestSendDropsWhenBufferFull(t *testing.T) {
	c := newTestClient()

	for i := 0; i < sendBuffer; i++ {
		require.True(t, c.Send([]byte(`{}`)))
	}
	require.False(t, c.Send([]byte(`{}`)))
}
