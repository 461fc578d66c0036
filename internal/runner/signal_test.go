package runner

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTerminationSignal_SetOnce(t *testing.T) {
	sig := NewTerminationSignal()
	require.False(t, sig.IsSet())

	sig.Set()
	require.True(t, sig.IsSet())

	// Setting again must not panic or reverse the state.
	sig.Set()
	require.True(t, sig.IsSet())
}

func TestTerminationSignal_Broadcast(t *testing.T) {
	sig := NewTerminationSignal()

	const observers = 10
	var wg sync.WaitGroup
	released := make(chan struct{}, observers)
	for i := 0; i < observers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-sig.Done():
				released <- struct{}{}
			case <-time.After(2 * time.Second):
			}
		}()
	}

	sig.Set()
	wg.Wait()
	require.Len(t, released, observers, "every observer must see the broadcast")
}
