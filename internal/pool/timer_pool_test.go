package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetTimer_FiresAfterDuration(t *testing.T) {
	begin := time.Now()
	timer := GetTimer(50 * time.Millisecond)
	defer PutTimer(timer)

	select {
	case <-timer.C:
		require.GreaterOrEqual(t, time.Since(begin), 45*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestPutTimer_ReusedTimerHasNoStaleTick(t *testing.T) {
	// Let a timer expire without reading its channel, then recycle it.
	timer := GetTimer(time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	PutTimer(timer)

	begin := time.Now()
	reused := GetTimer(100 * time.Millisecond)
	defer PutTimer(reused)

	<-reused.C
	require.GreaterOrEqual(t, time.Since(begin), 90*time.Millisecond,
		"a recycled timer must not deliver the previous expiry")
}

func TestTimerPool_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timer := GetTimer(5 * time.Millisecond)
			defer PutTimer(timer)
			<-timer.C
		}()
	}
	wg.Wait()
}
