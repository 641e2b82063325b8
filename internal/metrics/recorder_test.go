package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderSummarisesSeries(t *testing.T) {
	r := NewRecorder()
	for i := 1; i <= 100; i++ {
		r.Observe("step.echo", time.Duration(i)*time.Millisecond)
	}
	r.Observe("tier.high", 2*time.Second)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "step.echo", snap[0].Series)
	assert.Equal(t, "tier.high", snap[1].Series)

	echo := snap[0]
	assert.Equal(t, int64(100), echo.Count)
	assert.InDelta(t, float64(50*time.Millisecond), float64(echo.P50), float64(time.Millisecond))
	assert.InDelta(t, float64(100*time.Millisecond), float64(echo.Max), float64(time.Millisecond))
}

func TestRecorderClampsAndIgnoresEmptySeries(t *testing.T) {
	r := NewRecorder()
	r.Observe("", time.Second)
	r.Observe("pool.task", 0)
	r.Observe("pool.task", 3*time.Hour)

	_, ok := r.Lookup("")
	assert.False(t, ok)
	s, ok := r.Lookup("pool.task")
	require.True(t, ok)
	assert.Equal(t, int64(2), s.Count)
	assert.LessOrEqual(t, s.Max, time.Hour+10*time.Second)
}

func TestRecorderConcurrentObserve(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Observe("pool.task", time.Millisecond)
			}
		}()
	}
	wg.Wait()
	s, ok := r.Lookup("pool.task")
	require.True(t, ok)
	assert.Equal(t, int64(400), s.Count)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Observe("x", time.Second)
	assert.Nil(t, r.Snapshot())
}
