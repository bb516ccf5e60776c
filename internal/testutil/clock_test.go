package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFakeClock_StartsAtStart(t *testing.T) {
	clock := NewFakeClock(start)
	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now(), "reading does not advance")
}

func TestFakeClock_Advance(t *testing.T) {
	clock := NewFakeClock(start)

	got := clock.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), got)
	assert.Equal(t, got, clock.Now())
}

func TestFakeClock_Set(t *testing.T) {
	clock := NewFakeClock(start)
	clock.Advance(time.Hour)

	clock.Set(start)
	assert.Equal(t, start, clock.Now())
}

func TestFakeClock_ConcurrentAdvance(t *testing.T) {
	clock := NewFakeClock(start)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
		}()
	}
	wg.Wait()

	require.Equal(t, start.Add(100*time.Second), clock.Now())
}
