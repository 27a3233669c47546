package clock_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/as2-portal-session/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestFakeNowMovesOnlyOnAdvance(t *testing.T) {
	c := clock.Fake(start)
	assert.True(t, c.Now().Equal(start))

	c.Advance(90 * time.Second)
	assert.True(t, c.Now().Equal(start.Add(90*time.Second)))
}

func TestFakeAfter(t *testing.T) {
	c := clock.Fake(start)
	ch := c.After(time.Minute)
	assert.Equal(t, 1, c.Pending())

	select {
	case <-ch:
		t.Fatal("fired before deadline")
	default:
	}

	c.Advance(time.Minute)
	select {
	case got := <-ch:
		assert.True(t, got.Equal(start.Add(time.Minute)))
	default:
		t.Fatal("did not fire at deadline")
	}
	assert.Equal(t, 0, c.Pending())
}

func TestFakeTickerFiresEachInterval(t *testing.T) {
	c := clock.Fake(start)
	ticker := c.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for i := 1; i <= 3; i++ {
		c.Advance(10 * time.Minute)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d missing", i)
		}
	}
}

func TestFakeTickerDropsTicksForSlowReaders(t *testing.T) {
	c := clock.Fake(start)
	ticker := c.NewTicker(time.Minute)
	defer ticker.Stop()

	c.Advance(5 * time.Minute)
	require.Len(t, ticker.C, 1)
	<-ticker.C
	assert.Len(t, ticker.C, 0)
}

func TestFakeTickerStop(t *testing.T) {
	c := clock.Fake(start)
	ticker := c.NewTicker(time.Minute)
	ticker.Stop()
	assert.Equal(t, 0, c.Pending())

	c.Advance(time.Hour)
	assert.Len(t, ticker.C, 0)

	ticker.Reset(time.Minute)
	c.Advance(time.Minute)
	assert.Len(t, ticker.C, 1)
}

func TestWaitForWaiters(t *testing.T) {
	c := clock.Fake(start)
	registered := make(chan struct{})
	go func() {
		<-c.After(time.Second)
		close(registered)
	}()

	c.WaitForWaiters(1)
	c.Advance(time.Second)

	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatal("waiter never released")
	}
}
