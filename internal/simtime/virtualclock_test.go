package simtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVirtualClock_FiresInDeadlineOrder(t *testing.T) {
	clock := NewVirtualClock()
	var fired []string

	first := clock.NewHandle()
	second := clock.NewHandle()
	first.Reset(5*time.Second, func() { fired = append(fired, "first") })
	second.Reset(2*time.Second, func() { fired = append(fired, "second") })

	clock.Advance(10 * time.Second)
	assert.Equal(t, []string{"second", "first"}, fired)
}

func TestVirtualClock_CancelPreventsFiring(t *testing.T) {
	clock := NewVirtualClock()
	fired := false

	h := clock.NewHandle()
	cancel := h.Reset(time.Second, func() { fired = true })
	cancel()

	clock.Advance(5 * time.Second)
	assert.False(t, fired)
}

func TestVirtualClock_ResetReplacesPendingCallback(t *testing.T) {
	clock := NewVirtualClock()
	fired := 0

	h := clock.NewHandle()
	h.Reset(time.Second, func() { fired++ })
	h.Reset(2*time.Second, func() { fired++ })

	clock.Advance(time.Second)
	assert.Equal(t, 0, fired)

	clock.Advance(time.Second)
	assert.Equal(t, 1, fired)
}

func TestVirtualClock_AdvanceOnlyFiresDueCallbacks(t *testing.T) {
	clock := NewVirtualClock()
	fired := false

	h := clock.NewHandle()
	h.Reset(10*time.Second, func() { fired = true })

	clock.Advance(time.Second)
	assert.False(t, fired)
}
