package daemonizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewYielder_DefaultInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		y := NewYielder(interval)
		assert.Equal(t, DefaultFairnessInterval, y.interval)
	}
	y := NewYielder(time.Millisecond)
	assert.Equal(t, time.Millisecond, y.interval)
}

func TestYielder_NoYieldWithinInterval(t *testing.T) {
	y := NewYielder(time.Hour)
	for i := 0; i < 1000; i++ {
		assert.False(t, y.MaybeYield())
	}
}

func TestYielder_YieldsAfterInterval(t *testing.T) {
	y := NewYielder(10 * time.Millisecond)
	assert.False(t, y.MaybeYield())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, y.MaybeYield())

	// The gate resets after a yield.
	assert.False(t, y.MaybeYield())
	time.Sleep(20 * time.Millisecond)
	assert.True(t, y.MaybeYield())
}
