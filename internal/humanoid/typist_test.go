// File: internal/humanoid/typist_test.go
package humanoid

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aduanet/aduanet-cli/internal/config"
)

func TestNextDelayStaysWithinBounds(t *testing.T) {
	cfg := config.TypingConfig{DelayMinMs: 40, DelayMaxMs: 120}
	typist := newTypist(cfg, rand.New(rand.NewSource(1)))

	min := 40 * time.Millisecond
	max := 120 * time.Millisecond
	for i := 0; i < 10_000; i++ {
		d := typist.nextDelay()
		assert.GreaterOrEqual(t, d, min)
		assert.LessOrEqual(t, d, max)
	}
}

func TestNextDelayJitters(t *testing.T) {
	cfg := config.TypingConfig{DelayMinMs: 40, DelayMaxMs: 120}
	typist := newTypist(cfg, rand.New(rand.NewSource(7)))

	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		seen[typist.nextDelay()] = true
	}
	// A fixed-delay typist would be trivially fingerprintable.
	assert.Greater(t, len(seen), 10)
}

func TestDwellIsPositiveEvenWithZeroMin(t *testing.T) {
	cfg := config.TypingConfig{DelayMinMs: 0, DelayMaxMs: 50}
	typist := newTypist(cfg, rand.New(rand.NewSource(3)))

	for i := 0; i < 100; i++ {
		assert.Greater(t, typist.dwell(), time.Duration(0))
	}
}

func TestClampDuration(t *testing.T) {
	min, max := 10*time.Millisecond, 20*time.Millisecond
	assert.Equal(t, min, clampDuration(5*time.Millisecond, min, max))
	assert.Equal(t, max, clampDuration(25*time.Millisecond, min, max))
	assert.Equal(t, 15*time.Millisecond, clampDuration(15*time.Millisecond, min, max))
}
