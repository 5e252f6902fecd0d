// File: internal/humanoid/typist.go
package humanoid

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/aduanet/aduanet-cli/internal/config"
)

// Typist produces per-character keystrokes with humanlike timing. Each
// inter-key delay is drawn from a normal distribution centered between the
// configured bounds and clamped to them, plus a short dwell after every key.
//
// Unlike a full behavioral simulator, the Typist never mistypes: injecting a
// wrong character into a credential field risks a portal-side lockout.
type Typist struct {
	delayMin time.Duration
	delayMax time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTypist builds a Typist from the configured delay bounds.
func NewTypist(cfg config.TypingConfig) *Typist {
	return newTypist(cfg, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func newTypist(cfg config.TypingConfig, rng *rand.Rand) *Typist {
	return &Typist{
		delayMin: time.Duration(cfg.DelayMinMs) * time.Millisecond,
		delayMax: time.Duration(cfg.DelayMaxMs) * time.Millisecond,
		rng:      rng,
	}
}

// Type returns an action that focuses the element matching selector and
// sends text one rune at a time through real key events.
func (t *Typist) Type(selector, text string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		focus := chromedp.Tasks{
			chromedp.WaitVisible(selector, chromedp.ByQuery),
			chromedp.Click(selector, chromedp.ByQuery),
		}
		if err := focus.Do(ctx); err != nil {
			return fmt.Errorf("typist: failed to focus '%s': %w", selector, err)
		}

		for _, r := range text {
			if err := chromedp.Sleep(t.nextDelay()).Do(ctx); err != nil {
				return err
			}
			// Target the focused element so multi-field forms keep focus state.
			err := chromedp.SendKeys("document.activeElement", string(r), chromedp.ByJSPath).Do(ctx)
			if err != nil {
				return fmt.Errorf("typist: failed to send key: %w", err)
			}
			if err := chromedp.Sleep(t.dwell()).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// Budget returns a generous upper bound on how long typing n characters
// can take, for callers sizing operation deadlines.
func (t *Typist) Budget(n int) time.Duration {
	perKey := 2*t.delayMax + 20*time.Millisecond
	return time.Duration(n) * perKey
}

// nextDelay draws the inter-key flight time.
func (t *Typist) nextDelay() time.Duration {
	t.mu.Lock()
	norm := t.rng.NormFloat64()
	t.mu.Unlock()

	mean := float64(t.delayMin+t.delayMax) / 2
	stdDev := float64(t.delayMax-t.delayMin) / 4
	return clampDuration(time.Duration(norm*stdDev+mean), t.delayMin, t.delayMax)
}

// dwell is the simulated key-hold time, a fraction of the flight window.
func (t *Typist) dwell() time.Duration {
	t.mu.Lock()
	f := t.rng.Float64()
	t.mu.Unlock()

	base := t.delayMin / 2
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	return base + time.Duration(f*float64(base))
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
