// File: internal/fallback/bridge_test.go
package fallback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aduanet/aduanet-cli/internal/config"
	"github.com/aduanet/aduanet-cli/internal/session"
)

type manualPage struct {
	ready     bool
	navigated string
	closed    bool

	// Optional gate: when set, EvaluateBool announces entry and blocks
	// until released, so tests can hold callers inside the probe.
	evalEntered chan struct{}
	evalProceed chan struct{}
}

func (p *manualPage) Navigate(_ context.Context, url string) error { p.navigated = url; return nil }
func (p *manualPage) Click(context.Context, string) error          { return nil }
func (p *manualPage) TypeText(context.Context, string, string) error { return nil }
func (p *manualPage) SetFieldByName(context.Context, string, string, string) error { return nil }
func (p *manualPage) SubmitForm(context.Context, string) error     { return nil }
func (p *manualPage) EvaluateBool(context.Context, string) (bool, error) {
	if p.evalEntered != nil {
		p.evalEntered <- struct{}{}
		<-p.evalProceed
	}
	return p.ready, nil
}
func (p *manualPage) Exists(context.Context, string) (bool, error) { return false, nil }
func (p *manualPage) HTML(context.Context) (string, error)         { return "", nil }
func (p *manualPage) URL(context.Context) (string, error)          { return "", nil }
func (p *manualPage) Screenshot(context.Context) ([]byte, error)   { return nil, nil }
func (p *manualPage) TraceHAR(context.Context) ([]byte, error)     { return nil, nil }
func (p *manualPage) Close() error                                 { p.closed = true; return nil }

type manualBrowser struct {
	page *manualPage
}

func (b *manualBrowser) NewPage(context.Context) (session.Page, error) { return b.page, nil }

func (b *manualBrowser) ExpectPopup(context.Context, session.Page, time.Duration, func(context.Context) error) (session.Page, error) {
	panic("not used in manual fallback")
}

func manualPortal() config.PortalConfig {
	p := config.NewDefaultConfig().Portal
	p.LoginURL = "https://portal.example/login"
	return p
}

func TestBridgeStartOpensLoginPage(t *testing.T) {
	page := &manualPage{}
	b := NewBridge(&manualBrowser{page: page}, manualPortal(), nil, zap.NewNop())

	handoff, err := b.StartHandoff(context.Background(), "acme")
	require.NoError(t, err)
	assert.NotEmpty(t, handoff.ResumeToken)
	assert.Equal(t, "https://portal.example/login", handoff.LoginURL)
	assert.Equal(t, "https://portal.example/login", page.navigated)

	state, ok := b.State(handoff.ResumeToken)
	require.True(t, ok)
	assert.Equal(t, StateStarted, state)
}

func TestBridgeCompleteRequiresReadiness(t *testing.T) {
	page := &manualPage{ready: false}
	b := NewBridge(&manualBrowser{page: page}, manualPortal(), nil, zap.NewNop())
	token, err := b.Start(context.Background(), "acme")
	require.NoError(t, err)

	// Dashboard not ready: the claim is rejected, the session stays live.
	_, err = b.Complete(context.Background(), token)
	assert.ErrorIs(t, err, ErrNotReadyYet)
	state, ok := b.State(token)
	require.True(t, ok)
	assert.Equal(t, StateCompletionRequested, state)

	// The operator finishes the login; completion now succeeds.
	page.ready = true
	got, err := b.Complete(context.Background(), token)
	require.NoError(t, err)
	assert.Same(t, session.Page(page), got)

	// Token is spent.
	_, err = b.Complete(context.Background(), token)
	assert.ErrorIs(t, err, ErrSettled)
	state, ok = b.State(token)
	require.True(t, ok)
	assert.Equal(t, StateCompleted, state)
}

func TestBridgeCompleteConcurrentSpendsTokenOnce(t *testing.T) {
	page := &manualPage{
		ready:       true,
		evalEntered: make(chan struct{}, 2),
		evalProceed: make(chan struct{}),
	}
	b := NewBridge(&manualBrowser{page: page}, manualPortal(), nil, zap.NewNop())
	token, err := b.Start(context.Background(), "acme")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted []session.Page
		settled int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := b.Complete(context.Background(), token)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted = append(granted, got)
			case errors.Is(err, ErrSettled):
				settled++
			default:
				t.Errorf("unexpected completion error: %v", err)
			}
		}()
	}

	// Both callers are past the settled check and inside the readiness
	// probe; release them together.
	<-page.evalEntered
	<-page.evalEntered
	close(page.evalProceed)
	wg.Wait()

	assert.Len(t, granted, 1)
	assert.Equal(t, 1, settled)

	state, ok := b.State(token)
	require.True(t, ok)
	assert.Equal(t, StateCompleted, state)
}

func TestBridgeAbandon(t *testing.T) {
	page := &manualPage{}
	b := NewBridge(&manualBrowser{page: page}, manualPortal(), nil, zap.NewNop())
	token, err := b.Start(context.Background(), "acme")
	require.NoError(t, err)

	require.NoError(t, b.Abandon(context.Background(), token))
	assert.True(t, page.closed)

	assert.ErrorIs(t, b.Abandon(context.Background(), token), ErrSettled)
	_, err = b.Complete(context.Background(), token)
	assert.ErrorIs(t, err, ErrSettled)
}

func TestBridgeUnknownToken(t *testing.T) {
	b := NewBridge(&manualBrowser{page: &manualPage{}}, manualPortal(), nil, zap.NewNop())
	_, err := b.Complete(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownToken)
}
