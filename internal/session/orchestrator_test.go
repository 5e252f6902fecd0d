// File: internal/session/orchestrator_test.go
package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aduanet/aduanet-cli/internal/config"
)

const popupMarkup = `<html><body><form>
	<input type="hidden" name="csrf" value="tok-1">
	<input type="hidden" name="lang" value="ro">
	<input type="text" name="username">
	<input type="password" name="password">
</form></body></html>`

type harness struct {
	orch     *Orchestrator
	browser  *fakeBrowser
	recorder *fakeRecorder
	journal  *fakeJournal
	fallback *fakeFallback
}

func newHarness(t *testing.T, mutate func(*harness)) *harness {
	t.Helper()
	h := &harness{
		browser: &fakeBrowser{
			main:  &fakePage{url: "https://portal.example/login"},
			popup: &fakePage{markup: popupMarkup, readyAfter: 0, url: "https://portal.example/dashboard"},
		},
		recorder: &fakeRecorder{},
		journal:  &fakeJournal{},
	}
	if mutate != nil {
		mutate(h)
	}

	portal := testPortal()
	portal.PopupWait = 50 * time.Millisecond
	portal.ReadinessPoll = 5 * time.Millisecond
	portal.DashboardTimeout = 100 * time.Millisecond

	creds := staticCreds{creds: config.Credentials{Username: "operator", Password: "hunter2"}}
	opts := Options{
		Journal: h.journal,
		Limiter: rate.NewLimiter(rate.Inf, 1),
	}
	if h.fallback != nil {
		opts.Fallback = h.fallback
	}
	h.orch = NewOrchestrator(h.browser, creds, portal,
		func(string) Recorder { return h.recorder }, zap.NewNop(), opts)
	return h
}

func TestAcquireHappyPath(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.orch.Acquire(context.Background(), "acme")
	require.NoError(t, err)

	assert.Equal(t, StatusReady, res.Status)
	assert.Equal(t, ReasonNone, res.Reason)
	assert.Equal(t, "acme", res.Company)
	assert.NotEmpty(t, res.SessionID)
	require.NotNil(t, res.Dashboard)

	// Credential typing precedes payload replication precedes submit.
	calls := h.browser.popup.callLog()
	var order []string
	for _, c := range calls {
		order = append(order, strings.SplitN(c, ":", 2)[0])
	}
	assert.Equal(t, []string{"type", "type", "set", "set", "submit"}, order)

	// Full forward chain journaled.
	assert.Equal(t, []string{
		"Initializing->NavigatingToLogin",
		"NavigatingToLogin->AwaitingPopup",
		"AwaitingPopup->PopupOpened",
		"PopupOpened->ExtractingHiddenFields",
		"ExtractingHiddenFields->SubmittingCredentials",
		"SubmittingCredentials->AwaitingDashboard",
		"AwaitingDashboard->Ready",
	}, h.journal.transitions)
	assert.Equal(t, []string{"Ready/"}, h.journal.outcomes)

	// Caller owns the dashboard; closing it tears down the opener too.
	assert.False(t, h.browser.popup.closed)
	assert.False(t, h.browser.main.closed)
	require.NoError(t, res.Dashboard.Close())
	assert.True(t, h.browser.popup.closed)
	assert.True(t, h.browser.main.closed)
}

func TestAcquirePopupTimeout(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.browser.popupErr = ErrPopupTimeout
	})

	res, err := h.orch.Acquire(context.Background(), "acme")
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ReasonPopupTimeout, res.Reason)
	assert.Nil(t, res.Dashboard)
	assert.True(t, h.browser.main.closed)

	// Screenshot, HTML and trace captured plus the login-page step shot.
	kinds := map[ArtifactKind]int{}
	for _, a := range res.Diagnostics {
		kinds[a.Kind]++
	}
	assert.GreaterOrEqual(t, kinds[ArtifactScreenshot], 1)
	assert.GreaterOrEqual(t, kinds[ArtifactHTML], 1)
	assert.GreaterOrEqual(t, kinds[ArtifactTrace], 1)
}

func TestAcquireCredentialRejected(t *testing.T) {
	t.Run("via failure marker element", func(t *testing.T) {
		h := newHarness(t, func(h *harness) {
			h.browser.popup.readyAfter = -1
			h.browser.popup.exists = map[string]bool{"#login_error, .login_error": true}
		})

		res, err := h.orch.Acquire(context.Background(), "acme")
		require.Error(t, err)
		assert.Equal(t, StatusFailed, res.Status)
		assert.Equal(t, ReasonCredentialRejected, res.Reason)
		assert.True(t, h.browser.popup.closed)
	})

	t.Run("via error redirect", func(t *testing.T) {
		h := newHarness(t, func(h *harness) {
			h.browser.popup.readyAfter = -1
			h.browser.popup.url = "https://portal.example/login_error?code=3"
		})

		res, err := h.orch.Acquire(context.Background(), "acme")
		require.Error(t, err)
		assert.Equal(t, ReasonCredentialRejected, res.Reason)
	})
}

func TestAcquireDashboardTimeout(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.browser.popup.readyAfter = -1
	})

	res, err := h.orch.Acquire(context.Background(), "acme")
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ReasonDashboardLoadTimeout, res.Reason)
	assert.True(t, errors.Is(err, ErrDashboardLoadTimeout))
}

func TestAcquireElementNotFoundParksInFallback(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.browser.main.clickErr = ErrElementNotFound
		h.fallback = &fakeFallback{token: "resume-123"}
	})

	res, err := h.orch.Acquire(context.Background(), "acme")
	require.Error(t, err)
	assert.Equal(t, StatusManualFallbackPending, res.Status)
	assert.Equal(t, ReasonElementNotFound, res.Reason)
	assert.Equal(t, "resume-123", res.ResumeToken)
	assert.Equal(t, []string{"acme"}, h.fallback.started)
	assert.True(t, h.browser.main.closed)
}

func TestAcquireElementNotFoundWithoutFallback(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.browser.main.clickErr = ErrElementNotFound
	})

	res, err := h.orch.Acquire(context.Background(), "acme")
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ReasonElementNotFound, res.Reason)
	assert.Empty(t, res.ResumeToken)
}

func TestAcquireConfigurationError(t *testing.T) {
	portal := testPortal()
	journal := &fakeJournal{}
	browser := &fakeBrowser{main: &fakePage{}}
	creds := staticCreds{err: &config.ConfigurationError{Key: "companies.acme", Reason: "credentials missing"}}
	orch := NewOrchestrator(browser, creds, portal, nil, zap.NewNop(),
		Options{Journal: journal, Limiter: rate.NewLimiter(rate.Inf, 1)})

	res, err := orch.Acquire(context.Background(), "acme")
	require.Error(t, err)
	var cfgErr *config.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ReasonConfiguration, res.Reason)
	assert.Empty(t, browser.main.callLog(), "no navigation before credentials resolve")
}

func TestAcquireCanceledContext(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.orch.Acquire(ctx, "acme")
	require.Error(t, err)
	assert.Equal(t, ReasonCanceled, res.Reason)
}

func TestReasonFor(t *testing.T) {
	assert.Equal(t, ReasonPopupTimeout, reasonFor(ErrPopupTimeout, ReasonElementNotFound))
	assert.Equal(t, ReasonCanceled, reasonFor(context.DeadlineExceeded, ReasonPopupTimeout))
	assert.Equal(t, ReasonConfiguration, reasonFor(&config.ConfigurationError{Key: "k", Reason: "r"}, ReasonPopupTimeout))
	assert.Equal(t, ReasonNavigationTimeout, reasonFor(errors.New("other"), ReasonNavigationTimeout))
}
