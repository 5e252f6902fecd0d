// File: internal/session/orchestrator.go

// Package session implements the login session acquisition state machine:
// navigate, intercept the login popup, replicate the hidden-field payload,
// inject credentials with humanlike pacing, and wait for a usable dashboard.
// Every fatal path captures diagnostics before reporting.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aduanet/aduanet-cli/internal/config"
)

// CredentialSource resolves a company's portal credentials.
// *config.Config satisfies it.
type CredentialSource interface {
	Credentials(company string) (config.Credentials, error)
}

// FallbackStarter opens a manual human-in-the-loop login when automation
// cannot proceed. It returns a resume token the operator presents once the
// manual login is finished.
type FallbackStarter interface {
	Start(ctx context.Context, company string) (resumeToken string, err error)
}

// RecorderFactory builds a per-session diagnostics recorder.
type RecorderFactory func(sessionID string) Recorder

// Result is the terminal report of one acquisition attempt.
type Result struct {
	SessionID   string
	Company     string
	Status      Status
	Reason      Reason
	Diagnostics []ArtifactRef

	// ResumeToken is set only when Status is ManualFallbackPending.
	ResumeToken string

	// Dashboard is the ready page. Set only when Status is Ready; the
	// caller owns it and must Close it.
	Dashboard Page
}

// Orchestrator drives acquisition attempts. Safe for concurrent use; the
// shared limiter paces attempts across goroutines so parallel company
// logins cannot trip the portal's lockout counter.
type Orchestrator struct {
	browser   Browser
	creds     CredentialSource
	portal    config.PortalConfig
	injector  *Injector
	readiness *Readiness
	recorders RecorderFactory
	journal   Journal
	limiter   *rate.Limiter
	fallback  FallbackStarter
	log       *zap.Logger
}

// Options carries the optional collaborators. Nil fields get no-op
// substitutes.
type Options struct {
	Journal  Journal
	Fallback FallbackStarter
	Limiter  *rate.Limiter
}

func NewOrchestrator(browser Browser, creds CredentialSource, portal config.PortalConfig, recorders RecorderFactory, log *zap.Logger, opts Options) *Orchestrator {
	journal := opts.Journal
	if journal == nil {
		journal = NopJournal{}
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(portal.AttemptInterval), 1)
	}
	if recorders == nil {
		recorders = func(string) Recorder { return nopRecorder{} }
	}
	return &Orchestrator{
		browser:   browser,
		creds:     creds,
		portal:    portal,
		injector:  NewInjector(portal),
		readiness: NewReadiness(portal),
		recorders: recorders,
		journal:   journal,
		limiter:   limiter,
		fallback:  opts.Fallback,
		log:       log,
	}
}

// Acquire runs one full acquisition attempt for company. The returned
// Result is always populated, including on error; err describes the failure
// for logs while Result carries the structured outcome.
func (o *Orchestrator) Acquire(ctx context.Context, company string) (Result, error) {
	sess := &attempt{
		id:      uuid.NewString(),
		company: company,
		status:  StatusInitializing,
		journal: o.journal,
	}
	sess.log = o.log.With(zap.String("session_id", sess.id), zap.String("company", company))
	sess.recorder = o.recorders(sess.id)

	creds, err := o.creds.Credentials(company)
	if err != nil {
		return o.fail(ctx, sess, ReasonConfiguration, err)
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return o.fail(ctx, sess, ReasonCanceled, err)
	}
	if err := o.journal.RecordAttempt(ctx, sess.id, company); err != nil {
		sess.log.Warn("journal attempt record failed", zap.Error(err))
	}

	if err := sess.transition(ctx, StatusNavigatingToLogin); err != nil {
		return o.fail(ctx, sess, ReasonConfiguration, err)
	}
	main, err := o.browser.NewPage(ctx)
	if err != nil {
		return o.fail(ctx, sess, ReasonNavigationTimeout, err)
	}
	sess.main = main

	if err := main.Navigate(ctx, o.portal.LoginURL); err != nil {
		return o.fail(ctx, sess, reasonFor(err, ReasonNavigationTimeout), err)
	}
	sess.recorder.CaptureStep(ctx, "login-page", main)

	if err := sess.transition(ctx, StatusAwaitingPopup); err != nil {
		return o.fail(ctx, sess, ReasonConfiguration, err)
	}
	popup, err := o.browser.ExpectPopup(ctx, main, o.portal.PopupWait, func(ctx context.Context) error {
		return main.Click(ctx, o.portal.TriggerSelector)
	})
	if err != nil {
		return o.fail(ctx, sess, reasonFor(err, ReasonPopupTimeout), err)
	}
	sess.popup = popup

	if err := sess.transition(ctx, StatusPopupOpened); err != nil {
		return o.fail(ctx, sess, ReasonConfiguration, err)
	}
	sess.recorder.CaptureStep(ctx, "popup-opened", popup)

	if err := sess.transition(ctx, StatusExtractingHiddenFields); err != nil {
		return o.fail(ctx, sess, ReasonConfiguration, err)
	}
	markup, err := popup.HTML(ctx)
	if err != nil {
		return o.fail(ctx, sess, reasonFor(err, ReasonElementNotFound), err)
	}
	fields, err := ParseHiddenFields(strings.NewReader(markup))
	if err != nil {
		return o.fail(ctx, sess, ReasonElementNotFound, fmt.Errorf("parse popup markup: %w", err))
	}
	sess.log.Info("hidden fields extracted", zap.Int("count", len(fields.Values)))

	if err := sess.transition(ctx, StatusSubmittingCredentials); err != nil {
		return o.fail(ctx, sess, ReasonConfiguration, err)
	}
	if err := o.injector.Inject(ctx, popup, creds, fields); err != nil {
		return o.fail(ctx, sess, reasonFor(err, ReasonElementNotFound), err)
	}

	if err := sess.transition(ctx, StatusAwaitingDashboard); err != nil {
		return o.fail(ctx, sess, ReasonConfiguration, err)
	}
	if err := o.readiness.Wait(ctx, popup); err != nil {
		if rejected, _ := o.credentialRejected(ctx, popup); rejected {
			return o.fail(ctx, sess, ReasonCredentialRejected, errors.New("portal reported rejected credentials"))
		}
		return o.fail(ctx, sess, reasonFor(err, ReasonDashboardLoadTimeout), err)
	}
	if rejected, _ := o.credentialRejected(ctx, popup); rejected {
		return o.fail(ctx, sess, ReasonCredentialRejected, errors.New("portal reported rejected credentials"))
	}

	if err := sess.transition(ctx, StatusReady); err != nil {
		return o.fail(ctx, sess, ReasonConfiguration, err)
	}
	sess.recorder.CaptureStep(ctx, "dashboard-ready", popup)
	if err := o.journal.RecordOutcome(ctx, sess.id, StatusReady, ReasonNone); err != nil {
		sess.log.Warn("journal outcome record failed", zap.Error(err))
	}
	sess.log.Info("session ready")

	// The opener stays alive with the popup: the dashboard's scripts may
	// reference window.opener. Both close with the returned page.
	return Result{
		SessionID:   sess.id,
		Company:     company,
		Status:      StatusReady,
		Reason:      ReasonNone,
		Diagnostics: sess.recorder.Artifacts(),
		Dashboard:   &readyPage{Page: popup, opener: main},
	}, nil
}

// credentialRejected checks the popup for the portal's failure marker. The
// marker matches either an element (CSS selector form) or a substring of
// the current URL, covering both error-banner and error-redirect portals.
func (o *Orchestrator) credentialRejected(ctx context.Context, page Page) (bool, error) {
	marker := o.portal.FailureMarker
	if marker == "" {
		return false, nil
	}
	if url, err := page.URL(ctx); err == nil && strings.Contains(url, marker) {
		return true, nil
	}
	return page.Exists(ctx, markerSelector(marker))
}

func markerSelector(marker string) string {
	if strings.ContainsAny(marker, "#.[ ") {
		return marker
	}
	return "#" + marker + ", ." + marker
}

// fail captures diagnostics, settles the terminal state, and tears the
// pages down. When the failure is an element mismatch and a fallback
// bridge is wired, the attempt parks in ManualFallbackPending instead of
// Failed so an operator can finish the login by hand.
func (o *Orchestrator) fail(ctx context.Context, sess *attempt, reason Reason, cause error) (Result, error) {
	sess.log.Warn("acquisition failed", zap.String("reason", string(reason)), zap.Error(cause))

	capture := sess.popup
	if capture == nil {
		capture = sess.main
	}
	if capture != nil {
		tag := "failure-" + strings.ToLower(string(reason))
		sess.recorder.CaptureScreenshot(ctx, tag, capture)
		sess.recorder.CaptureHTML(ctx, tag, capture)
		sess.recorder.CaptureTrace(ctx, tag, capture)
	}

	if reason == ReasonElementNotFound && o.fallback != nil && sess.status.CanTransition(StatusManualFallbackPending) {
		token, ferr := o.fallback.Start(ctx, sess.company)
		if ferr == nil {
			_ = sess.transition(ctx, StatusManualFallbackPending)
			if err := o.journal.RecordOutcome(ctx, sess.id, StatusManualFallbackPending, reason); err != nil {
				sess.log.Warn("journal outcome record failed", zap.Error(err))
			}
			sess.closePages()
			return Result{
				SessionID:   sess.id,
				Company:     sess.company,
				Status:      StatusManualFallbackPending,
				Reason:      reason,
				Diagnostics: sess.recorder.Artifacts(),
				ResumeToken: token,
			}, cause
		}
		sess.log.Warn("manual fallback start failed", zap.Error(ferr))
	}

	if sess.status.CanTransition(StatusFailed) {
		_ = sess.transition(ctx, StatusFailed)
	}
	if err := o.journal.RecordOutcome(ctx, sess.id, StatusFailed, reason); err != nil {
		sess.log.Warn("journal outcome record failed", zap.Error(err))
	}
	sess.closePages()

	return Result{
		SessionID:   sess.id,
		Company:     sess.company,
		Status:      StatusFailed,
		Reason:      reason,
		Diagnostics: sess.recorder.Artifacts(),
	}, cause
}

// reasonFor maps sentinel errors onto their reasons, falling back to def
// for anything unrecognized.
func reasonFor(err error, def Reason) Reason {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	case errors.Is(err, ErrPopupTimeout):
		return ReasonPopupTimeout
	case errors.Is(err, ErrNavigationTimeout):
		return ReasonNavigationTimeout
	case errors.Is(err, ErrDashboardLoadTimeout):
		return ReasonDashboardLoadTimeout
	case errors.Is(err, ErrElementNotFound):
		return ReasonElementNotFound
	default:
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			return ReasonConfiguration
		}
		return def
	}
}

// attempt is the mutable per-run session record.
type attempt struct {
	id       string
	company  string
	status   Status
	main     Page
	popup    Page
	recorder Recorder
	journal  Journal
	log      *zap.Logger
}

func (a *attempt) transition(ctx context.Context, next Status) error {
	if !a.status.CanTransition(next) {
		return fmt.Errorf("illegal transition %s -> %s", a.status, next)
	}
	from := a.status
	a.status = next
	a.log.Debug("state transition", zap.Stringer("from", from), zap.Stringer("to", next))
	if err := a.journal.RecordTransition(ctx, a.id, from, next); err != nil {
		a.log.Warn("journal transition record failed", zap.Error(err))
	}
	return nil
}

func (a *attempt) closePages() {
	if a.popup != nil {
		if err := a.popup.Close(); err != nil {
			a.log.Debug("popup close", zap.Error(err))
		}
		a.popup = nil
	}
	if a.main != nil {
		if err := a.main.Close(); err != nil {
			a.log.Debug("page close", zap.Error(err))
		}
		a.main = nil
	}
}

// readyPage keeps the opener tab alive for the dashboard's lifetime and
// closes both together.
type readyPage struct {
	Page
	opener Page
}

func (p *readyPage) Close() error {
	err := p.Page.Close()
	if p.opener != nil {
		if oerr := p.opener.Close(); err == nil {
			err = oerr
		}
	}
	return err
}

type nopRecorder struct{}

func (nopRecorder) CaptureScreenshot(context.Context, string, Page) ArtifactRef { return ArtifactRef{} }
func (nopRecorder) CaptureHTML(context.Context, string, Page) ArtifactRef       { return ArtifactRef{} }
func (nopRecorder) CaptureTrace(context.Context, string, Page) ArtifactRef      { return ArtifactRef{} }
func (nopRecorder) CaptureStep(context.Context, string, Page) ArtifactRef       { return ArtifactRef{} }
func (nopRecorder) Artifacts() []ArtifactRef                                    { return nil }
