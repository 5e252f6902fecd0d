// File: internal/fallback/bridge.go

// Package fallback hands a broken automated login over to a human. The
// bridge opens the portal in a browser tab, parks the attempt behind a
// resume token, and lets the operator finish the login by hand. Completion
// is only accepted once the dashboard passes the same readiness checks the
// automated path uses.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aduanet/aduanet-cli/internal/config"
	"github.com/aduanet/aduanet-cli/internal/session"
)

// State tracks one manual login's progression.
type State int

const (
	StateIdle State = iota
	StateStarted
	StateCompletionRequested
	StateCompleted
	StateAbandoned
)

var stateNames = map[State]string{
	StateIdle:                "Idle",
	StateStarted:             "Started",
	StateCompletionRequested: "CompletionRequested",
	StateCompleted:           "Completed",
	StateAbandoned:           "Abandoned",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	// ErrUnknownToken means no manual session matches the resume token.
	ErrUnknownToken = errors.New("no manual session matches this resume token")

	// ErrNotReadyYet means the operator has not finished: the dashboard
	// does not pass the readiness checks yet.
	ErrNotReadyYet = errors.New("dashboard is not ready yet, finish the login and retry")

	// ErrSettled means the manual session already completed or was
	// abandoned.
	ErrSettled = errors.New("manual session already settled")
)

// Handoff describes a started manual session for the operator.
type Handoff struct {
	ResumeToken string
	LoginURL    string
	Company     string
}

type manualSession struct {
	company string
	page    session.Page
	state   State
	started time.Time
}

// Bridge manages manual login sessions. Implements session.FallbackStarter.
type Bridge struct {
	browser   session.Browser
	portal    config.PortalConfig
	readiness *session.Readiness
	journal   session.Journal
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*manualSession
}

var _ session.FallbackStarter = (*Bridge)(nil)

func NewBridge(browser session.Browser, portal config.PortalConfig, journal session.Journal, logger *zap.Logger) *Bridge {
	if journal == nil {
		journal = session.NopJournal{}
	}
	return &Bridge{
		browser:   browser,
		portal:    portal,
		readiness: session.NewReadiness(portal),
		journal:   journal,
		logger:    logger.Named("fallback"),
		sessions:  make(map[string]*manualSession),
	}
}

// Start opens the portal's login page in a fresh tab and parks it behind a
// resume token. It returns as soon as the page is open; the human drives
// from there.
func (b *Bridge) Start(ctx context.Context, company string) (string, error) {
	handoff, err := b.StartHandoff(ctx, company)
	if err != nil {
		return "", err
	}
	return handoff.ResumeToken, nil
}

// StartHandoff is Start with the full operator-facing description.
func (b *Bridge) StartHandoff(ctx context.Context, company string) (Handoff, error) {
	page, err := b.browser.NewPage(ctx)
	if err != nil {
		return Handoff{}, fmt.Errorf("open manual session tab: %w", err)
	}
	if err := page.Navigate(ctx, b.portal.LoginURL); err != nil {
		_ = page.Close()
		return Handoff{}, fmt.Errorf("open login page: %w", err)
	}

	token := uuid.NewString()
	b.mu.Lock()
	b.sessions[token] = &manualSession{
		company: company,
		page:    page,
		state:   StateStarted,
		started: time.Now(),
	}
	b.mu.Unlock()

	b.logger.Info("manual fallback started",
		zap.String("company", company),
		zap.String("resume_token", token),
	)
	return Handoff{ResumeToken: token, LoginURL: b.portal.LoginURL, Company: company}, nil
}

// Complete accepts the operator's claim that the manual login is done. The
// claim is verified against the dashboard readiness checks; until they
// pass, Complete returns ErrNotReadyYet and the session stays open.
// On success the caller owns the returned page.
func (b *Bridge) Complete(ctx context.Context, token string) (session.Page, error) {
	b.mu.Lock()
	ms, ok := b.sessions[token]
	if !ok {
		b.mu.Unlock()
		return nil, ErrUnknownToken
	}
	if ms.state == StateCompleted || ms.state == StateAbandoned {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w (%s)", ErrSettled, ms.state)
	}
	ms.state = StateCompletionRequested
	page := ms.page
	b.mu.Unlock()

	ready, err := b.readiness.Check(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("verify dashboard readiness: %w", err)
	}
	if !ready {
		return nil, ErrNotReadyYet
	}

	// Re-check under the lock: a concurrent Complete or Abandon may have
	// settled the session while the readiness probe ran. The token is
	// spent exactly once.
	b.mu.Lock()
	if ms.state == StateCompleted || ms.state == StateAbandoned {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w (%s)", ErrSettled, ms.state)
	}
	ms.state = StateCompleted
	ms.page = nil
	b.mu.Unlock()

	if err := b.journal.RecordOutcome(ctx, token, session.StatusManualFallbackCompleted, session.ReasonNone); err != nil {
		b.logger.Warn("journal outcome record failed", zap.Error(err))
	}
	b.logger.Info("manual fallback completed", zap.String("company", ms.company))
	return page, nil
}

// Abandon closes a manual session without completing it.
func (b *Bridge) Abandon(ctx context.Context, token string) error {
	b.mu.Lock()
	ms, ok := b.sessions[token]
	if !ok {
		b.mu.Unlock()
		return ErrUnknownToken
	}
	if ms.state == StateCompleted || ms.state == StateAbandoned {
		b.mu.Unlock()
		return fmt.Errorf("%w (%s)", ErrSettled, ms.state)
	}
	ms.state = StateAbandoned
	page := ms.page
	ms.page = nil
	b.mu.Unlock()

	if err := page.Close(); err != nil {
		b.logger.Debug("manual session page close", zap.Error(err))
	}
	if err := b.journal.RecordOutcome(ctx, token, session.StatusFailed, session.ReasonCanceled); err != nil {
		b.logger.Warn("journal outcome record failed", zap.Error(err))
	}
	b.logger.Info("manual fallback abandoned", zap.String("company", ms.company))
	return nil
}

// State reports the current state for a token.
func (b *Bridge) State(token string) (State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ms, ok := b.sessions[token]
	if !ok {
		return StateIdle, false
	}
	return ms.state, true
}
