// File: internal/session/interfaces.go
package session

import (
	"context"
	"time"
)

// Page abstracts a single browser tab. The concrete implementation lives in
// internal/browser; the orchestrator and its tests only see this surface.
type Page interface {
	// Navigate drives the tab to url and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// Click dispatches a trusted click on the first element matching sel.
	Click(ctx context.Context, sel string) error

	// TypeText focuses sel and types text with humanlike pacing.
	TypeText(ctx context.Context, sel, text string) error

	// SetFieldByName assigns a form field's value directly, without
	// keystrokes. Used for hidden-field payload replication.
	SetFieldByName(ctx context.Context, form, name, value string) error

	// SubmitForm submits the first form matching sel.
	SubmitForm(ctx context.Context, sel string) error

	// EvaluateBool runs a JS expression and returns its boolean result.
	EvaluateBool(ctx context.Context, expr string) (bool, error)

	// Exists reports whether any element matches sel right now.
	Exists(ctx context.Context, sel string) (bool, error)

	// HTML returns the serialized outer HTML of the document.
	HTML(ctx context.Context) (string, error)

	// URL returns the tab's current location.
	URL(ctx context.Context) (string, error)

	// Screenshot captures the full viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// TraceHAR returns the network activity recorded since the tab
	// opened, serialized as a HAR document.
	TraceHAR(ctx context.Context) ([]byte, error)

	// Close releases the tab and its CDP session.
	Close() error
}

// Browser creates pages and intercepts popups. Implemented by
// internal/browser.Manager.
type Browser interface {
	// NewPage opens a fresh tab with the configured persona applied.
	NewPage(ctx context.Context) (Page, error)

	// ExpectPopup arms popup interception, runs trigger, and returns the
	// page for the first window.open target with an opener. It must arm
	// before firing: a popup that opens during trigger is still caught.
	// Returns ErrPopupTimeout when no popup appears within wait.
	ExpectPopup(ctx context.Context, parent Page, wait time.Duration, trigger func(context.Context) error) (Page, error)
}

// ArtifactKind names the diagnostic artifact categories. Each kind maps to
// its own subdirectory under the session's artifact root.
type ArtifactKind string

const (
	ArtifactScreenshot ArtifactKind = "screenshots"
	ArtifactVideo      ArtifactKind = "videos"
	ArtifactHTML       ArtifactKind = "html"
	ArtifactTrace      ArtifactKind = "trace"
)

// ArtifactRef points at one persisted diagnostic artifact.
type ArtifactRef struct {
	Kind ArtifactKind `json:"kind"`
	Path string       `json:"path"`
}

// Recorder persists diagnostic artifacts for one session. Implementations
// must never propagate persistence failures to the caller: a broken disk
// must not turn a credential-rejection diagnosis into a crash.
type Recorder interface {
	CaptureScreenshot(ctx context.Context, tag string, page Page) ArtifactRef
	CaptureHTML(ctx context.Context, tag string, page Page) ArtifactRef
	CaptureTrace(ctx context.Context, tag string, page Page) ArtifactRef
	CaptureStep(ctx context.Context, tag string, page Page) ArtifactRef

	// Artifacts lists everything captured so far, in capture order.
	Artifacts() []ArtifactRef
}

// Journal records login attempts and their state transitions for later
// audit. A nil-safe no-op implementation is used when no DSN is configured.
type Journal interface {
	RecordAttempt(ctx context.Context, sessionID, company string) error
	RecordTransition(ctx context.Context, sessionID string, from, to Status) error
	RecordOutcome(ctx context.Context, sessionID string, status Status, reason Reason) error
}

// NopJournal discards everything.
type NopJournal struct{}

func (NopJournal) RecordAttempt(context.Context, string, string) error            { return nil }
func (NopJournal) RecordTransition(context.Context, string, Status, Status) error { return nil }
func (NopJournal) RecordOutcome(context.Context, string, Status, Reason) error    { return nil }
