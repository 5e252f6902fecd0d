// File: internal/session/errors.go
package session

import "errors"

// Reason is the typed failure classification surfaced to callers. The
// orchestrator never leaks raw errors; every fatal condition collapses into
// one of these.
type Reason string

const (
	// ReasonNone marks a result that did not fail.
	ReasonNone Reason = ""

	// ReasonConfiguration covers missing credentials or invalid portal
	// config. Operator problem, not a portal problem; retrying is useless.
	ReasonConfiguration Reason = "ConfigurationError"

	// ReasonNavigationTimeout means the portal's login page never loaded.
	// A dead portal cannot be worked around, so this is fatal per attempt.
	ReasonNavigationTimeout Reason = "NavigationTimeout"

	// ReasonPopupTimeout means the login popup never appeared after the
	// trigger fired: the login affordance itself is broken or changed.
	ReasonPopupTimeout Reason = "PopupTimeout"

	// ReasonDashboardLoadTimeout means credentials were accepted but the
	// dashboard never finished its client-side rehydration.
	ReasonDashboardLoadTimeout Reason = "DashboardLoadTimeout"

	// ReasonCredentialRejected means the portal bounced the submitted
	// credentials. Never retried automatically: repeated wrong-credential
	// submissions can trigger a portal-side lockout.
	ReasonCredentialRejected Reason = "CredentialRejected"

	// ReasonElementNotFound flags UI drift: an expected element is gone,
	// meaning the portal's markup changed rather than the network being slow.
	ReasonElementNotFound Reason = "ElementNotFound"

	// ReasonCanceled marks an externally canceled acquisition (caller
	// shutdown). Cleanup follows the same path as a timeout.
	ReasonCanceled Reason = "Canceled"
)

// Sentinel errors returned by the browser layer and mapped onto Reasons by
// the orchestrator.
var (
	ErrPopupTimeout         = errors.New("popup window did not open before the deadline")
	ErrNavigationTimeout    = errors.New("navigation did not complete before the deadline")
	ErrDashboardLoadTimeout = errors.New("dashboard readiness predicate never became true")
	ErrElementNotFound      = errors.New("expected element not found in document")
)
