// File: internal/session/state.go
package session

import "fmt"

// Status enumerates the login state machine. Progression is monotonic
// forward except for Failed and ManualFallbackPending, which are reachable
// from any non-terminal state.
type Status int

const (
	StatusInitializing Status = iota
	StatusNavigatingToLogin
	StatusAwaitingPopup
	StatusPopupOpened
	StatusExtractingHiddenFields
	StatusSubmittingCredentials
	StatusAwaitingDashboard
	StatusReady
	StatusFailed
	StatusManualFallbackPending
	StatusManualFallbackCompleted
)

var statusNames = map[Status]string{
	StatusInitializing:            "Initializing",
	StatusNavigatingToLogin:       "NavigatingToLogin",
	StatusAwaitingPopup:           "AwaitingPopup",
	StatusPopupOpened:             "PopupOpened",
	StatusExtractingHiddenFields:  "ExtractingHiddenFields",
	StatusSubmittingCredentials:   "SubmittingCredentials",
	StatusAwaitingDashboard:       "AwaitingDashboard",
	StatusReady:                   "Ready",
	StatusFailed:                  "Failed",
	StatusManualFallbackPending:   "ManualFallbackPending",
	StatusManualFallbackCompleted: "ManualFallbackCompleted",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Terminal reports whether the session can make no further transitions.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed || s == StatusManualFallbackCompleted
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}

	// Failure and the fallback handoff are reachable from anywhere live.
	if next == StatusFailed || next == StatusManualFallbackPending {
		return s != StatusManualFallbackPending || next == StatusFailed
	}

	if s == StatusManualFallbackPending {
		return next == StatusManualFallbackCompleted
	}

	// The happy path advances one step at a time.
	return next == s+1 && next <= StatusReady
}
