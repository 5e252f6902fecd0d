// File: internal/session/readiness.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/aduanet/aduanet-cli/internal/config"
)

// Readiness decides when the post-login dashboard is actually usable, not
// merely loaded. The portal renders a full DOM with every panel hidden
// while its bootstrap scripts run, so load events alone are not trustworthy.
type Readiness struct {
	poll    time.Duration
	timeout time.Duration
	expr    string
}

func NewReadiness(portal config.PortalConfig) *Readiness {
	return &Readiness{
		poll:    portal.ReadinessPoll,
		timeout: portal.DashboardTimeout,
		expr:    readinessExpr(portal.DashboardIframe),
	}
}

// Wait polls the readiness predicate until it holds or timeout elapses.
// Evaluation errors are tolerated and retried: the page may be mid-navigation
// when a poll fires. Returns ErrDashboardLoadTimeout on expiry.
func (r *Readiness) Wait(ctx context.Context, page Page) error {
	deadline := time.NewTimer(r.timeout)
	defer deadline.Stop()
	tick := time.NewTicker(r.poll)
	defer tick.Stop()

	for {
		ready, err := page.EvaluateBool(ctx, r.expr)
		if err == nil && ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("dashboard readiness after %s: %w", r.timeout, ErrDashboardLoadTimeout)
		case <-tick.C:
		}
	}
}

// Check evaluates the predicate once, without waiting.
func (r *Readiness) Check(ctx context.Context, page Page) (bool, error) {
	return page.EvaluateBool(ctx, r.expr)
}

// readinessExpr builds the predicate evaluated in the dashboard page.
// The iframe branch short-circuits: a visible dashboard iframe with a
// loaded document is sufficient evidence on its own.
func readinessExpr(iframeSel string) string {
	iframeBranch := ""
	if iframeSel != "" {
		iframeBranch = fmt.Sprintf(`
  var frame = document.querySelector(%q);
  if (frame && frame.offsetHeight > 0) {
    try {
      var fdoc = frame.contentDocument;
      if (fdoc && fdoc.readyState === 'complete') { return true; }
    } catch (e) { return true; }
  }`, iframeSel)
	}

	return fmt.Sprintf(`(function() {
  if (document.readyState !== 'complete') { return false; }%s
  var body = document.body;
  if (!body || body.scrollHeight < 1) { return false; }
  var kids = body.children;
  if (kids.length === 0) { return false; }
  for (var i = 0; i < kids.length; i++) {
    if (window.getComputedStyle(kids[i]).display !== 'none') { return true; }
  }
  return false;
})()`, iframeBranch)
}
