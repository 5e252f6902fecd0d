// File: internal/browser/popup.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/aduanet/aduanet-cli/internal/session"
)

// ExpectPopup arms interception for the next window.open target, fires
// trigger, and attaches to the popup. Arming happens strictly before the
// trigger runs: the portal opens its login window synchronously from the
// click handler, and a listener registered afterwards would miss it.
func (m *Manager) ExpectPopup(ctx context.Context, parent session.Page, wait time.Duration, trigger func(context.Context) error) (session.Page, error) {
	parentPage, ok := parent.(*Page)
	if !ok {
		return nil, fmt.Errorf("expect popup: parent is not a browser page")
	}

	// WaitNewTarget delivers exactly one matching target ID on the channel.
	arm := func() <-chan target.ID {
		return chromedp.WaitNewTarget(parentPage.ctx, func(info *target.Info) bool {
			return info.Type == "page" && info.OpenerID != "" && info.URL != ""
		})
	}

	targetID, err := awaitPopup(ctx, parentPage.ctx, wait, arm, trigger)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("popup intercepted", zap.String("target_id", string(targetID)))

	popupCtx, popupCancel := chromedp.NewContext(parentPage.ctx, chromedp.WithTargetID(targetID))
	popup, err := m.attachPage(ctx, popupCtx, popupCancel)
	if err != nil {
		return nil, fmt.Errorf("attach popup: %w", err)
	}

	// The popup is mid-load when we attach; let its document and late XHR
	// traffic settle before callers read its DOM.
	popup.stabilize(ctx)
	return popup, nil
}

// awaitPopup registers the target listener via arm strictly before running
// trigger, then races the delivered target against the wait deadline. A
// target emitted before arm returns is lost; the ordering here is the whole
// guarantee.
func awaitPopup(ctx, parentCtx context.Context, wait time.Duration, arm func() <-chan target.ID, trigger func(context.Context) error) (target.ID, error) {
	ch := arm()

	if err := trigger(ctx); err != nil {
		return "", fmt.Errorf("popup trigger: %w", err)
	}

	select {
	case targetID := <-ch:
		return targetID, nil
	case <-time.After(wait):
		return "", fmt.Errorf("after %s: %w", wait, session.ErrPopupTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	case <-parentCtx.Done():
		return "", parentCtx.Err()
	}
}
