// File: internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/aduanet/aduanet-cli/internal/config"
	"github.com/aduanet/aduanet-cli/internal/humanoid"
	"github.com/aduanet/aduanet-cli/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// elementWait bounds how long element-targeting actions block before the
// element is declared missing.
const elementWait = 5 * time.Second

// Page is one Chrome tab. It implements session.Page.
type Page struct {
	ctx       context.Context
	cancel    context.CancelFunc
	typist    *humanoid.Typist
	harvester *Harvester
	portal    config.PortalConfig
	logger    *zap.Logger

	onClose   func()
	closeOnce sync.Once
}

var _ session.Page = (*Page)(nil)

// run executes actions on the tab, honoring the caller's context and the
// given timeout, and maps chromedp deadline errors onto sentinel.
func (p *Page) run(ctx context.Context, timeout time.Duration, sentinel error, actions ...chromedp.Action) error {
	opCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	opCtx, cancelTimeout := context.WithTimeout(opCtx, timeout)
	defer cancelTimeout()

	err := chromedp.Run(opCtx, actions...)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && p.ctx.Err() == nil {
		return fmt.Errorf("%w (after %s)", sentinel, timeout)
	}
	return err
}

// Navigate drives the tab to url and waits for the page and its late
// XHR traffic to settle.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Info("navigating", zap.String("url", url))
	if err := p.run(ctx, p.portal.NavigationTimeout, session.ErrNavigationTimeout, chromedp.Navigate(url)); err != nil {
		return err
	}
	p.stabilize(ctx)
	return nil
}

// stabilize waits for the network-quiet period. Best effort: a chatty page
// never blocks progress past the navigation timeout.
func (p *Page) stabilize(ctx context.Context) {
	idleCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	idleCtx, cancelTimeout := context.WithTimeout(idleCtx, p.portal.NavigationTimeout)
	defer cancelTimeout()

	if err := p.harvester.WaitNetworkIdle(idleCtx, p.portal.NetworkQuiet); err != nil {
		p.logger.Debug("network did not fully settle", zap.Error(err))
	}
}

func (p *Page) Click(ctx context.Context, sel string) error {
	err := p.run(ctx, elementWait, session.ErrElementNotFound,
		chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
	if err != nil {
		return fmt.Errorf("click %q: %w", sel, err)
	}
	return nil
}

// TypeText fills sel with humanlike keystroke pacing. The timeout scales
// with the text length so slow typing profiles do not trip it.
func (p *Page) TypeText(ctx context.Context, sel, text string) error {
	timeout := elementWait + p.typist.Budget(len(text))
	err := p.run(ctx, timeout, session.ErrElementNotFound, p.typist.Type(sel, text))
	if err != nil {
		return fmt.Errorf("type into %q: %w", sel, err)
	}
	return nil
}

// SetFieldByName assigns a form field directly, creating a hidden input if
// the field does not exist yet. No keystrokes are dispatched.
func (p *Page) SetFieldByName(ctx context.Context, form, name, value string) error {
	expr := fmt.Sprintf(`(function() {
  var form = document.querySelector(%q);
  if (!form) { return false; }
  var field = form.elements.namedItem(%q);
  if (!field) {
    field = document.createElement('input');
    field.type = 'hidden';
    field.name = %q;
    form.appendChild(field);
  }
  field.value = %q;
  return true;
})()`, form, name, name, value)

	var ok bool
	if err := p.run(ctx, elementWait, session.ErrElementNotFound, chromedp.Evaluate(expr, &ok)); err != nil {
		return fmt.Errorf("set field %q: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("set field %q: form %q: %w", name, form, session.ErrElementNotFound)
	}
	return nil
}

// SubmitForm submits the form matching sel and waits for the resulting
// traffic to settle.
func (p *Page) SubmitForm(ctx context.Context, sel string) error {
	expr := fmt.Sprintf(`(function() {
  var form = document.querySelector(%q);
  if (!form) { return false; }
  if (form.requestSubmit) { form.requestSubmit(); } else { form.submit(); }
  return true;
})()`, sel)

	var ok bool
	if err := p.run(ctx, elementWait, session.ErrElementNotFound, chromedp.Evaluate(expr, &ok)); err != nil {
		return fmt.Errorf("submit %q: %w", sel, err)
	}
	if !ok {
		return fmt.Errorf("submit %q: %w", sel, session.ErrElementNotFound)
	}
	p.stabilize(ctx)
	return nil
}

func (p *Page) EvaluateBool(ctx context.Context, expr string) (bool, error) {
	var res bool
	if err := p.run(ctx, elementWait, session.ErrElementNotFound, chromedp.Evaluate(expr, &res)); err != nil {
		return false, err
	}
	return res, nil
}

func (p *Page) Exists(ctx context.Context, sel string) (bool, error) {
	expr := fmt.Sprintf(`document.querySelector(%q) !== null`, sel)
	return p.EvaluateBool(ctx, expr)
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	var markup string
	err := p.run(ctx, elementWait, session.ErrElementNotFound,
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery))
	if err != nil {
		return "", fmt.Errorf("snapshot document: %w", err)
	}
	return markup, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, elementWait, session.ErrElementNotFound, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, p.portal.NavigationTimeout, session.ErrNavigationTimeout,
		chromedp.FullScreenshot(&buf, 90))
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// TraceHAR serializes the tab's network exchange.
func (p *Page) TraceHAR(context.Context) ([]byte, error) {
	return json.Marshal(p.harvester.GenerateHAR())
}

// Close releases the tab. Idempotent.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		p.harvester.Stop()
		p.cancel()
		if p.onClose != nil {
			p.onClose()
		}
	})
	return nil
}
