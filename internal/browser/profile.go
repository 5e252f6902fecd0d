// File: internal/browser/profile.go
package browser

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/aduanet/aduanet-cli/internal/config"
)

//go:embed initscript.js
var initScript string

// applyProfile pins the tab's fingerprint to the configured profile. Every
// tab, the intercepted popup included, presents the same client to the
// portal; a fingerprint that changes mid-login trips its session checks.
func applyProfile(p config.ProfileConfig, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("applying browser profile",
		zap.String("user_agent", p.UserAgent),
		zap.String("locale", p.Locale),
	)

	return chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent),

		emulation.SetDeviceMetricsOverride(int64(p.ViewportWidth), int64(p.ViewportHeight), 1.0, false),

		// AddScriptToEvaluateOnNewDocument's Do returns two values, so it
		// needs the ActionFunc wrapper.
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(initScript).Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to inject init script: %w", err)
			}
			return nil
		}),

		emulation.SetTimezoneOverride(p.Timezone),

		// SetLocaleOverride takes no arguments; the locale comes through
		// the chained builder.
		emulation.SetLocaleOverride().WithLocale(p.Locale),

		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": fmt.Sprintf("%s,%s;q=0.9", p.Locale, languageOf(p.Locale)),
		}),
	}
}

// languageOf reduces a locale tag to its bare language ("ro-RO" -> "ro").
func languageOf(locale string) string {
	for i := 0; i < len(locale); i++ {
		if locale[i] == '-' || locale[i] == '_' {
			return locale[:i]
		}
	}
	return locale
}
