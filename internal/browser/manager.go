// File: internal/browser/manager.go

// Package browser drives Chrome over the DevTools protocol. It exposes the
// narrow page surface the session orchestrator needs: navigation, element
// interaction with humanlike typing, popup interception, and diagnostic
// capture.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/aduanet/aduanet-cli/internal/config"
	"github.com/aduanet/aduanet-cli/internal/humanoid"
	"github.com/aduanet/aduanet-cli/internal/session"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns the Chrome process and creates tabs for login sessions.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config
	typist *humanoid.Typist

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// wg tracks open pages so Shutdown can wait for them.
	wg sync.WaitGroup

	initOnce sync.Once
	initErr  error
}

var _ session.Browser = (*Manager)(nil)

// NewManager creates a browser manager. The Chrome process launches lazily
// on the first page request.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
		typist: humanoid.NewTypist(cfg.Browser.Typing),
	}
}

// initialize builds the exec allocator and launches Chrome.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("launching browser", zap.Bool("headless", m.cfg.Browser.Headless))

		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", m.cfg.Browser.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(m.cfg.Browser.Profile.ViewportWidth, m.cfg.Browser.Profile.ViewportHeight),
			chromedp.UserAgent(m.cfg.Browser.Profile.UserAgent),
			chromedp.Flag("lang", m.cfg.Browser.Profile.Locale),
		)
		// The portal pops its login form via window.open; Chrome must not
		// suppress it.
		opts = append(opts, chromedp.Flag("disable-popup-blocking", true))
		opts = append(opts, parseExtraArgs(m.cfg.Browser.Args)...)

		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocCtx,
			chromedp.WithLogf(func(format string, args ...interface{}) {
				m.logger.Sugar().Debugf(format, args...)
			}),
		)

		// The first Run starts the process.
		startCtx, cancel := combineContext(m.browserCtx, ctx)
		defer cancel()
		if err := chromedp.Run(startCtx); err != nil {
			m.initErr = fmt.Errorf("failed to launch browser: %w", err)
			m.browserCancel()
			m.allocCancel()
			return
		}
		m.logger.Info("browser launched")
	})
	return m.initErr
}

// NewPage opens a fresh tab with the configured profile applied and network
// harvesting enabled.
func (m *Manager) NewPage(ctx context.Context) (session.Page, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	return m.attachPage(ctx, tabCtx, tabCancel)
}

// attachPage finishes tab setup shared by fresh tabs and intercepted
// popups: profile application, harvester start, lifecycle registration.
func (m *Manager) attachPage(ctx context.Context, tabCtx context.Context, tabCancel context.CancelFunc) (*Page, error) {
	setupCtx, cancel := combineContext(tabCtx, ctx)
	defer cancel()

	if err := chromedp.Run(setupCtx, applyProfile(m.cfg.Browser.Profile, m.logger)); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to apply browser profile: %w", err)
	}

	harv := NewHarvester(tabCtx, m.logger)
	if err := harv.Start(); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to start network harvester: %w", err)
	}

	m.wg.Add(1)
	page := &Page{
		ctx:       tabCtx,
		cancel:    tabCancel,
		typist:    m.typist,
		harvester: harv,
		portal:    m.cfg.Portal,
		logger:    m.logger.Named("page"),
		onClose:   m.wg.Done,
	}
	return page, nil
}

// Shutdown waits for open pages to close, then tears down the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.browserCtx == nil {
		return nil
	}
	m.logger.Info("shutting down browser manager")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("all pages closed")
	case <-ctx.Done():
		m.logger.Warn("timeout waiting for pages to close, forcing shutdown", zap.Error(ctx.Err()))
	case <-time.After(shutdownGracePeriod):
		m.logger.Warn("grace period elapsed waiting for pages to close, forcing shutdown")
	}

	m.browserCancel()
	m.allocCancel()
	m.logger.Info("browser manager shutdown complete")
	return nil
}

// parseExtraArgs converts raw "--name=value" strings into allocator options.
func parseExtraArgs(args []string) []chromedp.ExecAllocatorOption {
	opts := make([]chromedp.ExecAllocatorOption, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimPrefix(arg, "--")
		if arg == "" {
			continue
		}
		if name, value, found := strings.Cut(arg, "="); found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(arg, true))
		}
	}
	return opts
}

// combineContext derives a context from parent that is additionally
// canceled when secondary is done. The parent must be the chromedp context
// so target values propagate.
func combineContext(parent, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
