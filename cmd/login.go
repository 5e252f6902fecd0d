// File: cmd/login.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aduanet/aduanet-cli/internal/browser"
	"github.com/aduanet/aduanet-cli/internal/diagnostics"
	"github.com/aduanet/aduanet-cli/internal/fallback"
	"github.com/aduanet/aduanet-cli/internal/journal"
	"github.com/aduanet/aduanet-cli/internal/observability"
	"github.com/aduanet/aduanet-cli/internal/session"
)

var loginCompanies []string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Acquire authenticated portal sessions for the configured companies.",
	Long: `Drives the portal's popup login flow end to end: opens the login page,
intercepts the popup, replicates its hidden form payload, injects the
credentials with humanlike typing, and waits until the dashboard is
actually usable. On failure the attempt's diagnostics (screenshots, DOM
snapshots, network traces) land under the artifacts directory.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringSliceVar(&loginCompanies, "company", nil,
		"company to log in (repeatable; defaults to every configured company)")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()

	companies := loginCompanies
	if len(companies) == 0 {
		for name := range cfg.Companies {
			companies = append(companies, name)
		}
		sort.Strings(companies)
	}
	if len(companies) == 0 {
		return fmt.Errorf("no companies configured and none given via --company")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jnl, closeJournal, err := journal.Open(ctx, cfg.Journal, logger)
	if err != nil {
		return fmt.Errorf("open attempt journal: %w", err)
	}
	defer closeJournal()

	mgr := browser.NewManager(cfg, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			logger.Warn("browser shutdown", zap.Error(err))
		}
	}()

	opts := session.Options{Journal: jnl}
	var bridge *fallback.Bridge
	if !cfg.Browser.Headless {
		// A manual takeover needs a window a human can see; headless runs
		// fail outright instead of parking.
		bridge = fallback.NewBridge(mgr, cfg.Portal, jnl, logger)
		opts.Fallback = bridge
	}
	orch := session.NewOrchestrator(
		mgr,
		cfg,
		cfg.Portal,
		diagnostics.Factory(cfg.Artifacts.Dir, logger),
		logger,
		opts,
	)

	var (
		mu      sync.Mutex
		results []session.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, company := range companies {
		g.Go(func() error {
			res, err := orch.Acquire(gctx, company)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			if err != nil {
				logger.Warn("login attempt failed",
					zap.String("company", company),
					zap.String("reason", string(res.Reason)),
					zap.Error(err),
				)
			}
			// One company's failure must not cancel the others.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Company < results[j].Company })

	failed := 0
	for _, res := range results {
		printResult(cmd, res)
		if res.Status != session.StatusReady {
			failed++
		}
		if res.Dashboard != nil {
			// The CLI has no further use for the live tab; release it.
			if err := res.Dashboard.Close(); err != nil {
				logger.Debug("dashboard close", zap.Error(err))
			}
		}
	}

	// Parked attempts wait for the operator to finish the login by hand.
	for _, res := range results {
		if res.ResumeToken == "" || bridge == nil {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: waiting for manual login in the browser window...\n", res.Company)
		if err := awaitManual(ctx, cmd, bridge, res.ResumeToken); err != nil {
			logger.Warn("manual fallback did not complete", zap.String("company", res.Company), zap.Error(err))
			continue
		}
		failed--
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d login attempts did not reach a ready session", failed, len(results))
	}
	return nil
}

func printResult(cmd *cobra.Command, res session.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s", res.Company, res.Status)
	if res.Reason != session.ReasonNone {
		fmt.Fprintf(out, " (%s)", res.Reason)
	}
	fmt.Fprintf(out, " [session %s]\n", res.SessionID)

	if res.ResumeToken != "" {
		fmt.Fprintf(out, "  manual fallback armed [token %s]\n", res.ResumeToken)
	}
	for _, a := range res.Diagnostics {
		fmt.Fprintf(out, "  %s: %s\n", a.Kind, a.Path)
	}
}
