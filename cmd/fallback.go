// File: cmd/fallback.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aduanet/aduanet-cli/internal/browser"
	"github.com/aduanet/aduanet-cli/internal/fallback"
	"github.com/aduanet/aduanet-cli/internal/journal"
	"github.com/aduanet/aduanet-cli/internal/observability"
)

var fallbackCompany string

var fallbackCmd = &cobra.Command{
	Use:   "fallback",
	Short: "Manual human-in-the-loop login.",
}

var fallbackStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Open the portal in a visible browser and log in by hand.",
	Long: `Opens the portal's login page in a visible browser window and waits.
Log in manually; the command verifies the dashboard with the same
readiness checks the automated flow uses and reports once the session is
good. Interrupt (Ctrl+C) to abandon.`,
	RunE: runFallbackStart,
}

func init() {
	fallbackStartCmd.Flags().StringVar(&fallbackCompany, "company", "", "company the manual session is for")
	fallbackStartCmd.MarkFlagRequired("company")
	fallbackCmd.AddCommand(fallbackStartCmd)
	rootCmd.AddCommand(fallbackCmd)
}

func runFallbackStart(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()

	// A human needs to see the window.
	cfg.Browser.Headless = false

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

	bridge := fallback.NewBridge(mgr, cfg.Portal, jnl, logger)
	handoff, err := bridge.StartHandoff(ctx, fallbackCompany)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Manual session %s opened at %s\n", handoff.ResumeToken, handoff.LoginURL)
	fmt.Fprintln(cmd.OutOrStdout(), "Log in in the browser window; waiting for the dashboard...")

	return awaitManual(ctx, cmd, bridge, handoff.ResumeToken)
}

// awaitManual polls the bridge until the operator's login passes the
// dashboard readiness checks, or the context is canceled, in which case the
// manual session is abandoned.
func awaitManual(ctx context.Context, cmd *cobra.Command, bridge *fallback.Bridge, token string) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			abandonCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := bridge.Abandon(abandonCtx, token); err != nil {
				observability.GetLogger().Debug("abandon manual session", zap.Error(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Manual session abandoned.")
			return ctx.Err()
		case <-ticker.C:
			page, err := bridge.Complete(ctx, token)
			if errors.Is(err, fallback.ErrNotReadyYet) {
				continue
			}
			if err != nil {
				return fmt.Errorf("manual session verification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Dashboard ready. Manual session completed.")
			return page.Close()
		}
	}
}
