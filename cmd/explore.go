// File: cmd/explore.go
package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/aduanet/aduanet-cli/internal/explore"
)

var exploreCmd = &cobra.Command{
	Use:   "explore FILE",
	Short: "Scan a saved portal page offline for login and invoice surfaces.",
	Long: `Parses a saved HTML snapshot of the portal and reports its forms, hidden
payload fields, and any login or invoice related navigation. Useful for
refreshing selector configuration after a portal update, without touching
the live site.`,
	Args: cobra.ExactArgs(1),
	RunE: runExplore,
}

func init() {
	rootCmd.AddCommand(exploreCmd)
}

func runExplore(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	report, err := explore.Scan(f)
	if err != nil {
		return fmt.Errorf("scan snapshot: %w", err)
	}

	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize report: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
