package cmd

import (
	"fmt"

	"github.com/ortelius/sbom-enricher/database"
	"github.com/ortelius/sbom-enricher/enricher"
	"github.com/ortelius/sbom-enricher/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var showIdentifiers bool

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query <purl>",
	Short: "List the CVEs recorded for a purl",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().BoolVar(&showIdentifiers, "identifiers", false, "Also list the internal OSS ids the purl maps to")
}

func runQuery(cmd *cobra.Command, args []string) error {
	purl := args[0]
	if _, err := util.ParsePURL(purl); err != nil {
		return fmt.Errorf("invalid purl %q: %w", purl, err)
	}
	if err := cfg.Validate(true); err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := database.Open(ctx, cfg.VulnDB, logger)
	if err != nil {
		return fmt.Errorf("%w: %w", enricher.ErrStoreUnavailable, err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("failed to close vulnerability store", zap.Error(cerr))
		}
	}()

	if showIdentifiers {
		ids, err := store.IdentifiersFor(ctx, purl)
		if err != nil {
			return fmt.Errorf("failed to look up %s: %w", purl, err)
		}
		fmt.Printf("%-40s %s\n", "OSS ID", "PURL")
		for _, id := range ids {
			fmt.Printf("%-40s %s\n", id, purl)
		}
		fmt.Println()
	}

	cves, err := enricher.Lookup(ctx, store, purl)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", purl, err)
	}
	if len(cves) == 0 {
		fmt.Printf("No vulnerabilities found for %s\n", purl)
		return nil
	}

	fmt.Printf("Found %d vulnerabilit(ies) for %s:\n\n", len(cves), purl)
	for _, cve := range cves {
		fmt.Println(cve)
	}
	return nil
}
