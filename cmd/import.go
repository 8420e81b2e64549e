package cmd

import (
	"fmt"

	"github.com/ortelius/sbom-enricher/config"
	"github.com/ortelius/sbom-enricher/database"
	"github.com/ortelius/sbom-enricher/enricher"
	"github.com/spf13/cobra"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <vulndb.yaml>",
	Short: "Load purl mappings and vulnerabilities into the vulnerability database",
	Long: `Reads an offline vulnerability database file (YAML or JSON with "mappings" and
"vulnerabilities") and inserts the records missing from the configured ArangoDB, MySQL
or SQLite store.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if cfg.VulnDB.Driver == config.DriverOffline {
		return fmt.Errorf("import needs a database driver, not %q", config.DriverOffline)
	}
	if err := cfg.Validate(true); err != nil {
		return err
	}

	db, err := enricher.ReadOfflineDB(args[0])
	if err != nil {
		return err
	}

	stats, err := database.Import(cmd.Context(), cfg.VulnDB, db, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d purl mapping(s) and %d vulnerability record(s)\n", stats.Mappings, stats.Vulnerabilities)
	return nil
}
