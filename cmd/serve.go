package cmd

import (
	"github.com/ortelius/sbom-enricher/database"
	"github.com/ortelius/sbom-enricher/enricher"
	"github.com/ortelius/sbom-enricher/scanner"
	"github.com/ortelius/sbom-enricher/server"
	"github.com/spf13/cobra"
)

var servePort string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the SBOM API",
	Long: `Starts the HTTP API:
  POST /api/v1/sbom/npm   build an SBOM from a package-lock.json body
  POST /api/v1/enrich     enrich a CycloneDX JSON body
  POST /api/v1/graphql    purl vulnerability queries
  GET  /                  health check`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Port to listen on (default MS_PORT or 8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(true); err != nil {
		return err
	}

	port := cfg.Server.Port
	if servePort != "" {
		port = servePort
	}

	open := database.Opener(cfg.VulnDB, logger)
	sc := scanner.New(logger,
		scanner.WithEnricher(enricher.New(open, logger)),
		scanner.WithTreeRunner(&scanner.UvRunner{Command: cfg.UV.Command, Timeout: cfg.UV.Timeout}),
	)

	srv, err := server.New(sc, open, logger)
	if err != nil {
		return err
	}
	return srv.Run(cmd.Context(), ":"+port)
}
