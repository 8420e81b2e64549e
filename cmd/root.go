// Package cmd implements the sbom-enricher command line
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ortelius/sbom-enricher/config"
	"github.com/ortelius/sbom-enricher/database"
	"github.com/ortelius/sbom-enricher/enricher"
	"github.com/ortelius/sbom-enricher/model"
	"github.com/ortelius/sbom-enricher/report"
	"github.com/ortelius/sbom-enricher/sbom"
	"github.com/ortelius/sbom-enricher/scanner"
	"github.com/ortelius/sbom-enricher/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	logLevel   string
	verbose    bool

	outputFile   string
	outputFormat string
	noEnrich     bool
	serialNumber string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sbom-enricher",
	Short: "Generate CycloneDX SBOMs and enrich them with known vulnerabilities",
	Long: `Builds a CycloneDX SBOM from an npm lockfile or a uv-managed Python project
and cross-references every component purl against the vulnerability database.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// npmCmd represents the npm command
var npmCmd = &cobra.Command{
	Use:   "npm <package-lock.json|dir>",
	Short: "Generate an SBOM from an npm lockfile",
	Long: `Reads package-lock.json (or package_lock.json inside the given directory),
normalizes every dependency to a purl and writes the enriched SBOM.`,
	Args: cobra.ExactArgs(1),
	RunE: runNpm,
}

// pythonCmd represents the python command
var pythonCmd = &cobra.Command{
	Use:   "python <project-dir>",
	Short: "Generate an SBOM for a uv-managed Python project",
	Long: `Runs "uv tree" in the project directory and writes the enriched SBOM.
When uv cannot reach the network, dependencies pinned with == in pyproject.toml are used.`,
	Args: cobra.ExactArgs(1),
	RunE: runPython,
}

// enrichCmd represents the enrich command
var enrichCmd = &cobra.Command{
	Use:   "enrich <sbom.json>",
	Short: "Add vulnerabilities to an existing CycloneDX JSON SBOM",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnrich,
}

func init() {
	rootCmd.AddCommand(npmCmd, pythonCmd, enrichCmd)

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	for _, c := range []*cobra.Command{npmCmd, pythonCmd, enrichCmd} {
		c.Flags().StringVarP(&outputFile, "output", "o", "-", "Output file, - for stdout")
		c.Flags().StringVar(&outputFormat, "format", report.FormatJSON, "Output format (json, xml, csv, table)")
	}
	for _, c := range []*cobra.Command{npmCmd, pythonCmd} {
		c.Flags().BoolVar(&noEnrich, "no-enrich", false, "Skip the vulnerability lookup")
		c.Flags().StringVar(&serialNumber, "serial", "", "Serial number to use instead of a random urn:uuid")
	}
}

// Execute runs the root command
func Execute() {
	ctx, stop := signalContext()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if verbose {
		level = "debug"
	}
	logger = util.InitLogger(level)
	return nil
}

func newScanner(enrich bool) (*scanner.Scanner, error) {
	if err := cfg.Validate(enrich); err != nil {
		return nil, err
	}
	if _, err := report.Get(outputFormat); err != nil {
		return nil, err
	}

	opts := []scanner.Option{
		scanner.WithTreeRunner(&scanner.UvRunner{Command: cfg.UV.Command, Timeout: cfg.UV.Timeout}),
	}
	if enrich {
		opts = append(opts, scanner.WithEnricher(enricher.New(database.Opener(cfg.VulnDB, logger), logger)))
	}
	if serialNumber != "" {
		opts = append(opts, scanner.WithSerialNumber(serialNumber))
	}
	return scanner.New(logger, opts...), nil
}

func runNpm(cmd *cobra.Command, args []string) error {
	sc, err := newScanner(!noEnrich)
	if err != nil {
		return err
	}
	doc, err := sc.ScanLockfile(cmd.Context(), args[0], !noEnrich)
	return emit(doc, err)
}

func runPython(cmd *cobra.Command, args []string) error {
	sc, err := newScanner(!noEnrich)
	if err != nil {
		return err
	}
	doc, err := sc.ScanPython(cmd.Context(), args[0], !noEnrich)
	return emit(doc, err)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	sc, err := newScanner(true)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open SBOM: %w", err)
	}
	defer f.Close()

	doc, err := sbom.ReadJSON(f)
	if err != nil {
		return err
	}
	return emit(doc, sc.Enrich(cmd.Context(), doc))
}

// emit writes doc unless err is fatal for the document. When only the vulnerability
// store was unavailable the un-enriched document is written and err is still returned.
func emit(doc *model.SBOM, err error) error {
	if err != nil && (doc == nil || !errors.Is(err, enricher.ErrStoreUnavailable)) {
		return err
	}
	if werr := writeOutput(doc); werr != nil {
		return werr
	}
	if err != nil {
		logger.Warn("SBOM written without vulnerabilities", zap.Error(err))
	}
	return err
}

func writeOutput(doc *model.SBOM) error {
	r, err := report.Get(outputFormat)
	if err != nil {
		return err
	}

	toFile := outputFile != "" && outputFile != "-"
	var w io.Writer = os.Stdout
	if toFile {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := r.Write(w, doc); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if toFile {
		logger.Info("SBOM written", zap.String("file", outputFile), zap.String("format", outputFormat))
	}
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
