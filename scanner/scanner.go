// Package scanner runs the SBOM pipeline for a project:
// manifest adapter -> normalizer -> assembler -> enricher.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ortelius/sbom-enricher/enricher"
	"github.com/ortelius/sbom-enricher/model"
	"github.com/ortelius/sbom-enricher/parsers"
	"github.com/ortelius/sbom-enricher/sbom"
	"github.com/ortelius/sbom-enricher/util"
	"go.uber.org/zap"
)

// ErrNoDependencies is returned when the Python fallback finds no pinned dependency
var ErrNoDependencies = errors.New("no dependencies could be resolved")

// networkKeywords mark a tree tool failure caused by the network rather than the project
var networkKeywords = []string{"failed to fetch", "network", "dns error", "connect"}

// TreeRunner produces the dependency tree text of a Python project
type TreeRunner interface {
	Tree(ctx context.Context, dir string) (string, error)
}

// UvRunner runs `uv tree` in the project directory
type UvRunner struct {
	Command string        // command line of the uv binary, e.g. "uv" or "python -m uv"
	Timeout time.Duration // the run fails with util.ErrCmdTimeout after this long
}

// Tree runs the tree command. `--locked` is added when the project has a uv.lock
// so that uv resolves from the lock file instead of the network.
func (r *UvRunner) Tree(ctx context.Context, dir string) (string, error) {
	parts, err := util.SplitCommand(util.GetStringOrDefault(r.Command, "uv"))
	if err != nil {
		return "", err
	}

	args := append(parts[1:], "tree")
	if util.FileExists(filepath.Join(dir, "uv.lock")) {
		args = append(args, "--locked")
	}
	return util.RunCmdContext(ctx, dir, r.Timeout, parts[0], args...)
}

// IsNetworkError reports whether err looks like a network failure of the tree tool.
// The captured output of a util.CmdError is searched as well as the message.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	text := err.Error()
	var cmdErr *util.CmdError
	if errors.As(err, &cmdErr) {
		text += "\n" + cmdErr.Output
	}
	return containsNetworkKeyword(text)
}

func containsNetworkKeyword(text string) bool {
	text = strings.ToLower(text)
	for _, kw := range networkKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Scanner builds SBOMs and optionally enriches them with vulnerabilities
type Scanner struct {
	logger   *zap.Logger
	enricher *enricher.Enricher
	runner   TreeRunner
	serial   string
	now      func() time.Time
}

// Option configures a Scanner
type Option func(*Scanner)

// WithEnricher sets the enricher used when Build is asked to enrich
func WithEnricher(e *enricher.Enricher) Option {
	return func(s *Scanner) { s.enricher = e }
}

// WithTreeRunner replaces the default uv runner
func WithTreeRunner(r TreeRunner) Option {
	return func(s *Scanner) { s.runner = r }
}

// WithSerialNumber fixes the serial number of the generated documents
func WithSerialNumber(serial string) Option {
	return func(s *Scanner) { s.serial = serial }
}

// WithClock sets the source of the metadata timestamp
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// New creates a Scanner. Without WithTreeRunner, Python projects are scanned with `uv tree`.
func New(logger *zap.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scanner{
		logger: logger,
		runner: &UvRunner{Command: "uv", Timeout: 5 * time.Minute},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanLockfile builds an SBOM from an npm lockfile. path may also be a directory
// containing one.
func (s *Scanner) ScanLockfile(ctx context.Context, path string, enrich bool) (*model.SBOM, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		d, err := Detect(path)
		if err != nil {
			return nil, err
		}
		if !d.Has(ProjectNpm) {
			return nil, fmt.Errorf("%w: no package-lock.json in %s", ErrNoProject, d.Root)
		}
		path = d.Manifest(ProjectNpm)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}
	return s.ScanLockfileBytes(ctx, raw, path, enrich)
}

// ScanLockfileBytes builds an SBOM from the content of an npm lockfile.
// source is recorded in the document metadata.
func (s *Scanner) ScanLockfileBytes(ctx context.Context, raw []byte, source string, enrich bool) (*model.SBOM, error) {
	adapter := &parsers.PackageLockAdapter{}
	manifest, err := adapter.Produce(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", adapter.Name(), err)
	}
	if len(manifest.Records) == 0 {
		s.logger.Warn("lockfile lists no dependencies", zap.String("source", source))
	}
	return s.Build(ctx, manifest, source, enrich)
}

// ScanPython builds an SBOM for the uv project in dir. When the tree tool fails for
// network reasons, the exactly pinned dependencies of pyproject.toml are used instead.
func (s *Scanner) ScanPython(ctx context.Context, dir string, enrich bool) (*model.SBOM, error) {
	d, err := Detect(dir)
	if err != nil {
		return nil, err
	}
	if !d.Has(ProjectPython) {
		return nil, fmt.Errorf("%w: no pyproject.toml or uv.lock in %s", ErrNoProject, d.Root)
	}
	dir = d.Root

	root, pyproject := s.pythonRoot(dir)

	output, runErr := s.runner.Tree(ctx, dir)
	var manifest *model.Manifest
	switch {
	case runErr != nil && IsNetworkError(runErr):
		s.logger.Warn("dependency tree unavailable, falling back to pyproject.toml", zap.Error(runErr))
		manifest, err = s.pinnedFallback(pyproject)
		if err != nil {
			return nil, err
		}
	case runErr != nil:
		return nil, fmt.Errorf("failed to resolve dependency tree: %w", runErr)
	default:
		adapter := &parsers.UvTreeAdapter{ProjectName: root.Name}
		manifest, err = adapter.Produce([]byte(output))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s output: %w", adapter.Name(), err)
		}
		if len(manifest.Records) == 0 && containsNetworkKeyword(output) {
			s.logger.Warn("dependency tree reported a network problem, falling back to pyproject.toml")
			if manifest, err = s.pinnedFallback(pyproject); err != nil {
				return nil, err
			}
		} else if len(manifest.Records) == 0 {
			s.logger.Warn("dependency tree is empty", zap.String("dir", dir))
		}
	}

	manifest.Root = root
	source := filepath.Join(dir, "pyproject.toml")
	if pyproject == nil {
		source = dir
	}
	return s.Build(ctx, manifest, source, enrich)
}

// pythonRoot reads the project metadata from pyproject.toml, falling back to the
// directory name. The raw file is returned for the offline fallback.
func (s *Scanner) pythonRoot(dir string) (model.RootMetadata, []byte) {
	root := model.RootMetadata{Name: filepath.Base(dir)}

	raw, err := os.ReadFile(filepath.Join(dir, "pyproject.toml"))
	if err != nil {
		return root, nil
	}
	declared, err := parsers.ReadPyProjectRoot(raw)
	if err != nil {
		s.logger.Warn("failed to read project metadata", zap.Error(err))
		return root, raw
	}
	if declared.Name == "" {
		declared.Name = root.Name
	}
	return declared, raw
}

func (s *Scanner) pinnedFallback(pyproject []byte) (*model.Manifest, error) {
	if pyproject == nil {
		return nil, fmt.Errorf("%w: pyproject.toml not found for the offline fallback", ErrNoDependencies)
	}
	manifest, err := (&parsers.PyProjectAdapter{}).Produce(pyproject)
	if err != nil {
		return nil, err
	}
	if len(manifest.Records) == 0 {
		return nil, fmt.Errorf("%w: pyproject.toml has no dependency pinned with ==", ErrNoDependencies)
	}
	return manifest, nil
}

// Build normalizes the manifest records, assembles the document and, when enrich is set
// and an enricher is configured, attaches vulnerabilities.
// If the vulnerability store cannot be opened, the un-enriched document is returned
// together with an error wrapping enricher.ErrStoreUnavailable.
func (s *Scanner) Build(ctx context.Context, manifest *model.Manifest, source string, enrich bool) (*model.SBOM, error) {
	s.logger.Info("dependencies parsed", zap.Int("records", len(manifest.Records)), zap.String("source", source))

	components := sbom.Normalize(manifest.Records)
	s.logger.Info("components normalized", zap.Int("components", len(components)))

	opts := []sbom.Option{sbom.WithTimestamp(s.now().UTC())}
	if s.serial != "" {
		opts = append(opts, sbom.WithSerialNumber(s.serial))
	}
	if source != "" {
		opts = append(opts, sbom.WithGeneratedFrom(source))
	}
	doc := sbom.Assemble(manifest.Root, components, opts...)

	if !enrich {
		return doc, nil
	}
	if err := s.Enrich(ctx, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// Enrich attaches vulnerabilities to doc with the configured enricher
func (s *Scanner) Enrich(ctx context.Context, doc *model.SBOM) error {
	if s.enricher == nil {
		return fmt.Errorf("%w: no vulnerability store configured", enricher.ErrStoreUnavailable)
	}
	added, err := s.enricher.Enrich(ctx, doc)
	if err != nil {
		return err
	}
	s.logger.Info("vulnerabilities found", zap.Int("added", added), zap.Int("total", len(doc.Vulnerabilities)))
	return nil
}
