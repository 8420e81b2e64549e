// Package enricher attaches vulnerabilities to an SBOM by resolving every component purl
// through the vulnerability store: purl -> internal OSS ids -> CVE ids.
package enricher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ortelius/sbom-enricher/model"
	"github.com/ortelius/sbom-enricher/sbom"
	"github.com/ortelius/sbom-enricher/util"
	"go.uber.org/zap"
)

// Description and source stamped on every vulnerability found through the store
const (
	VulnerabilityDescription = "Imported from internal DB via purl mapping"
	VulnerabilitySourceName  = "internal-db"
)

// ErrStoreUnavailable is returned when the vulnerability store cannot be opened.
// The document is left untouched in that case.
var ErrStoreUnavailable = errors.New("vulnerability store unavailable")

// VulnStore is the two-hop lookup contract of the vulnerability store
type VulnStore interface {
	// IdentifiersFor returns the internal OSS ids mapped to purl
	IdentifiersFor(ctx context.Context, purl string) ([]string, error)
	// CVEsFor returns the CVE ids recorded for an internal OSS id
	CVEsFor(ctx context.Context, ossID string) ([]string, error)
	// Close releases the store's resources
	Close() error
}

// OpenFunc opens a store for the duration of one enrichment
type OpenFunc func(ctx context.Context) (VulnStore, error)

// Enricher resolves component purls to vulnerabilities
type Enricher struct {
	open   OpenFunc
	logger *zap.Logger
}

// New creates an Enricher that opens its store with open
func New(open OpenFunc, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{open: open, logger: logger}
}

// Enrich opens the store, appends the vulnerabilities found for doc and closes the store.
// It returns the number of vulnerabilities added.
func (e *Enricher) Enrich(ctx context.Context, doc *model.SBOM) (int, error) {
	store, err := e.open(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			e.logger.Warn("failed to close vulnerability store", zap.Error(cerr))
		}
	}()

	return EnrichWith(ctx, store, doc, e.logger)
}

// EnrichWith appends to doc one vulnerability per (purl, CVE) pair found in store.
// Pairs already present in doc are not added again. A failed lookup for one purl is
// logged and contributes nothing.
func EnrichWith(ctx context.Context, store VulnStore, doc *model.SBOM, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	existing := make(map[string]struct{}, len(doc.Vulnerabilities))
	for _, v := range doc.Vulnerabilities {
		for _, a := range v.Affects {
			existing[pairKey(a.Ref, v.ID)] = struct{}{}
		}
	}

	visited := make(map[string]struct{}, len(doc.Components))
	added := 0
	for _, c := range doc.Components {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		purl := strings.TrimSpace(c.Purl)
		if purl == "" {
			purl = ReconstructPURL(c)
			if purl == "" {
				logger.Debug("skipping component without name or version", zap.String("name", c.Name))
				continue
			}
		}
		if _, done := visited[purl]; done {
			continue
		}
		visited[purl] = struct{}{}

		cves, err := Lookup(ctx, store, purl)
		if err != nil {
			logger.Warn("vulnerability lookup failed", zap.String("purl", purl), zap.Error(err))
			continue
		}

		for _, cve := range cves {
			key := pairKey(purl, cve)
			if _, dup := existing[key]; dup {
				continue
			}
			existing[key] = struct{}{}

			doc.Vulnerabilities = append(doc.Vulnerabilities, model.Vulnerability{
				ID:          cve,
				Description: VulnerabilityDescription,
				Source:      model.VulnerabilitySource{Name: VulnerabilitySourceName},
				Affects:     []model.Affect{{Ref: purl}},
			})
			added++
		}
	}

	logger.Info("enrichment finished",
		zap.Int("components", len(doc.Components)),
		zap.Int("purls", len(visited)),
		zap.Int("vulnerabilities_added", added))
	return added, nil
}

// Lookup performs the two-hop join for one purl and returns the union of CVE ids
// in discovery order.
func Lookup(ctx context.Context, store VulnStore, purl string) ([]string, error) {
	ids, err := store.IdentifiersFor(ctx, purl)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identifiers for %s: %w", purl, err)
	}

	var cves []string
	seen := make(map[string]struct{})
	for _, id := range ids {
		if id == "" {
			continue
		}
		found, err := store.CVEsFor(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve CVEs for %s: %w", id, err)
		}
		for _, cve := range found {
			if cve == "" {
				continue
			}
			if _, dup := seen[cve]; dup {
				continue
			}
			seen[cve] = struct{}{}
			cves = append(cves, cve)
		}
	}
	return cves, nil
}

// ReconstructPURL builds a best-effort purl for a component that has none.
// Libraries are npm unless the name looks like maven's group:artifact; other components
// use their "ecosystem" property when it names npm, maven, pypi or nuget; everything
// else becomes pkg:generic.
func ReconstructPURL(c model.Component) string {
	name := strings.TrimSpace(c.Name)
	version := strings.TrimSpace(c.Version)
	if name == "" || version == "" {
		return ""
	}

	if strings.EqualFold(c.Type, model.ComponentTypeLibrary) {
		return util.BuildPURL(sbom.ResolveEcosystem("", name), name, version)
	}

	if value, ok := c.Property("ecosystem"); ok {
		switch eco := model.Ecosystem(util.EcosystemToPurlType(value)); eco {
		case model.EcosystemNpm, model.EcosystemMaven, model.EcosystemPyPI, model.EcosystemNuGet:
			return util.BuildPURL(eco, name, version)
		}
	}

	return util.BuildPURL(model.EcosystemGeneric, name, version)
}

func pairKey(purl, cve string) string {
	return purl + "\x00" + cve
}
