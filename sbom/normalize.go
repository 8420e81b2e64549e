// Package sbom builds CycloneDX documents from dependency records:
// normalization into unique components, document assembly, and conversion to the cyclonedx-go model.
package sbom

import (
	"strings"

	"github.com/ortelius/sbom-enricher/model"
	"github.com/ortelius/sbom-enricher/util"
)

// Normalize converts raw records into library components with canonical purls.
// Records with an empty name or version are dropped. When two records produce the
// same purl the first one wins, metadata included. Output keeps input order.
func Normalize(records []model.DependencyRecord) []model.Component {
	components := make([]model.Component, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		name := strings.TrimSpace(rec.Name)
		version := util.CanonicalVersion(rec.Version)
		if name == "" || version == "" {
			continue
		}

		purl := util.BuildPURL(ResolveEcosystem(rec.Ecosystem, name), name, version)
		if _, dup := seen[purl]; dup {
			continue
		}
		seen[purl] = struct{}{}

		components = append(components, model.Component{
			Type:               model.ComponentTypeLibrary,
			Name:               name,
			Version:            version,
			Purl:               purl,
			Licenses:           model.NewLicenses(strings.TrimSpace(rec.License)),
			ExternalReferences: externalReferences(rec),
			Integrity:          rec.Integrity,
		})
	}

	return components
}

// ResolveEcosystem picks the ecosystem used to build a purl. A declared ecosystem wins.
// Otherwise scoped names ("@scope/pkg", "a/b") are npm, "group:artifact" is maven and
// anything else defaults to npm.
func ResolveEcosystem(declared model.Ecosystem, name string) model.Ecosystem {
	switch {
	case declared != "":
		return declared
	case strings.ContainsAny(name, "/@"):
		return model.EcosystemNpm
	case strings.Contains(name, ":"):
		return model.EcosystemMaven
	default:
		return model.EcosystemNpm
	}
}

func externalReferences(rec model.DependencyRecord) []model.ExternalReference {
	var refs []model.ExternalReference
	if url := strings.TrimSpace(rec.ResolvedURL); url != "" {
		refs = append(refs, model.ExternalReference{Type: model.ExternalRefDistribution, URL: url})
	}
	if url := strings.TrimSpace(rec.FundingURL); url != "" {
		refs = append(refs, model.ExternalReference{Type: model.ExternalRefFunding, URL: url})
	}
	return refs
}
