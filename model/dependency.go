// Package model defines the data structures used by the sbom-enricher,
// including raw dependency records, SBOM documents and vulnerability store records.
package model

// Ecosystem represents the package ecosystem a dependency belongs to.
// The values double as purl types.
type Ecosystem string

const (
	// EcosystemNpm represents packages from the npm registry.
	EcosystemNpm Ecosystem = "npm"
	// EcosystemPyPI represents packages from the Python Package Index.
	EcosystemPyPI Ecosystem = "pypi"
	// EcosystemMaven represents Maven artifacts addressed as group:artifact.
	EcosystemMaven Ecosystem = "maven"
	// EcosystemNuGet represents .NET packages from NuGet.
	EcosystemNuGet Ecosystem = "nuget"
	// EcosystemGeneric is the catch-all for packages without a known ecosystem.
	EcosystemGeneric Ecosystem = "generic"
)

// DependencyRecord is a raw dependency as read from a manifest, before normalization.
type DependencyRecord struct {
	Name        string    // package name, scoped npm names keep their "@scope/" prefix
	Version     string    // resolved version, may carry a leading "v"
	Ecosystem   Ecosystem // empty when the source does not declare one
	ResolvedURL string    // distribution URL (package-lock "resolved")
	Integrity   string    // subresource integrity hash (package-lock "integrity")
	License     string
	FundingURL  string
}

// String returns a human-readable representation
func (d DependencyRecord) String() string {
	return d.Name + "@" + d.Version
}

// RootMetadata describes the scanned project itself.
type RootMetadata struct {
	Name    string
	Version string
	License string
}

// Manifest is the output of a manifest adapter: the project's own metadata plus
// the dependency records in source order.
type Manifest struct {
	Root    RootMetadata
	Records []DependencyRecord
}
