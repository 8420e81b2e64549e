// Package model - SBOM defines the CycloneDX document produced by the pipeline.
// Only the fields needed for package identity and vulnerability linkage are modelled.
package model

import (
	"encoding/json"
	"strings"
)

// Component types used in the SBOM
const (
	ComponentTypeApplication = "application"
	ComponentTypeLibrary     = "library"
)

// External reference types used in the SBOM
const (
	ExternalRefDistribution = "distribution"
	ExternalRefFunding      = "funding"
)

// SBOM is the root aggregate of a CycloneDX document.
type SBOM struct {
	BOMFormat       string          `json:"bomFormat"`
	SpecVersion     string          `json:"specVersion"`
	Version         int             `json:"version"`
	SerialNumber    string          `json:"serialNumber"`
	Metadata        Metadata        `json:"metadata"`
	Components      []Component     `json:"components"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities,omitempty"`
}

// Metadata holds the description of the scanned project.
type Metadata struct {
	Timestamp     string    `json:"timestamp,omitempty"`
	Component     Component `json:"component"`
	GeneratedFrom string    `json:"generatedFrom,omitempty"` // manifest path the document was built from
}

// Component is a normalized package entry in the SBOM.
type Component struct {
	Type               string              `json:"type"`
	Name               string              `json:"name"`
	Version            string              `json:"version"`
	Purl               string              `json:"purl,omitempty"`
	Licenses           []LicenseChoice     `json:"licenses,omitempty"`
	ExternalReferences []ExternalReference `json:"externalReferences,omitempty"`
	Integrity          string              `json:"integrity,omitempty"`
	Properties         []Property          `json:"properties,omitempty"`
}

// LicenseChoice wraps a license the way CycloneDX nests it.
type LicenseChoice struct {
	License License `json:"license"`
}

// License identifies a license by SPDX id.
type License struct {
	ID string `json:"id"`
}

// ExternalReference points at a URL related to a component.
type ExternalReference struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Property is a free-form name/value pair.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Vulnerability links a CVE to the components it affects.
type Vulnerability struct {
	ID          string              `json:"id"`
	Description string              `json:"description,omitempty"`
	Source      VulnerabilitySource `json:"source"`
	Affects     []Affect            `json:"affects"`
}

// VulnerabilitySource names where a vulnerability record came from.
type VulnerabilitySource struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// UnmarshalJSON accepts both the CycloneDX object form and a bare source name,
// which older documents use.
func (s *VulnerabilitySource) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*s = VulnerabilitySource{Name: name}
		return nil
	}

	type plain VulnerabilitySource
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = VulnerabilitySource(p)
	return nil
}

// Affect references an affected component by purl.
type Affect struct {
	Ref string `json:"ref"`
}

// NewLicenses returns the CycloneDX license list for a single SPDX id, or nil when id is empty.
func NewLicenses(id string) []LicenseChoice {
	if id == "" {
		return nil
	}
	return []LicenseChoice{{License: License{ID: id}}}
}

// LicenseID returns the first license id of the component, if any.
func (c Component) LicenseID() string {
	if len(c.Licenses) == 0 {
		return ""
	}
	return c.Licenses[0].License.ID
}

// Property returns the value of the first property whose name matches, ignoring case.
func (c Component) Property(name string) (string, bool) {
	for _, p := range c.Properties {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return "", false
}
