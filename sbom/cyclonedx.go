package sbom

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/CycloneDX/cyclonedx-go"
	"github.com/ortelius/sbom-enricher/model"
)

// sriAlgorithms maps subresource integrity prefixes to CycloneDX hash algorithms
var sriAlgorithms = map[string]cyclonedx.HashAlgorithm{
	"sha1":   cyclonedx.HashAlgoSHA1,
	"sha256": cyclonedx.HashAlgoSHA256,
	"sha384": cyclonedx.HashAlgoSHA384,
	"sha512": cyclonedx.HashAlgoSHA512,
}

// ToCycloneDX converts the document into the cyclonedx-go model.
// Components are referenced by purl, so vulnerability affects resolve to bom-refs.
func ToCycloneDX(doc *model.SBOM) *cyclonedx.BOM {
	bom := cyclonedx.NewBOM()
	bom.SpecVersion = cyclonedx.SpecVersion1_4
	bom.Version = doc.Version
	bom.SerialNumber = doc.SerialNumber

	root := toCDXComponent(doc.Metadata.Component)
	bom.Metadata = &cyclonedx.Metadata{
		Timestamp: doc.Metadata.Timestamp,
		Component: &root,
	}
	if doc.Metadata.GeneratedFrom != "" {
		bom.Metadata.Properties = &[]cyclonedx.Property{
			{Name: "generatedFrom", Value: doc.Metadata.GeneratedFrom},
		}
	}

	comps := make([]cyclonedx.Component, 0, len(doc.Components))
	for _, c := range doc.Components {
		comps = append(comps, toCDXComponent(c))
	}
	bom.Components = &comps

	if len(doc.Vulnerabilities) > 0 {
		vulns := make([]cyclonedx.Vulnerability, 0, len(doc.Vulnerabilities))
		for _, v := range doc.Vulnerabilities {
			affects := make([]cyclonedx.Affects, 0, len(v.Affects))
			for _, a := range v.Affects {
				affects = append(affects, cyclonedx.Affects{Ref: a.Ref})
			}
			vulns = append(vulns, cyclonedx.Vulnerability{
				ID:          v.ID,
				Description: v.Description,
				Source:      &cyclonedx.Source{Name: v.Source.Name, URL: v.Source.URL},
				Affects:     &affects,
			})
		}
		bom.Vulnerabilities = &vulns
	}

	return bom
}

func toCDXComponent(c model.Component) cyclonedx.Component {
	out := cyclonedx.Component{
		BOMRef:     c.Purl,
		Type:       cyclonedx.ComponentType(c.Type),
		Name:       c.Name,
		Version:    c.Version,
		PackageURL: c.Purl,
	}

	if len(c.Licenses) > 0 {
		licenses := make(cyclonedx.Licenses, 0, len(c.Licenses))
		for _, l := range c.Licenses {
			licenses = append(licenses, cyclonedx.LicenseChoice{License: &cyclonedx.License{ID: l.License.ID}})
		}
		out.Licenses = &licenses
	}

	if len(c.ExternalReferences) > 0 {
		refs := make([]cyclonedx.ExternalReference, 0, len(c.ExternalReferences))
		for _, r := range c.ExternalReferences {
			ref := cyclonedx.ExternalReference{URL: r.URL, Type: cyclonedx.ExternalReferenceType(r.Type)}
			// CycloneDX 1.4 has no funding reference type
			if r.Type == model.ExternalRefFunding {
				ref.Type = cyclonedx.ERTypeOther
				ref.Comment = model.ExternalRefFunding
			}
			refs = append(refs, ref)
		}
		out.ExternalReferences = &refs
	}

	if h, ok := integrityHash(c.Integrity); ok {
		out.Hashes = &[]cyclonedx.Hash{h}
	}

	if len(c.Properties) > 0 {
		props := make([]cyclonedx.Property, 0, len(c.Properties))
		for _, p := range c.Properties {
			props = append(props, cyclonedx.Property{Name: p.Name, Value: p.Value})
		}
		out.Properties = &props
	}

	return out
}

// integrityHash converts "sha512-<base64>" into a hex CycloneDX hash
func integrityHash(sri string) (cyclonedx.Hash, bool) {
	algo, digest, ok := strings.Cut(strings.TrimSpace(sri), "-")
	if !ok {
		return cyclonedx.Hash{}, false
	}
	alg, known := sriAlgorithms[strings.ToLower(algo)]
	if !known {
		return cyclonedx.Hash{}, false
	}
	raw, err := base64.StdEncoding.DecodeString(digest)
	if err != nil {
		return cyclonedx.Hash{}, false
	}
	return cyclonedx.Hash{Algorithm: alg, Value: hex.EncodeToString(raw)}, true
}

// WriteXML writes the document as pretty-printed CycloneDX 1.4 XML
func WriteXML(w io.Writer, doc *model.SBOM) error {
	encoder := cyclonedx.NewBOMEncoder(w, cyclonedx.BOMFileFormatXML).SetPretty(true)
	if err := encoder.EncodeVersion(ToCycloneDX(doc), cyclonedx.SpecVersion1_4); err != nil {
		return fmt.Errorf("failed to encode CycloneDX XML: %w", err)
	}
	return nil
}

// WriteJSON writes the document as indented JSON
func WriteJSON(w io.Writer, doc *model.SBOM) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode SBOM JSON: %w", err)
	}
	return nil
}

// ReadJSON decodes a CycloneDX JSON document
func ReadJSON(r io.Reader) (*model.SBOM, error) {
	var doc model.SBOM
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode SBOM JSON: %w", err)
	}
	if doc.BOMFormat != "" && doc.BOMFormat != BOMFormat {
		return nil, fmt.Errorf("unsupported bomFormat %q", doc.BOMFormat)
	}
	return &doc, nil
}
