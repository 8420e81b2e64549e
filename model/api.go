// Package model - API types for combining models in API requests/responses and reports
package model

// ScanResponse is the envelope returned by the HTTP API
type ScanResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	SBOM    *SBOM  `json:"sbom,omitempty"`
}

// AffectedComponent represents a component that is affected by a CVE
type AffectedComponent struct {
	CveID       string `json:"cve_id"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Package     string `json:"package"`
	Version     string `json:"version"`
	FullPurl    string `json:"full_purl"`
}

// AffectedComponents flattens the vulnerabilities of a document into one row per
// (CVE, affected component), in document order.
func AffectedComponents(doc *SBOM) []AffectedComponent {
	if doc == nil {
		return nil
	}

	byPurl := make(map[string]Component, len(doc.Components))
	for _, c := range doc.Components {
		if c.Purl != "" {
			byPurl[c.Purl] = c
		}
	}

	var rows []AffectedComponent
	for _, v := range doc.Vulnerabilities {
		for _, a := range v.Affects {
			row := AffectedComponent{
				CveID:       v.ID,
				Description: v.Description,
				Source:      v.Source.Name,
				FullPurl:    a.Ref,
			}
			if c, ok := byPurl[a.Ref]; ok {
				row.Package = c.Name
				row.Version = c.Version
			}
			rows = append(rows, row)
		}
	}
	return rows
}
