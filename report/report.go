// Package report writes an enriched SBOM in the supported output formats
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ortelius/sbom-enricher/model"
	"github.com/ortelius/sbom-enricher/sbom"
)

// Output formats
const (
	FormatJSON  = "json"
	FormatXML   = "xml"
	FormatCSV   = "csv"
	FormatTable = "table"
)

// Reporter writes a document to w
type Reporter interface {
	Write(w io.Writer, doc *model.SBOM) error
}

// ReporterFunc adapts a function to the Reporter interface
type ReporterFunc func(w io.Writer, doc *model.SBOM) error

// Write calls f(w, doc)
func (f ReporterFunc) Write(w io.Writer, doc *model.SBOM) error {
	return f(w, doc)
}

var reporters = map[string]Reporter{
	FormatJSON:  ReporterFunc(sbom.WriteJSON),
	FormatXML:   ReporterFunc(sbom.WriteXML),
	FormatCSV:   ReporterFunc(WriteCSV),
	FormatTable: ReporterFunc(WriteTable),
}

// Formats returns the supported format names, sorted
func Formats() []string {
	names := make([]string, 0, len(reporters))
	for name := range reporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the reporter for format
func Get(format string) (Reporter, error) {
	r, ok := reporters[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return nil, fmt.Errorf("unsupported output format %q (supported: %s)", format, strings.Join(Formats(), ", "))
	}
	return r, nil
}

// WriteCSV writes one row per (component, CVE) pair with the columns purl,name,version,cve
func WriteCSV(w io.Writer, doc *model.SBOM) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"purl", "name", "version", "cve"}); err != nil {
		return err
	}
	for _, row := range model.AffectedComponents(doc) {
		if err := cw.Write([]string{row.FullPurl, row.Package, row.Version, row.CveID}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable writes a terminal summary of the project and the vulnerable components
func WriteTable(w io.Writer, doc *model.SBOM) error {
	root := doc.Metadata.Component
	rows := model.AffectedComponents(doc)

	fmt.Fprintf(w, "Project: %s %s\n", root.Name, root.Version)
	fmt.Fprintf(w, "Components: %d\n", len(doc.Components))
	fmt.Fprintf(w, "Vulnerabilities: %d\n\n", len(rows))

	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No vulnerabilities found.")
		return err
	}

	fmt.Fprintf(w, "%-20s %-30s %-15s %s\n", "CVE", "PACKAGE", "VERSION", "PURL")
	fmt.Fprintln(w, strings.Repeat("─", 90))
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%-20s %-30s %-15s %s\n", row.CveID, row.Package, row.Version, row.FullPurl); err != nil {
			return err
		}
	}
	return nil
}
