package sbom

import (
	"bytes"
	"strings"
	"testing"

	"github.com/CycloneDX/cyclonedx-go"
	"github.com/google/go-cmp/cmp"
	"github.com/ortelius/sbom-enricher/model"
)

func sampleDoc() *model.SBOM {
	doc := Assemble(model.RootMetadata{Name: "demo", Version: "1.0.0"}, []model.Component{
		{
			Type:      "library",
			Name:      "lodash",
			Version:   "4.17.20",
			Purl:      "pkg:npm/lodash@4.17.20",
			Licenses:  model.NewLicenses("MIT"),
			Integrity: "sha1-AAEC",
			ExternalReferences: []model.ExternalReference{
				{Type: "distribution", URL: "https://registry.npmjs.org/lodash/-/lodash-4.17.20.tgz"},
				{Type: "funding", URL: "https://opencollective.com/lodash"},
			},
		},
	}, WithSerialNumber("urn:uuid:00000000-0000-0000-0000-000000000001"))
	doc.Vulnerabilities = []model.Vulnerability{{
		ID:          "CVE-2021-23337",
		Description: "Imported from internal DB via purl mapping",
		Source:      model.VulnerabilitySource{Name: "internal-db"},
		Affects:     []model.Affect{{Ref: "pkg:npm/lodash@4.17.20"}},
	}}
	return doc
}

func TestToCycloneDX(t *testing.T) {
	bom := ToCycloneDX(sampleDoc())

	if bom.SerialNumber != "urn:uuid:00000000-0000-0000-0000-000000000001" {
		t.Errorf("SerialNumber = %q", bom.SerialNumber)
	}
	if bom.Components == nil || len(*bom.Components) != 1 {
		t.Fatalf("Components = %v, want one component", bom.Components)
	}

	c := (*bom.Components)[0]
	if c.BOMRef != "pkg:npm/lodash@4.17.20" || c.PackageURL != "pkg:npm/lodash@4.17.20" {
		t.Errorf("component refs = %q / %q", c.BOMRef, c.PackageURL)
	}
	wantRefs := []cyclonedx.ExternalReference{
		{URL: "https://registry.npmjs.org/lodash/-/lodash-4.17.20.tgz", Type: cyclonedx.ERTypeDistribution},
		{URL: "https://opencollective.com/lodash", Type: cyclonedx.ERTypeOther, Comment: "funding"},
	}
	if diff := cmp.Diff(wantRefs, *c.ExternalReferences); diff != "" {
		t.Errorf("ExternalReferences mismatch (-want +got):\n%s", diff)
	}
	wantHashes := []cyclonedx.Hash{{Algorithm: cyclonedx.HashAlgoSHA1, Value: "000102"}}
	if diff := cmp.Diff(wantHashes, *c.Hashes); diff != "" {
		t.Errorf("Hashes mismatch (-want +got):\n%s", diff)
	}

	if bom.Vulnerabilities == nil || len(*bom.Vulnerabilities) != 1 {
		t.Fatalf("Vulnerabilities = %v, want one", bom.Vulnerabilities)
	}
	v := (*bom.Vulnerabilities)[0]
	if v.ID != "CVE-2021-23337" || (*v.Affects)[0].Ref != "pkg:npm/lodash@4.17.20" {
		t.Errorf("vulnerability = %+v", v)
	}
}

func TestWriteXML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXML(&buf, sampleDoc()); err != nil {
		t.Fatalf("WriteXML() error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`<bom xmlns="http://cyclonedx.org/schema/bom/1.4"`, "pkg:npm/lodash@4.17.20", "CVE-2021-23337"} {
		if !strings.Contains(out, want) {
			t.Errorf("WriteXML() output does not contain %q", want)
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	doc := sampleDoc()
	var buf bytes.Buffer
	if err := WriteJSON(&buf, doc); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
	got, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("ReadJSON(WriteJSON()) mismatch (-want +got):\n%s", diff)
	}
}

func TestReadJSONLegacySource(t *testing.T) {
	in := `{"bomFormat":"CycloneDX","specVersion":"1.4","version":1,
		"components":[{"type":"library","name":"a","version":"1","purl":"pkg:npm/a@1"}],
		"vulnerabilities":[{"id":"CVE-1","source":"internal-db","affects":[{"ref":"pkg:npm/a@1"}]}]}`
	doc, err := ReadJSON(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	if doc.Vulnerabilities[0].Source.Name != "internal-db" {
		t.Errorf("Source = %+v, want name internal-db", doc.Vulnerabilities[0].Source)
	}

	if _, err := ReadJSON(strings.NewReader(`{"bomFormat":"SPDX"}`)); err == nil {
		t.Error("ReadJSON(SPDX) expected error")
	}
}
