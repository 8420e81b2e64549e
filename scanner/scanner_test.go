package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ortelius/sbom-enricher/enricher"
	"github.com/ortelius/sbom-enricher/model"
	"github.com/ortelius/sbom-enricher/util"
	"go.uber.org/zap"
)

const testSerial = "urn:uuid:00000000-0000-0000-0000-000000000001"

var fixedClock = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

type fakeRunner struct {
	output string
	err    error
	dirs   []string
}

func (f *fakeRunner) Tree(_ context.Context, dir string) (string, error) {
	f.dirs = append(f.dirs, dir)
	return f.output, f.err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func purls(doc *model.SBOM) []string {
	var got []string
	for _, c := range doc.Components {
		got = append(got, c.Purl)
	}
	return got
}

const lockfile = `{
  "name": "demo-app",
  "version": "1.2.0",
  "lockfileVersion": 3,
  "packages": {
    "": {"name": "demo-app", "version": "1.2.0", "license": "MIT"},
    "node_modules/lodash": {"version": "4.17.20", "license": "MIT"},
    "node_modules/@types/node": {"version": "20.1.0"},
    "node_modules/a/node_modules/lodash": {"version": "4.17.20"}
  }
}`

func TestScanLockfileDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "upload", "package-lock.json"), lockfile)

	store := enricher.NewMemoryStore()
	store.AddMapping("pkg:npm/lodash@4.17.20", "OSS-1")
	store.AddVulnerability("OSS-1", "CVE-2021-23337")

	s := New(zap.NewNop(),
		WithEnricher(enricher.New(store.Opener(), nil)),
		WithSerialNumber(testSerial),
		WithClock(fixedClock),
	)
	doc, err := s.ScanLockfile(context.Background(), dir, true)
	if err != nil {
		t.Fatalf("ScanLockfile() error: %v", err)
	}

	if doc.SerialNumber != testSerial {
		t.Errorf("SerialNumber = %q, want %q", doc.SerialNumber, testSerial)
	}
	if doc.Metadata.Timestamp != "2024-05-01T12:00:00Z" {
		t.Errorf("Timestamp = %q", doc.Metadata.Timestamp)
	}
	if got := doc.Metadata.Component; got.Name != "demo-app" || got.Version != "1.2.0" {
		t.Errorf("metadata component = %s@%s, want demo-app@1.2.0", got.Name, got.Version)
	}

	want := []string{"pkg:npm/lodash@4.17.20", "pkg:npm/%40types/node@20.1.0"}
	if diff := cmp.Diff(want, purls(doc)); diff != "" {
		t.Errorf("components mismatch (-want +got):\n%s", diff)
	}

	if len(doc.Vulnerabilities) != 1 || doc.Vulnerabilities[0].ID != "CVE-2021-23337" {
		t.Errorf("Vulnerabilities = %+v, want one CVE-2021-23337", doc.Vulnerabilities)
	}
}

func TestScanLockfileIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "package-lock.json")
	writeFile(t, path, lockfile)

	// two advisories for the same package report the same CVE
	store := enricher.NewMemoryStore()
	store.AddMapping("pkg:npm/lodash@4.17.20", "OSS-1")
	store.AddMapping("pkg:npm/lodash@4.17.20", "OSS-2")
	store.AddVulnerability("OSS-1", "CVE-1")
	store.AddVulnerability("OSS-2", "CVE-1")
	s := New(nil, WithEnricher(enricher.New(store.Opener(), nil)))

	marshal := func(v interface{}) []byte {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		return raw
	}

	var components, vulns [][]byte
	for i := 0; i < 2; i++ {
		doc, err := s.ScanLockfile(context.Background(), path, true)
		if err != nil {
			t.Fatalf("run %d: ScanLockfile() error: %v", i, err)
		}
		if len(doc.Vulnerabilities) != 1 || doc.Vulnerabilities[0].ID != "CVE-1" {
			t.Fatalf("run %d: Vulnerabilities = %+v, want CVE-1 once", i, doc.Vulnerabilities)
		}
		components = append(components, marshal(doc.Components))
		vulns = append(vulns, marshal(doc.Vulnerabilities))
	}

	if !bytes.Equal(components[0], components[1]) {
		t.Errorf("components differ between runs:\n%s\n%s", components[0], components[1])
	}
	if !bytes.Equal(vulns[0], vulns[1]) {
		t.Errorf("vulnerabilities differ between runs:\n%s\n%s", vulns[0], vulns[1])
	}
}

func TestScanLockfileStoreUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "package-lock.json")
	writeFile(t, path, lockfile)

	failing := func(context.Context) (enricher.VulnStore, error) {
		return nil, errors.New("connection refused")
	}
	s := New(nil, WithEnricher(enricher.New(failing, nil)))

	doc, err := s.ScanLockfile(context.Background(), path, true)
	if !errors.Is(err, enricher.ErrStoreUnavailable) {
		t.Fatalf("ScanLockfile() error = %v, want ErrStoreUnavailable", err)
	}
	if doc == nil || len(doc.Components) != 2 {
		t.Errorf("un-enriched document should still be returned, got %+v", doc)
	}
}

func TestScanLockfileErrors(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	if _, err := s.ScanLockfile(ctx, filepath.Join(t.TempDir(), "missing.json"), false); err == nil {
		t.Error("ScanLockfile(missing file) expected error")
	}

	if _, err := s.ScanLockfile(ctx, t.TempDir(), false); !errors.Is(err, ErrNoProject) {
		t.Errorf("ScanLockfile(empty dir) error = %v, want ErrNoProject", err)
	}

	if _, err := s.ScanLockfileBytes(ctx, []byte("{not json"), "upload", false); err == nil {
		t.Error("ScanLockfileBytes(invalid json) expected error")
	}
}

func TestScanLockfileBytesEmpty(t *testing.T) {
	doc, err := New(nil).ScanLockfileBytes(context.Background(), []byte(`{"name":"empty","packages":{"":{}}}`), "", false)
	if err != nil {
		t.Fatalf("ScanLockfileBytes() error: %v", err)
	}
	if doc.Components == nil || len(doc.Components) != 0 {
		t.Errorf("Components = %#v, want empty non-nil slice", doc.Components)
	}
}

const pyproject = `[project]
name = "demo-py"
version = "0.3.0"
license = { text = "Apache-2.0" }
dependencies = ["requests==2.19.0", "flask>=2.0", "urllib3 == 1.26.0"]
`

const treeOutput = `Resolved 4 packages in 3ms
demo-py v0.3.0
├── requests v2.19.0
│   └── urllib3 v1.26.0
└── flask v2.3.2 (*)
`

func TestScanPythonTree(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pyproject.toml"), pyproject)

	runner := &fakeRunner{output: treeOutput}
	doc, err := New(nil, WithTreeRunner(runner)).ScanPython(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("ScanPython() error: %v", err)
	}

	if diff := cmp.Diff([]string{dir}, runner.dirs); diff != "" {
		t.Errorf("runner dirs mismatch (-want +got):\n%s", diff)
	}
	want := []string{"pkg:pypi/requests@2.19.0", "pkg:pypi/urllib3@1.26.0", "pkg:pypi/flask@2.3.2"}
	if diff := cmp.Diff(want, purls(doc)); diff != "" {
		t.Errorf("components mismatch (-want +got):\n%s", diff)
	}

	root := doc.Metadata.Component
	if root.Name != "demo-py" || root.Version != "0.3.0" || root.LicenseID() != "Apache-2.0" {
		t.Errorf("metadata component = %+v", root)
	}
}

func TestScanPythonNetworkFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pyproject.toml"), pyproject)

	runner := &fakeRunner{err: &util.CmdError{
		Command:  "uv tree",
		ExitCode: 2,
		Output:   "error: Failed to fetch: https://pypi.org/simple/requests/",
	}}
	doc, err := New(nil, WithTreeRunner(runner)).ScanPython(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("ScanPython() error: %v", err)
	}

	want := []string{"pkg:pypi/requests@2.19.0", "pkg:pypi/urllib3@1.26.0"}
	if diff := cmp.Diff(want, purls(doc)); diff != "" {
		t.Errorf("components mismatch (-want +got):\n%s", diff)
	}
}

func TestScanPythonFallbackWithoutPins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pyproject.toml"), "[project]\nname = \"loose\"\ndependencies = [\"flask>=2\"]\n")

	runner := &fakeRunner{err: errors.New("dns error: failed to lookup address")}
	_, err := New(nil, WithTreeRunner(runner)).ScanPython(context.Background(), dir, false)
	if !errors.Is(err, ErrNoDependencies) {
		t.Errorf("ScanPython() error = %v, want ErrNoDependencies", err)
	}
}

func TestScanPythonToolFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pyproject.toml"), pyproject)

	for _, runErr := range []error{
		&util.CmdError{Command: "uv tree", ExitCode: 1, Output: "error: No `project` table found"},
		util.ErrCmdTimeout,
	} {
		runner := &fakeRunner{err: runErr}
		_, err := New(nil, WithTreeRunner(runner)).ScanPython(context.Background(), dir, false)
		if !errors.Is(err, runErr) {
			t.Errorf("ScanPython() error = %v, want wrapping %v", err, runErr)
		}
	}
}

func TestScanPythonUsesDirectoryName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "svc")
	writeFile(t, filepath.Join(dir, "uv.lock"), "version = 1\n")

	runner := &fakeRunner{output: "svc v0.0.0\n└── idna v3.7\n"}
	doc, err := New(nil, WithTreeRunner(runner)).ScanPython(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("ScanPython() error: %v", err)
	}
	if doc.Metadata.Component.Name != "svc" {
		t.Errorf("metadata name = %q, want svc", doc.Metadata.Component.Name)
	}
	if diff := cmp.Diff([]string{"pkg:pypi/idna@3.7"}, purls(doc)); diff != "" {
		t.Errorf("components mismatch (-want +got):\n%s", diff)
	}
}

func TestIsNetworkError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Network unreachable"), true},
		{errors.New("tcp connect timed out"), true},
		{&util.CmdError{Command: "uv tree", ExitCode: 2, Output: "dns error"}, true},
		{&util.CmdError{Command: "uv tree", ExitCode: 1, Output: "invalid pyproject"}, false},
		{util.ErrCmdTimeout, false},
	}
	for _, tt := range tests {
		if got := IsNetworkError(tt.err); got != tt.want {
			t.Errorf("IsNetworkError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestUvRunnerTree(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "uv.lock"), "version = 1\n")

	// echo stands in for uv and prints the arguments it was given
	r := &UvRunner{Command: "echo uv-bin", Timeout: 5 * time.Second}
	out, err := r.Tree(context.Background(), dir)
	if err != nil {
		t.Fatalf("Tree() error: %v", err)
	}
	if out != "uv-bin tree --locked\n" {
		t.Errorf("Tree() = %q, want %q", out, "uv-bin tree --locked\n")
	}
}
