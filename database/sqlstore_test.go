package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ortelius/sbom-enricher/config"
	"github.com/ortelius/sbom-enricher/enricher"
	"github.com/ortelius/sbom-enricher/model"
	"github.com/ortelius/sbom-enricher/sbom"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error: %v", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if err := EnsureSQLSchema(ctx, db); err != nil {
		t.Fatal(err)
	}
	seed := []string{
		`INSERT INTO t_oss_id_purl_map (pk_purl, pk_oss_id) VALUES
			('pkg:npm/lodash@4.17.20', 'OSS-2'),
			('pkg:npm/lodash@4.17.20', 'OSS-1'),
			('pkg:pypi/requests@2.19.0', 'OSS-9')`,
		`INSERT INTO t_origin_vulnerability (oss_id, cve_id) VALUES
			('OSS-1', 'CVE-2021-23337'),
			('OSS-2', 'CVE-2020-8203'),
			('OSS-2', 'CVE-2021-23337'),
			('OSS-9', 'CVE-2018-18074')`,
	}
	for _, stmt := range seed {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seeding failed: %v", err)
		}
	}

	store, err := NewSQLStore(ctx, db)
	if err != nil {
		t.Fatalf("NewSQLStore() error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLStoreLookups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.IdentifiersFor(ctx, "pkg:npm/lodash@4.17.20")
	if err != nil {
		t.Fatalf("IdentifiersFor() error: %v", err)
	}
	if diff := cmp.Diff([]string{"OSS-1", "OSS-2"}, ids); diff != "" {
		t.Errorf("IdentifiersFor() mismatch (-want +got):\n%s", diff)
	}

	cves, err := store.CVEsFor(ctx, "OSS-2")
	if err != nil {
		t.Fatalf("CVEsFor() error: %v", err)
	}
	if diff := cmp.Diff([]string{"CVE-2020-8203", "CVE-2021-23337"}, cves); diff != "" {
		t.Errorf("CVEsFor() mismatch (-want +got):\n%s", diff)
	}

	none, err := store.IdentifiersFor(ctx, "pkg:npm/unknown@1.0.0")
	if err != nil || len(none) != 0 {
		t.Errorf("IdentifiersFor(unknown) = %v, %v; want no ids", none, err)
	}
}

func TestSQLStoreEnrich(t *testing.T) {
	store := newTestStore(t)
	doc := sbom.Assemble(model.RootMetadata{Name: "demo"}, []model.Component{
		{Type: "library", Name: "lodash", Version: "4.17.20", Purl: "pkg:npm/lodash@4.17.20"},
		{Type: "library", Name: "requests", Version: "2.19.0", Purl: "pkg:pypi/requests@2.19.0"},
	})

	if _, err := enricher.EnrichWith(context.Background(), store, doc, zap.NewNop()); err != nil {
		t.Fatalf("EnrichWith() error: %v", err)
	}

	var got []string
	for _, v := range doc.Vulnerabilities {
		got = append(got, v.Affects[0].Ref+" "+v.ID)
	}
	want := []string{
		"pkg:npm/lodash@4.17.20 CVE-2021-23337",
		"pkg:npm/lodash@4.17.20 CVE-2020-8203",
		"pkg:pypi/requests@2.19.0 CVE-2018-18074",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("vulnerabilities mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vuln.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if err := EnsureSQLSchema(ctx, db); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO t_oss_id_purl_map VALUES ('pkg:npm/a@1.0.0', 'OSS-A')`); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default().VulnDB
	cfg.Driver = config.DriverSQLite
	cfg.Path = path

	store, err := Open(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer store.Close()

	ids, err := store.IdentifiersFor(ctx, "pkg:npm/a@1.0.0")
	if err != nil {
		t.Fatalf("IdentifiersFor() error: %v", err)
	}
	if diff := cmp.Diff([]string{"OSS-A"}, ids); diff != "" {
		t.Errorf("IdentifiersFor() mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenSQLiteMissingTables(t *testing.T) {
	cfg := config.Default().VulnDB
	cfg.Driver = config.DriverSQLite
	cfg.Path = filepath.Join(t.TempDir(), "empty.db")

	if _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Error("Open() on a database without lookup tables expected error")
	}
}

func TestOpenOffline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vulndb.json")
	content := `{"mappings": [{"purl": "pkg:npm/a@1.0.0", "oss_id": "OSS-A"}], "vulnerabilities": [{"oss_id": "OSS-A", "cve_id": "CVE-1"}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default().VulnDB
	cfg.Driver = config.DriverOffline
	cfg.Path = path

	open := Opener(cfg, zap.NewNop())
	store, err := open(context.Background())
	if err != nil {
		t.Fatalf("Opener() error: %v", err)
	}
	got, err := enricher.Lookup(context.Background(), store, "pkg:npm/a@1.0.0")
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if diff := cmp.Diff([]string{"CVE-1"}, got); diff != "" {
		t.Errorf("Lookup() mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := config.Default().VulnDB
	cfg.Driver = "oracle"
	if _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Error("Open(unknown driver) expected error")
	}
}

func TestImportSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := enricher.ParseOfflineDB([]byte(`
mappings:
  - {purl: "pkg:npm/a@1.0.0", oss_id: OSS-A}
  - {purl: "pkg:npm/a@1.0.0", oss_id: OSS-B}
vulnerabilities:
  - {oss_id: OSS-A, cve_id: CVE-1, description: first}
  - {oss_id: OSS-B, cve_id: CVE-2}
`))
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default().VulnDB
	cfg.Driver = config.DriverSQLite
	cfg.Path = filepath.Join(t.TempDir(), "import.db")

	stats, err := Import(ctx, cfg, db, zap.NewNop())
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if diff := cmp.Diff(ImportStats{Mappings: 2, Vulnerabilities: 2}, stats); diff != "" {
		t.Errorf("first import mismatch (-want +got):\n%s", diff)
	}

	stats, err = Import(ctx, cfg, db, nil)
	if err != nil {
		t.Fatalf("second Import() error: %v", err)
	}
	if diff := cmp.Diff(ImportStats{}, stats); diff != "" {
		t.Errorf("second import should add nothing (-want +got):\n%s", diff)
	}

	store, err := Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer store.Close()
	got, err := enricher.Lookup(ctx, store, "pkg:npm/a@1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"CVE-1", "CVE-2"}, got); diff != "" {
		t.Errorf("Lookup() mismatch (-want +got):\n%s", diff)
	}
}

func TestImportOfflineDriver(t *testing.T) {
	cfg := config.Default().VulnDB
	cfg.Driver = config.DriverOffline
	if _, err := Import(context.Background(), cfg, &enricher.OfflineDB{}, nil); err == nil {
		t.Error("Import() into an offline store expected error")
	}
}
