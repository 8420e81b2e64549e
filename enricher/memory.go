package enricher

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/ortelius/sbom-enricher/model"
	"gopkg.in/yaml.v2"
)

// MemoryStore is an in-memory VulnStore. It is safe for concurrent use
// and keeps identifiers and CVEs in insertion order.
type MemoryStore struct {
	mu   sync.RWMutex
	ids  map[string][]string // purl -> oss ids
	cves map[string][]string // oss id -> cve ids
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ids:  make(map[string][]string),
		cves: make(map[string][]string),
	}
}

// AddMapping links purl to an internal OSS id
func (m *MemoryStore) AddMapping(purl, ossID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[purl] = appendUnique(m.ids[purl], ossID)
}

// AddVulnerability records a CVE for an internal OSS id
func (m *MemoryStore) AddVulnerability(ossID, cveID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cves[ossID] = appendUnique(m.cves[ossID], cveID)
}

// IdentifiersFor returns the OSS ids mapped to purl
func (m *MemoryStore) IdentifiersFor(_ context.Context, purl string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.ids[purl]...), nil
}

// CVEsFor returns the CVEs recorded for ossID
func (m *MemoryStore) CVEsFor(_ context.Context, ossID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.cves[ossID]...), nil
}

// Close is a no-op; the data stays available so a shared store can be opened again.
func (m *MemoryStore) Close() error {
	return nil
}

// Opener returns an OpenFunc that always hands out this store
func (m *MemoryStore) Opener() OpenFunc {
	return func(context.Context) (VulnStore, error) {
		return m, nil
	}
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

// OfflineDB is the layout of an offline vulnerability database file
type OfflineDB struct {
	Mappings        []model.OssPurlMapping   `yaml:"mappings"`
	Vulnerabilities []model.OssVulnerability `yaml:"vulnerabilities"`
}

// ParseOfflineDB decodes YAML (or JSON) content of the form
//
//	mappings:
//	  - purl: pkg:npm/lodash@4.17.20
//	    oss_id: OSS-1
//	vulnerabilities:
//	  - oss_id: OSS-1
//	    cve_id: CVE-2021-23337
func ParseOfflineDB(data []byte) (*OfflineDB, error) {
	var db OfflineDB
	if err := yaml.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("failed to parse offline vulnerability database: %w", err)
	}
	for i, m := range db.Mappings {
		if m.Purl == "" || m.OssID == "" {
			return nil, fmt.Errorf("mapping %d: purl and oss_id are required", i)
		}
	}
	for i, v := range db.Vulnerabilities {
		if v.OssID == "" || v.CveID == "" {
			return nil, fmt.Errorf("vulnerability %d: oss_id and cve_id are required", i)
		}
	}
	return &db, nil
}

// ReadOfflineDB reads and decodes an offline vulnerability database file
func ReadOfflineDB(path string) (*OfflineDB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read offline vulnerability database: %w", err)
	}
	return ParseOfflineDB(data)
}

// Store loads the records into a new MemoryStore
func (db *OfflineDB) Store() *MemoryStore {
	store := NewMemoryStore()
	for _, m := range db.Mappings {
		store.AddMapping(m.Purl, m.OssID)
	}
	for _, v := range db.Vulnerabilities {
		store.AddVulnerability(v.OssID, v.CveID)
	}
	return store
}

// ParseOfflineStore builds a MemoryStore from offline database content
func ParseOfflineStore(data []byte) (*MemoryStore, error) {
	db, err := ParseOfflineDB(data)
	if err != nil {
		return nil, err
	}
	return db.Store(), nil
}

// LoadOfflineStore reads an offline vulnerability database file into a MemoryStore
func LoadOfflineStore(path string) (*MemoryStore, error) {
	db, err := ReadOfflineDB(path)
	if err != nil {
		return nil, err
	}
	return db.Store(), nil
}
