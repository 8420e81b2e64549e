package model

// Document types stored in the objtype field
const (
	ObjTypeOssPurlMapping   = "OssPurlMapping"
	ObjTypeOssVulnerability = "OssVulnerability"
)

// OssPurlMapping links a package URL to an internal OSS identifier.
// A purl may map to several identifiers when the store tracks aliases.
type OssPurlMapping struct {
	Key     string `json:"_key,omitempty" yaml:"-"`
	Purl    string `json:"purl" yaml:"purl"` // full purl including version (e.g., pkg:npm/lodash@4.17.20)
	OssID   string `json:"oss_id" yaml:"oss_id"`
	ObjType string `json:"objtype,omitempty" yaml:"-"`
}

// OssVulnerability links an internal OSS identifier to a CVE.
type OssVulnerability struct {
	Key         string `json:"_key,omitempty" yaml:"-"`
	OssID       string `json:"oss_id" yaml:"oss_id"`
	CveID       string `json:"cve_id" yaml:"cve_id"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	ObjType     string `json:"objtype,omitempty" yaml:"-"`
}
