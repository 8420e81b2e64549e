package sbom

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ortelius/sbom-enricher/model"
)

// Document format literals
const (
	BOMFormat       = "CycloneDX"
	SpecVersion     = "1.4"
	DocumentVersion = 1
)

// Defaults for a project that does not declare its own name or version
const (
	DefaultRootName    = "unknown"
	DefaultRootVersion = "0.0.0"
)

type assembleOptions struct {
	serialNumber  string
	timestamp     time.Time
	generatedFrom string
}

// Option customizes Assemble
type Option func(*assembleOptions)

// WithSerialNumber uses serial instead of generating a new one. Blank values are ignored.
func WithSerialNumber(serial string) Option {
	return func(o *assembleOptions) {
		if s := strings.TrimSpace(serial); s != "" {
			o.serialNumber = s
		}
	}
}

// WithTimestamp sets metadata.timestamp. The zero time omits it.
func WithTimestamp(ts time.Time) Option {
	return func(o *assembleOptions) {
		o.timestamp = ts
	}
}

// WithGeneratedFrom records the manifest path the document was built from
func WithGeneratedFrom(path string) Option {
	return func(o *assembleOptions) {
		o.generatedFrom = path
	}
}

// NewSerialNumber returns a random urn:uuid serial number
func NewSerialNumber() string {
	return "urn:uuid:" + uuid.NewString()
}

// Assemble builds an SBOM for the project described by root with the given components.
// The serial number is fixed at assembly time and stored in the document.
func Assemble(root model.RootMetadata, components []model.Component, opts ...Option) *model.SBOM {
	o := assembleOptions{timestamp: time.Now().UTC()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.serialNumber == "" {
		o.serialNumber = NewSerialNumber()
	}

	if components == nil {
		components = []model.Component{}
	}

	doc := &model.SBOM{
		BOMFormat:    BOMFormat,
		SpecVersion:  SpecVersion,
		Version:      DocumentVersion,
		SerialNumber: o.serialNumber,
		Metadata: model.Metadata{
			Component: model.Component{
				Type:     model.ComponentTypeApplication,
				Name:     orDefault(root.Name, DefaultRootName),
				Version:  orDefault(root.Version, DefaultRootVersion),
				Licenses: model.NewLicenses(strings.TrimSpace(root.License)),
			},
			GeneratedFrom: o.generatedFrom,
		},
		Components: components,
	}
	if !o.timestamp.IsZero() {
		doc.Metadata.Timestamp = o.timestamp.Format(time.RFC3339)
	}
	return doc
}

func orDefault(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}
