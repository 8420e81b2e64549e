package parsers

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ortelius/sbom-enricher/model"
)

// pyproject represents the parts of pyproject.toml we read
type pyproject struct {
	Project struct {
		Name         string      `toml:"name"`
		Version      string      `toml:"version"`
		License      interface{} `toml:"license"`
		Dependencies []string    `toml:"dependencies"`
	} `toml:"project"`
}

// PyProjectAdapter reads the [project] table of pyproject.toml.
// It is the offline fallback for uv tree, so only dependencies pinned with "==" are kept.
type PyProjectAdapter struct{}

// Name returns the manifest format handled by this adapter
func (a *PyProjectAdapter) Name() string {
	return "pyproject.toml"
}

// Produce extracts the project metadata and the exactly pinned dependencies
func (a *PyProjectAdapter) Produce(raw []byte) (*model.Manifest, error) {
	var proj pyproject
	if err := toml.Unmarshal(raw, &proj); err != nil {
		return nil, fmt.Errorf("failed to parse pyproject.toml: %w", err)
	}

	manifest := &model.Manifest{Root: projectRoot(proj)}
	for _, req := range proj.Project.Dependencies {
		name, version, ok := parsePinned(req)
		if !ok {
			continue
		}
		manifest.Records = append(manifest.Records, model.DependencyRecord{
			Name:      name,
			Version:   version,
			Ecosystem: model.EcosystemPyPI,
		})
	}
	return manifest, nil
}

// ReadPyProjectRoot returns the project name, version and license declared in pyproject.toml
func ReadPyProjectRoot(raw []byte) (model.RootMetadata, error) {
	var proj pyproject
	if err := toml.Unmarshal(raw, &proj); err != nil {
		return model.RootMetadata{}, fmt.Errorf("failed to parse pyproject.toml: %w", err)
	}
	return projectRoot(proj), nil
}

func projectRoot(proj pyproject) model.RootMetadata {
	root := model.RootMetadata{
		Name:    strings.TrimSpace(proj.Project.Name),
		Version: strings.TrimSpace(proj.Project.Version),
	}
	// PEP 621 allows license = "MIT" or license = { text = "MIT" }
	switch l := proj.Project.License.(type) {
	case string:
		root.License = strings.TrimSpace(l)
	case map[string]interface{}:
		if text, ok := l["text"].(string); ok {
			root.License = strings.TrimSpace(text)
		}
	}
	return root
}

// parsePinned splits a PEP 508 requirement of the form name==version.
// Ranges, wildcards and unpinned requirements are rejected.
func parsePinned(req string) (name, version string, ok bool) {
	if idx := strings.Index(req, ";"); idx >= 0 {
		req = req[:idx]
	}
	if strings.Contains(req, "===") || strings.Contains(req, ",") {
		return "", "", false
	}

	name, version, found := strings.Cut(req, "==")
	if !found {
		return "", "", false
	}
	if idx := strings.Index(name, "["); idx >= 0 {
		name = name[:idx]
	}
	name = strings.TrimSpace(name)
	version = strings.TrimSpace(version)
	if name == "" || version == "" || strings.ContainsAny(version, "*<>=!~ ") {
		return "", "", false
	}
	return name, version, true
}
