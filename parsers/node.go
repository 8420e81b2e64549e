package parsers

import (
	"errors"
	"strings"

	"github.com/ortelius/sbom-enricher/model"
	"github.com/tidwall/gjson"
)

// PackageLockAdapter reads npm package-lock.json files.
// Entries are visited in document order so the first occurrence of a package wins downstream.
type PackageLockAdapter struct{}

// Name returns the manifest format handled by this adapter
func (a *PackageLockAdapter) Name() string {
	return "package-lock.json"
}

// Produce extracts the root metadata and dependency records from package-lock.json content
func (a *PackageLockAdapter) Produce(raw []byte) (*model.Manifest, error) {
	manifest := &model.Manifest{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return manifest, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("package-lock.json: invalid JSON")
	}

	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, errors.New("package-lock.json: top level is not an object")
	}

	manifest.Root = model.RootMetadata{
		Name:    doc.Get("name").String(),
		Version: doc.Get("version").String(),
	}

	var t tally
	packages := doc.Get("packages")
	if packages.IsObject() {
		// lockfileVersion 2 and 3
		packages.ForEach(func(key, value gjson.Result) bool {
			path := key.String()
			if path == "" {
				readRootEntry(value, &manifest.Root)
				return true
			}

			t.candidates++
			rec, ok := lockEntry(path, value)
			if !ok {
				t.malformed++
				return true
			}
			manifest.Records = append(manifest.Records, rec)
			return true
		})
	} else {
		// lockfileVersion 1 nests installed packages under "dependencies"
		walkLegacyDependencies(doc.Get("dependencies"), manifest, &t)
	}

	if err := t.check(a.Name()); err != nil {
		return nil, err
	}
	return manifest, nil
}

func readRootEntry(value gjson.Result, root *model.RootMetadata) {
	if !value.IsObject() {
		return
	}
	if root.Name == "" {
		root.Name = value.Get("name").String()
	}
	if root.Version == "" {
		root.Version = value.Get("version").String()
	}
	root.License = licenseOf(value.Get("license"))
}

func lockEntry(path string, value gjson.Result) (model.DependencyRecord, bool) {
	if !value.IsObject() {
		return model.DependencyRecord{}, false
	}

	name := strings.TrimSpace(value.Get("name").String())
	if name == "" {
		name = packageNameFromPath(path)
	}
	version := strings.TrimSpace(value.Get("version").String())
	if name == "" || version == "" {
		return model.DependencyRecord{}, false
	}

	return model.DependencyRecord{
		Name:        name,
		Version:     version,
		Ecosystem:   model.EcosystemNpm,
		ResolvedURL: value.Get("resolved").String(),
		Integrity:   value.Get("integrity").String(),
		License:     licenseOf(value.Get("license")),
		FundingURL:  fundingOf(value.Get("funding")),
	}, true
}

func walkLegacyDependencies(deps gjson.Result, manifest *model.Manifest, t *tally) {
	if !deps.IsObject() {
		return
	}
	deps.ForEach(func(key, value gjson.Result) bool {
		t.candidates++
		name := strings.TrimSpace(key.String())
		version := strings.TrimSpace(value.Get("version").String())
		if !value.IsObject() || name == "" || version == "" {
			t.malformed++
			return true
		}
		manifest.Records = append(manifest.Records, model.DependencyRecord{
			Name:        name,
			Version:     version,
			Ecosystem:   model.EcosystemNpm,
			ResolvedURL: value.Get("resolved").String(),
			Integrity:   value.Get("integrity").String(),
		})
		walkLegacyDependencies(value.Get("dependencies"), manifest, t)
		return true
	})
}

// packageNameFromPath strips everything up to the last node_modules/ segment,
// so "node_modules/a/node_modules/@scope/b" becomes "@scope/b".
func packageNameFromPath(path string) string {
	const marker = "node_modules/"
	if idx := strings.LastIndex(path, marker); idx >= 0 {
		return path[idx+len(marker):]
	}
	return path
}

// licenseOf accepts both "MIT" and the legacy {"type": "MIT"} form.
func licenseOf(v gjson.Result) string {
	switch {
	case v.Type == gjson.String:
		return strings.TrimSpace(v.String())
	case v.IsObject():
		return strings.TrimSpace(v.Get("type").String())
	}
	return ""
}

// fundingOf accepts a URL string, an object with a url, or a list of either.
func fundingOf(v gjson.Result) string {
	switch {
	case v.Type == gjson.String:
		return v.String()
	case v.IsObject():
		return v.Get("url").String()
	case v.IsArray():
		for _, item := range v.Array() {
			if url := fundingOf(item); url != "" {
				return url
			}
		}
	}
	return ""
}
