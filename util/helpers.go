// Package util provides shared helpers for the sbom-enricher: environment handling,
// file lookup, package URL encoding and external command execution.
package util

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/package-url/packageurl-go"
)

// GetEnvDefault is a convenience function for handling env vars
func GetEnvDefault(key, defVal string) string {
	val, ex := os.LookupEnv(key) // get the env var
	if !ex {                     // not found return default
		return defVal
	}
	return val // return value for env var
}

// IsEmpty checks if a string is empty or contains only whitespace
func IsEmpty(s string) bool {
	return len(strings.TrimSpace(s)) == 0
}

// FileExists checks if a file exists
func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}

// Contains checks if a string slice contains an item
func Contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// FindFile finds the first existing file from a list of candidates
func FindFile(candidates []string) string {
	for _, candidate := range candidates {
		if FileExists(candidate) {
			return candidate
		}
	}
	return ""
}

// FindFileIn finds the first existing file named in candidates inside dir
func FindFileIn(dir string, candidates []string) string {
	paths := make([]string, 0, len(candidates))
	for _, c := range candidates {
		paths = append(paths, filepath.Join(dir, c))
	}
	return FindFile(paths)
}

// GetStringOrDefault returns value or default if empty
func GetStringOrDefault(value, defaultValue string) string {
	if IsEmpty(value) {
		return defaultValue
	}
	return value
}

// ParsePURL parses a PURL string and returns the parsed PackageURL
func ParsePURL(purlStr string) (*packageurl.PackageURL, error) {
	parsed, err := packageurl.FromString(purlStr)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// GetBasePURL removes the version component from a PURL to create a base package identifier
// Example: pkg:npm/lodash@4.17.20 -> pkg:npm/lodash
func GetBasePURL(purlStr string) (string, error) {
	parsed, err := packageurl.FromString(purlStr)
	if err != nil {
		return "", err
	}

	// Create new PURL without version, qualifiers, and subpath
	base := packageurl.PackageURL{
		Type:      parsed.Type,
		Namespace: parsed.Namespace,
		Name:      parsed.Name,
	}

	return base.ToString(), nil
}

// EcosystemToPurlType converts an ecosystem tag as it appears in SBOM properties
// or OSV records to a PURL type. Unknown tags map to the empty string.
func EcosystemToPurlType(ecosystem string) string {
	mapping := map[string]string{
		"npm":       "npm",
		"pypi":      "pypi",
		"python":    "pypi",
		"maven":     "maven",
		"mvn":       "maven",
		"nuget":     "nuget",
		"go":        "golang",
		"golang":    "golang",
		"rubygems":  "gem",
		"crates.io": "cargo",
		"cargo":     "cargo",
		"packagist": "composer",
		"generic":   "generic",
	}
	return mapping[strings.ToLower(strings.TrimSpace(ecosystem))]
}
