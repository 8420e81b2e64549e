package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ortelius/sbom-enricher/model"
)

// EncodePURLComponent percent-encodes s using HTML form rules (unreserved characters are
// A-Z, a-z, 0-9 and ".-*_"), except that a space becomes %20 instead of "+".
// A literal "+" is encoded as %2B.
func EncodePURLComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
			b.WriteByte(c)
		case c == '.' || c == '-' || c == '*' || c == '_':
			b.WriteByte(c)
		case c == ' ':
			b.WriteString("%20")
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// EncodePURLName encodes a package name. The "/" namespace separator stays literal,
// so "@types/node" becomes "%40types/node".
func EncodePURLName(name string) string {
	return strings.ReplaceAll(EncodePURLComponent(name), "%2F", "/")
}

// pypiSeparators matches runs of the characters PEP 503 treats as equivalent
var pypiSeparators = regexp.MustCompile(`[-_.]+`)

// CanonicalName returns the spelling of name used for identity in the given ecosystem.
// PyPI names are lowercased and every run of "-", "_" and "." becomes a single "-".
func CanonicalName(ecosystem model.Ecosystem, name string) string {
	name = strings.TrimSpace(name)
	if ecosystem == model.EcosystemPyPI {
		return pypiSeparators.ReplaceAllString(strings.ToLower(name), "-")
	}
	return name
}

// CanonicalVersion trims whitespace and a "v" prefix that is directly followed by a digit.
func CanonicalVersion(version string) string {
	version = strings.TrimSpace(version)
	if len(version) > 1 && (version[0] == 'v' || version[0] == 'V') && version[1] >= '0' && version[1] <= '9' {
		return version[1:]
	}
	return version
}

// BuildPURL builds the canonical package URL pkg:<ecosystem>/<name>@<version>.
// Maven names of the form group:artifact become group/artifact.
func BuildPURL(ecosystem model.Ecosystem, name, version string) string {
	if ecosystem == "" {
		ecosystem = model.EcosystemNpm
	}
	name = CanonicalName(ecosystem, name)

	var encodedName string
	if group, artifact, ok := strings.Cut(name, ":"); ok && ecosystem == model.EcosystemMaven {
		encodedName = EncodePURLName(group) + "/" + EncodePURLName(artifact)
	} else {
		encodedName = EncodePURLName(name)
	}

	return "pkg:" + string(ecosystem) + "/" + encodedName + "@" + EncodePURLComponent(version)
}
