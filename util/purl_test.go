package util

import (
	"testing"

	"github.com/ortelius/sbom-enricher/model"
)

func TestBuildPURL(t *testing.T) {
	tests := []struct {
		name      string
		ecosystem model.Ecosystem
		pkg       string
		version   string
		want      string
	}{
		{
			name:      "plain npm",
			ecosystem: model.EcosystemNpm,
			pkg:       "foo",
			version:   "1.0.0",
			want:      "pkg:npm/foo@1.0.0",
		},
		{
			name:      "scoped npm keeps namespace separator",
			ecosystem: model.EcosystemNpm,
			pkg:       "@types/node",
			version:   "20.1.0",
			want:      "pkg:npm/%40types/node@20.1.0",
		},
		{
			name:      "spaces become %20",
			ecosystem: model.EcosystemNpm,
			pkg:       "my pkg",
			version:   "1.0 beta",
			want:      "pkg:npm/my%20pkg@1.0%20beta",
		},
		{
			name:      "literal plus is escaped",
			ecosystem: model.EcosystemNpm,
			pkg:       "a+b",
			version:   "1.0.0+build.1",
			want:      "pkg:npm/a%2Bb@1.0.0%2Bbuild.1",
		},
		{
			name:      "slash in version stays encoded",
			ecosystem: model.EcosystemNpm,
			pkg:       "x",
			version:   "git/main",
			want:      "pkg:npm/x@git%2Fmain",
		},
		{
			name:      "tilde is escaped",
			ecosystem: model.EcosystemNpm,
			pkg:       "x",
			version:   "~1.2",
			want:      "pkg:npm/x@%7E1.2",
		},
		{
			name:      "maven group and artifact",
			ecosystem: model.EcosystemMaven,
			pkg:       "org.apache.commons:commons-lang3",
			version:   "3.12.0",
			want:      "pkg:maven/org.apache.commons/commons-lang3@3.12.0",
		},
		{
			name:      "pypi name is canonicalized",
			ecosystem: model.EcosystemPyPI,
			pkg:       "Flask_Cors",
			version:   "4.0.0",
			want:      "pkg:pypi/flask-cors@4.0.0",
		},
		{
			name:      "pypi dots and separator runs collapse",
			ecosystem: model.EcosystemPyPI,
			pkg:       "Zope.Interface",
			version:   "6.0",
			want:      "pkg:pypi/zope-interface@6.0",
		},
		{
			name:      "pypi mixed separator run",
			ecosystem: model.EcosystemPyPI,
			pkg:       "jaraco._.functools",
			version:   "4.0.0",
			want:      "pkg:pypi/jaraco-functools@4.0.0",
		},
		{
			name:    "undeclared ecosystem defaults to npm",
			pkg:     "lodash",
			version: "4.17.21",
			want:    "pkg:npm/lodash@4.17.21",
		},
		{
			name:      "generic",
			ecosystem: model.EcosystemGeneric,
			pkg:       "zlib",
			version:   "1.3",
			want:      "pkg:generic/zlib@1.3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildPURL(tt.ecosystem, tt.pkg, tt.version)
			if got != tt.want {
				t.Errorf("BuildPURL(%q, %q, %q) = %q, want %q", tt.ecosystem, tt.pkg, tt.version, got, tt.want)
			}
			if again := BuildPURL(tt.ecosystem, tt.pkg, tt.version); again != got {
				t.Errorf("BuildPURL is not deterministic: %q then %q", got, again)
			}
		})
	}
}

func TestBuildPURLParsesBack(t *testing.T) {
	p, err := ParsePURL(BuildPURL(model.EcosystemNpm, "@babel/core", "7.23.0"))
	if err != nil {
		t.Fatalf("ParsePURL() error: %v", err)
	}
	if p.Namespace != "@babel" || p.Name != "core" || p.Version != "7.23.0" {
		t.Errorf("ParsePURL() = %+v, want namespace @babel, name core, version 7.23.0", p)
	}
}

func TestCanonicalVersion(t *testing.T) {
	tests := map[string]string{
		"v1.26.0":  "1.26.0",
		" 2.31.0 ": "2.31.0",
		"V3":       "3",
		"vendor":   "vendor",
		"v":        "v",
		"":         "",
	}
	for in, want := range tests {
		if got := CanonicalVersion(in); got != want {
			t.Errorf("CanonicalVersion(%q) = %q, want %q", in, got, want)
		}
	}
}
