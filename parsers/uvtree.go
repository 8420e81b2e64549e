package parsers

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ortelius/sbom-enricher/model"
	"github.com/ortelius/sbom-enricher/util"
)

// treeLinePattern matches "name version" after the tree glyphs have been removed.
// Extras such as requests[socks] are accepted and dropped.
var treeLinePattern = regexp.MustCompile(`^([A-Za-z0-9_.\-]+)(?:\[[^\]]*\])?\s+(v?\d[A-Za-z0-9_.\-+!]*)$`)

// treeAnnotationPattern matches the trailing markers uv adds to repeated or optional nodes.
var treeAnnotationPattern = regexp.MustCompile(`\s+\((?:\*|extra:[^)]*|group:[^)]*)\)`)

const treeGlyphs = "├└│┊─ \t"

// treeBranchGlyphs start every dependency line below a root
const treeBranchGlyphs = "├└│┊"

// uv prints progress and warnings on the same stream as the tree
var treeInfoPrefixes = []string{"Resolved ", "Using ", "Audited ", "warning:", "Warning:"}

// excluded names are the interpreter and the tool that produced the tree
var treeExcludedNames = []string{"python", "uv"}

// UvTreeAdapter reads the text output of `uv tree`.
// Every record belongs to PyPI.
type UvTreeAdapter struct {
	// ProjectName is the scanned project's own name; its root line is not a dependency.
	ProjectName string
}

// Name returns the manifest format handled by this adapter
func (a *UvTreeAdapter) Name() string {
	return "uv tree"
}

// Produce extracts dependency records from dependency tree text
func (a *UvTreeAdapter) Produce(raw []byte) (*model.Manifest, error) {
	manifest := &model.Manifest{}
	project := util.CanonicalName(model.EcosystemPyPI, a.ProjectName)

	// in a tree, lines without a branch glyph are the project roots
	isTree := bytes.ContainsAny(raw, treeBranchGlyphs)

	var t tally
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if skipTreeLine(line) {
			continue
		}

		isRoot := isTree && !startsWithBranch(line)

		line = treeAnnotationPattern.ReplaceAllString(line, "")
		line = strings.TrimLeft(line, treeGlyphs)
		if line == "" {
			continue
		}

		t.candidates++
		matches := treeLinePattern.FindStringSubmatch(line)
		if matches == nil {
			t.malformed++
			continue
		}

		name, version := matches[1], util.CanonicalVersion(matches[2])
		canonical := util.CanonicalName(model.EcosystemPyPI, name)
		if isRoot || (project != "" && canonical == project) {
			continue
		}
		if util.Contains(treeExcludedNames, canonical) {
			continue
		}

		manifest.Records = append(manifest.Records, model.DependencyRecord{
			Name:      name,
			Version:   version,
			Ecosystem: model.EcosystemPyPI,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if err := t.check(a.Name()); err != nil {
		return nil, err
	}
	return manifest, nil
}

func skipTreeLine(line string) bool {
	if line == "" || strings.HasPrefix(line, "#") || strings.Contains(line, "->") {
		return true
	}
	for _, prefix := range treeInfoPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func startsWithBranch(line string) bool {
	r, _ := utf8.DecodeRuneInString(line)
	return strings.ContainsRune(treeBranchGlyphs, r)
}
