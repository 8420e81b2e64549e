package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ortelius/sbom-enricher/util"
)

// ProjectType names a kind of project the scanner can build an SBOM for
type ProjectType string

const (
	// ProjectNpm is a Node.js project with a package-lock.json
	ProjectNpm ProjectType = "npm"
	// ProjectPython is a Python project managed with uv
	ProjectPython ProjectType = "python"
)

// maxDetectDepth is how far below the given directory Detect looks for a project.
// Uploaded archives often wrap the project in one or two extra folders.
const maxDetectDepth = 4

// Manifest file names per project type, in order of preference
var (
	NpmManifests    = []string{"package-lock.json", "package_lock.json"}
	PythonManifests = []string{"pyproject.toml", "uv.lock"}
)

var skipDirs = []string{"node_modules", ".git", ".venv", "venv", "__pycache__", "__MACOSX"}

// ErrNoProject is returned when no supported manifest is found
var ErrNoProject = errors.New("no supported project found")

// Detection describes the project found by Detect
type Detection struct {
	Root     string                   // directory holding the manifests
	Types    []ProjectType            // detected project types, npm first
	Evidence map[ProjectType][]string // manifest files found per type
}

// Detect finds the project root below dir: dir itself when it holds a manifest,
// otherwise the shallowest subdirectory (up to four levels down) that does.
func Detect(dir string) (*Detection, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	if d := detectIn(dir); d != nil {
		return d, nil
	}

	var best *Detection
	bestDepth := maxDetectDepth + 1
	err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtrees are ignored
			return fs.SkipDir
		}
		if !entry.IsDir() || path == dir {
			return nil
		}
		if util.Contains(skipDirs, entry.Name()) {
			return fs.SkipDir
		}

		rel, _ := filepath.Rel(dir, path)
		depth := len(strings.Split(rel, string(filepath.Separator)))
		if depth > maxDetectDepth || depth >= bestDepth {
			return fs.SkipDir
		}

		if d := detectIn(path); d != nil {
			best, bestDepth = d, depth
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, fmt.Errorf("%w in %s", ErrNoProject, dir)
	}
	return best, nil
}

func detectIn(dir string) *Detection {
	d := &Detection{Root: dir, Evidence: make(map[ProjectType][]string)}
	for _, kind := range []ProjectType{ProjectNpm, ProjectPython} {
		for _, name := range manifestsFor(kind) {
			if util.FileExists(filepath.Join(dir, name)) {
				d.Evidence[kind] = append(d.Evidence[kind], name)
			}
		}
		if len(d.Evidence[kind]) > 0 {
			d.Types = append(d.Types, kind)
		}
	}
	if len(d.Types) == 0 {
		return nil
	}
	return d
}

func manifestsFor(kind ProjectType) []string {
	if kind == ProjectPython {
		return PythonManifests
	}
	return NpmManifests
}

// Has reports whether the detected project is of the given type
func (d *Detection) Has(kind ProjectType) bool {
	for _, t := range d.Types {
		if t == kind {
			return true
		}
	}
	return false
}

// Manifest returns the path of the preferred manifest for kind, or "" when there is none
func (d *Detection) Manifest(kind ProjectType) string {
	return util.FindFileIn(d.Root, manifestsFor(kind))
}
