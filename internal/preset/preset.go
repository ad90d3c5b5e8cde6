// Package preset is the Preset Registry (spec §4.3): it classifies a
// source tree into a build preset by walking its file names, never its
// contents.
package preset

import (
	"os"
	"path/filepath"
	"strings"
)

// Kind identifies a detected build preset.
type Kind string

const (
	KindDockerfile Kind = "dockerfile"
	KindNextJS     Kind = "nextjs"
	KindVite       Kind = "vite"
	KindAstro      Kind = "astro"
	KindGo         Kind = "go"
	KindRust       Kind = "rust"
	KindPython     Kind = "python"
	KindNixpacks   Kind = "nixpacks"
	KindNone       Kind = ""
)

// PackageManager identifies the Node package manager a workspace uses.
type PackageManager string

const (
	PackageManagerPNPM PackageManager = "pnpm"
	PackageManagerNPM  PackageManager = "npm"
	PackageManagerYarn PackageManager = "yarn"
	PackageManagerBun  PackageManager = "bun"
)

// Detection is the result of classifying one directory.
type Detection struct {
	Kind           Kind
	Dir            string // path relative to the source root
	PackageManager PackageManager
}

var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	"static":       true,
	"public":       true,
	"out":          true,
}

// frameworkConfigs maps a framework-config filename glob to its Kind,
// checked in the priority order spec §4.3 names.
var frameworkConfigs = []struct {
	glob string
	kind Kind
}{
	{"next.config.*", KindNextJS},
	{"vite.config.*", KindVite},
	{"astro.config.*", KindAstro},
}

// languageMarkers maps a language-root marker filename to its Kind.
var languageMarkers = map[string]Kind{
	"Cargo.toml":        KindRust,
	"go.mod":            KindGo,
	"requirements.txt":  KindPython,
	"pyproject.toml":    KindPython,
}

const maxDepth = 4

// Detect walks root to depth 4, classifying every eligible directory and
// returning the deepest specific match. A match in a subdirectory beats a
// generic match at the root (spec §4.3).
func Detect(root string) (*Detection, error) {
	var best *Detection
	bestDepth := -1

	if err := walkDepthLimited(root, root, 0, func(dir string, depth int) {
		det := detectDir(root, dir)
		if det == nil {
			return
		}
		if depth > bestDepth {
			best = det
			bestDepth = depth
		}
	}); err != nil {
		return nil, err
	}

	if best == nil {
		return &Detection{Kind: KindNone}, nil
	}
	return best, nil
}

// DetectAll classifies every eligible directory in a monorepo, returning
// one Detection per independent app. Within a single ancestry chain the
// deepest specific match wins and suppresses its ancestors' matches;
// unrelated branches are each reported independently (spec §4.3, §8
// scenario 5).
func DetectAll(root string) ([]Detection, error) {
	var all []Detection

	if err := walkDepthLimited(root, root, 0, func(dir string, depth int) {
		if det := detectDir(root, dir); det != nil {
			all = append(all, *det)
		}
	}); err != nil {
		return nil, err
	}

	var kept []Detection
	for i, candidate := range all {
		suppressed := false
		for j, other := range all {
			if i == j {
				continue
			}
			if isDescendant(other.Dir, candidate.Dir) {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, candidate)
		}
	}
	return kept, nil
}

// isDescendant reports whether child is a strict descendant of ancestor in
// the source tree ("." is the root).
func isDescendant(child, ancestor string) bool {
	if ancestor == "." || ancestor == "" {
		return child != ancestor
	}
	return strings.HasPrefix(child, ancestor+string(filepath.Separator))
}

func detectDir(root, dir string) *Detection {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}

	rel, _ := filepath.Rel(root, dir)

	if names["Dockerfile"] {
		return &Detection{Kind: KindDockerfile, Dir: rel}
	}

	for _, fc := range frameworkConfigs {
		for name := range names {
			if globMatch(fc.glob, name) {
				return &Detection{Kind: fc.kind, Dir: rel, PackageManager: detectPackageManager(names)}
			}
		}
	}

	for marker, kind := range languageMarkers {
		if names[marker] {
			return &Detection{Kind: kind, Dir: rel}
		}
	}

	if names["nixpacks.toml"] {
		return &Detection{Kind: KindNixpacks, Dir: rel, PackageManager: detectPackageManager(names)}
	}

	return nil
}

// detectPackageManager implements the priority order pnpm > npm > yarn >
// bun, defaulting to npm (spec §4.3).
func detectPackageManager(names map[string]bool) PackageManager {
	if names["pnpm-lock.yaml"] {
		return PackageManagerPNPM
	}
	if names["package-lock.json"] {
		return PackageManagerNPM
	}
	if names["yarn.lock"] {
		return PackageManagerYarn
	}
	for name := range names {
		if strings.HasPrefix(name, "bun.lock") {
			return PackageManagerBun
		}
	}
	return PackageManagerNPM
}

func globMatch(pattern, name string) bool {
	ok, _ := filepath.Match(pattern, name)
	return ok
}

// walkDepthLimited visits dir and its subdirectories down to maxDepth
// (root itself is depth 0), skipping skipDirs, invoking visit on every
// directory including root.
func walkDepthLimited(root, dir string, depth int, visit func(dir string, depth int)) error {
	visit(dir, depth)
	if depth >= maxDepth {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	for _, e := range entries {
		if !e.IsDir() || skipDirs[e.Name()] {
			continue
		}
		if err := walkDepthLimited(root, filepath.Join(dir, e.Name()), depth+1, visit); err != nil {
			return err
		}
	}
	return nil
}
