// Package detect discovers the framework a project is built on and the AI
// coding agents configured in it. Scanning is the only I/O: it collects
// file paths and manifest dependencies into Signatures, and Detect maps
// those signatures through a static rule table. A project that defeats
// detection still installs generic content, so scan failures degrade
// instead of propagating.
package detect

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/loadout-sh/loadout/pkg/logger"
)

// maxScanDepth bounds the project walk. Markers that matter live near the
// root; deep trees are dependency or build output.
const maxScanDepth = 4

// skipDirs are never descended into during a scan.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".next":        true,
	".venv":        true,
	".tox":         true,
}

// Signatures is the raw evidence a scan gathers from a project: relative
// paths (files and directories, slash-separated) and the manifest
// dependency set. Detection consumes Signatures without touching the
// filesystem again.
type Signatures struct {
	Root  string            `json:"root"`
	Paths []string          `json:"paths"`
	Deps  map[string]string `json:"deps,omitempty"`
}

// HasPath reports whether the exact relative path was seen during the scan.
func (s Signatures) HasPath(path string) bool {
	for _, p := range s.Paths {
		if p == path {
			return true
		}
	}
	return false
}

// Scan walks a project root and collects detection signatures. Unreadable
// subtrees and malformed manifests are logged and skipped; only a root
// that cannot be walked at all is an error.
func Scan(ctx context.Context, root string) (Signatures, error) {
	log := logger.G(ctx).WithField("root", root)

	info, err := os.Stat(root)
	if err != nil {
		return Signatures{}, errors.Wrapf(err, "failed to scan project root %s", root)
	}
	if !info.IsDir() {
		return Signatures{}, errors.Errorf("project root %s is not a directory", root)
	}

	sig := Signatures{Root: root}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.WithError(err).WithField("path", path).Debug("skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			if strings.Count(rel, "/")+1 >= maxScanDepth {
				sig.Paths = append(sig.Paths, rel)
				return filepath.SkipDir
			}
		}

		sig.Paths = append(sig.Paths, rel)
		return nil
	})
	if err != nil {
		return Signatures{}, errors.Wrapf(err, "failed to scan project root %s", root)
	}
	sort.Strings(sig.Paths)

	sig.Deps = readManifestDeps(ctx, root)

	log.WithField("paths", len(sig.Paths)).WithField("deps", len(sig.Deps)).Debug("project scan complete")
	return sig, nil
}

// readManifestDeps extracts the dependency names from package.json.
// A missing or malformed manifest yields no dependencies rather than an
// error.
func readManifestDeps(ctx context.Context, root string) map[string]string {
	manifestPath := filepath.Join(root, "package.json")
	content, err := os.ReadFile(manifestPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.G(ctx).WithError(err).Warn("failed to read package.json")
		}
		return nil
	}

	var manifest struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(content, &manifest); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to parse package.json, skipping dependency detection")
		return nil
	}

	deps := make(map[string]string, len(manifest.Dependencies)+len(manifest.DevDependencies))
	for name, version := range manifest.Dependencies {
		deps[name] = version
	}
	for name, version := range manifest.DevDependencies {
		deps[name] = version
	}
	return deps
}
