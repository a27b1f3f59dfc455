package catalog

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// Loader assembles a catalog from artifact documents. Documents are
// markdown files: YAML frontmatter carries the artifact record, the body
// is the installable content.
type Loader struct {
	dirs     []string
	builtin  fs.FS
	excludes []string
}

// LoaderOption is a function that configures a Loader
type LoaderOption func(*Loader) error

// WithDirs adds user catalog directories. Earlier directories win when the
// same artifact id appears more than once, and every user directory
// overrides the builtin set.
func WithDirs(dirs ...string) LoaderOption {
	return func(l *Loader) error {
		l.dirs = append(l.dirs, dirs...)
		return nil
	}
}

// WithBuiltin replaces the embedded builtin document set. Passing nil
// disables builtin artifacts entirely.
func WithBuiltin(fsys fs.FS) LoaderOption {
	return func(l *Loader) error {
		l.builtin = fsys
		return nil
	}
}

// WithExcludes filters artifacts out by id. Patterns containing glob
// metacharacters are compiled with gobwas/glob; anything else is an exact
// match.
func WithExcludes(patterns ...string) LoaderOption {
	return func(l *Loader) error {
		l.excludes = append(l.excludes, patterns...)
		return nil
	}
}

// Load builds and validates a catalog. With no options it loads the
// builtin document set only.
func Load(opts ...LoaderOption) (*Catalog, error) {
	l := &Loader{builtin: Builtin()}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	artifacts, err := l.collect()
	if err != nil {
		return nil, err
	}

	artifacts, err = l.applyExcludes(artifacts)
	if err != nil {
		return nil, err
	}

	return New(artifacts)
}

// collect gathers artifacts in declaration order: the builtin documents
// first, then user-directory documents. A user document with a builtin id
// replaces it in place so the declared ordering survives overrides; new
// ids append after the builtin set.
func (l *Loader) collect() ([]Artifact, error) {
	var ordered []Artifact
	index := make(map[string]int)

	if l.builtin != nil {
		builtin, err := loadFS(l.builtin, "builtin")
		if err != nil {
			return nil, errors.Wrap(err, "failed to load builtin catalog")
		}
		for _, a := range builtin {
			index[a.ID] = len(ordered)
			ordered = append(ordered, a)
		}
	}

	overridden := make(map[string]bool)
	for _, dir := range l.dirs {
		docs, err := loadDir(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load catalog dir %s", dir)
		}
		for _, a := range docs {
			pos, exists := index[a.ID]
			switch {
			case exists && overridden[a.ID]:
				// An earlier user dir already claimed this id.
			case exists:
				ordered[pos] = a
				overridden[a.ID] = true
			default:
				index[a.ID] = len(ordered)
				overridden[a.ID] = true
				ordered = append(ordered, a)
			}
		}
	}

	return ordered, nil
}

func (l *Loader) applyExcludes(artifacts []Artifact) ([]Artifact, error) {
	if len(l.excludes) == 0 {
		return artifacts, nil
	}

	exact := make(map[string]bool)
	var patterns []glob.Glob
	for _, p := range l.excludes {
		if strings.ContainsAny(p, "*?[") {
			compiled, err := glob.Compile(p)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid exclude pattern %q", p)
			}
			patterns = append(patterns, compiled)
		} else {
			exact[p] = true
		}
	}

	kept := make([]Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		if exact[a.ID] {
			continue
		}
		excluded := false
		for _, p := range patterns {
			if p.Match(a.ID) {
				excluded = true
				break
			}
		}
		if !excluded {
			kept = append(kept, a)
		}
	}
	return kept, nil
}

// loadFS parses every markdown document in a filesystem in lexical path
// order, which defines builtin declaration order.
func loadFS(fsys fs.FS, source string) ([]Artifact, error) {
	var paths []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	artifacts := make([]Artifact, 0, len(paths))
	for _, path := range paths {
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
		artifact, err := ParseDocument(content)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", path)
		}
		artifact.Source = source
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// loadDir parses every markdown document in a directory in lexical name
// order. A missing directory is not an error so config can list dirs that
// only exist in some projects.
func loadDir(dir string) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".md") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	artifacts := make([]Artifact, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
		artifact, err := ParseDocument(content)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", path)
		}
		artifact.Source = path
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// documentMeta is the frontmatter schema of an artifact document.
type documentMeta struct {
	Name        string   `mapstructure:"name"`
	Description string   `mapstructure:"description"`
	Cost        int      `mapstructure:"cost"`
	Tier        int      `mapstructure:"tier"`
	Category    string   `mapstructure:"category"`
	Framework   string   `mapstructure:"framework"`
	Triggers    []string `mapstructure:"triggers"`
}

// ParseDocument parses a single artifact document: YAML frontmatter into
// the artifact record, the remaining body into Content.
func ParseDocument(content []byte) (Artifact, error) {
	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()

	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return Artifact{}, errors.Wrap(err, "failed to parse markdown")
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return Artifact{}, errors.New("missing frontmatter")
	}

	var fm documentMeta
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &fm,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Artifact{}, errors.Wrap(err, "failed to create frontmatter decoder")
	}
	if err := decoder.Decode(metaData); err != nil {
		return Artifact{}, errors.Wrap(err, "invalid frontmatter")
	}

	if fm.Name == "" {
		return Artifact{}, errors.New("artifact name is required in frontmatter")
	}

	return Artifact{
		ID:        fm.Name,
		Summary:   fm.Description,
		Cost:      fm.Cost,
		Tier:      fm.Tier,
		Category:  Category(fm.Category),
		Framework: fm.Framework,
		Triggers:  fm.Triggers,
		Content:   extractBodyContent(string(content)),
	}, nil
}

// extractBodyContent removes YAML frontmatter and returns the body
func extractBodyContent(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	frontmatterEnd := -1

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			frontmatterEnd = i
			break
		}
	}

	if frontmatterEnd == -1 {
		return content
	}

	return strings.TrimLeft(strings.Join(lines[frontmatterEnd+1:], "\n"), "\n")
}
