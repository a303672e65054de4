package manifest

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"ratupdater/internal/failure"
	"ratupdater/internal/fsutil"
)

const Version = 1

// Manifest records which root-level paths the last successful extraction
// created. Paths are slash-separated and relative to the install root.
type Manifest struct {
	Name   string
	Paths  Set
	exists bool
}

// Exists reports whether the manifest was read from disk.
func (m Manifest) Exists() bool { return m.exists }

// Has reports whether rel (a root-relative path) is a managed path.
func (m Manifest) Has(rel string) bool {
	return m.Paths.Has(filepath.ToSlash(rel))
}

// HasFold is Has with names compared case-insensitively.
func (m Manifest) HasFold(rel string) bool {
	rel = filepath.ToSlash(rel)
	if m.Paths.Has(rel) {
		return true
	}
	for p := range m.Paths {
		if strings.EqualFold(p, rel) {
			return true
		}
	}
	return false
}

type document struct {
	Version int      `toml:"version"`
	Paths   []string `toml:"paths"`
}

func Path(root, name string) string {
	return filepath.Join(root, name)
}

func Load(root, name string) (Manifest, error) {
	p := Path(root, name)
	blob, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{Name: name, Paths: Set{}}, nil
		}
		return Manifest{}, failure.New(failure.ManifestCorrupt, "read "+p, err)
	}
	var doc document
	if err := toml.Unmarshal(blob, &doc); err != nil {
		return Manifest{}, failure.New(failure.ManifestCorrupt, "parse "+p, err)
	}
	if doc.Version == 0 {
		return Manifest{}, failure.Errorf(failure.ManifestCorrupt, "parse "+p, "missing manifest version")
	}
	if doc.Version != Version {
		return Manifest{}, failure.Errorf(failure.ManifestCorrupt, "parse "+p, "unsupported manifest version %d", doc.Version)
	}
	set := Set{}
	for _, rel := range doc.Paths {
		clean, ok := cleanRel(rel)
		if !ok {
			return Manifest{}, failure.Errorf(failure.ManifestCorrupt, "parse "+p, "invalid path %q", rel)
		}
		set.Add(clean)
	}
	return Manifest{Name: name, Paths: set, exists: true}, nil
}

// Save stores created plus the manifest's own name and returns what was written.
func Save(root, name string, created Set) (Manifest, error) {
	set := created.Union(Set{})
	set.Add(name)
	doc := document{Version: Version, Paths: set.Sorted()}
	blob, err := toml.Marshal(doc)
	if err != nil {
		return Manifest{}, failure.New(failure.ManifestSaveFailed, "encode manifest", err)
	}
	p := Path(root, name)
	if err := fsutil.AtomicWrite(p, blob, 0o644); err != nil {
		return Manifest{}, failure.New(failure.ManifestSaveFailed, "write "+p, err)
	}
	return Manifest{Name: name, Paths: set, exists: true}, nil
}

func cleanRel(rel string) (string, bool) {
	rel = strings.ReplaceAll(strings.TrimSpace(rel), `\`, "/")
	if rel == "" || path.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", false
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}

func (m Manifest) String() string {
	return fmt.Sprintf("%s%v", m.Name, m.Paths.Sorted())
}
