package install

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"ratupdater/internal/failure"
	"ratupdater/internal/fsutil"
	"ratupdater/internal/manifest"
)

// Layout names the managed directories and files inside an install root.
type Layout struct {
	Root           string
	BackupName     string
	QuarantineName string
	ManifestName   string
	// Keep lists root-relative paths that are never moved.
	Keep []string
	// Names decides how entry names compare; nil uses the host filesystem.
	Names fsutil.Names
}

func (l Layout) BackupDir() string     { return filepath.Join(l.Root, l.BackupName) }
func (l Layout) QuarantineDir() string { return filepath.Join(l.Root, l.QuarantineName) }
func (l Layout) ManifestPath() string  { return filepath.Join(l.Root, l.ManifestName) }

// EnsureRoot creates the install root if needed and checks it is a directory.
func (l Layout) EnsureRoot() error {
	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return failure.New(failure.RootSetupFailed, "create "+l.Root, err)
	}
	info, err := os.Stat(l.Root)
	if err != nil {
		return failure.New(failure.RootSetupFailed, "stat "+l.Root, err)
	}
	if !info.IsDir() {
		return failure.Errorf(failure.RootSetupFailed, "stat "+l.Root, "not a directory")
	}
	return nil
}

// Kept reports whether the top-level entry name is covered by the keep list,
// either directly or because a kept path lives beneath it.
func (l Layout) Kept(name string) bool {
	for _, k := range l.Keep {
		k = path.Clean(strings.ReplaceAll(k, `\`, "/"))
		if i := strings.IndexByte(k, '/'); i >= 0 {
			k = k[:i]
		}
		if fsutil.SameName(l.Names, k, name) {
			return true
		}
	}
	return false
}

// Known reports whether m lists the top-level entry name.
func (l Layout) Known(m manifest.Manifest, name string) bool {
	names := l.Names
	if names == nil {
		names = fsutil.HostNames
	}
	if names.CaseSensitive() {
		return m.Has(name)
	}
	return m.HasFold(name)
}

// managedDir reports whether name is one of the layout's own directories.
func (l Layout) managedDir(name string) bool {
	return fsutil.SameName(l.Names, name, l.BackupName) || fsutil.SameName(l.Names, name, l.QuarantineName)
}
