package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"ratupdater/internal/failure"
	"ratupdater/internal/fsutil"
	"ratupdater/internal/manifest"
)

// Source is a fully buffered package with a known length.
type Source interface {
	io.ReaderAt
	Size() int64
}

type Format string

const (
	FormatZip   Format = "zip"
	FormatTarGz Format = "tar.gz"
)

var (
	zipMagic      = []byte("PK\x03\x04")
	zipEmptyMagic = []byte("PK\x05\x06")
	gzipMagic     = []byte{0x1f, 0x8b}
)

// DetectFormat sniffs the package header.
func DetectFormat(src Source) (Format, error) {
	if src.Size() < 2 {
		return "", errors.New("archive is empty or truncated")
	}
	head := make([]byte, 4)
	n, err := src.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	head = head[:n]
	switch {
	case bytes.HasPrefix(head, zipMagic), bytes.HasPrefix(head, zipEmptyMagic):
		return FormatZip, nil
	case bytes.HasPrefix(head, gzipMagic):
		return FormatTarGz, nil
	}
	return "", fmt.Errorf("unrecognised archive header %x", head)
}

// entry is one decoded archive member.
type entry struct {
	name    string
	dir     bool
	mode    fs.FileMode
	hasMode bool
	body    io.Reader
}

type Extractor struct {
	Permissions fsutil.Permissions
	Logger      *slog.Logger
}

func (x *Extractor) permissions() fsutil.Permissions {
	if x == nil || x.Permissions == nil {
		return fsutil.HostPermissions
	}
	return x.Permissions
}

func (x *Extractor) logger() *slog.Logger {
	if x == nil || x.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return x.Logger
}

// Extract writes every entry of src below root and returns the set of
// first path segments it touched. It stops at the first entry that would
// land outside root; entries written before that point stay on disk.
func (x *Extractor) Extract(src Source, root string) (manifest.Set, error) {
	format, err := DetectFormat(src)
	if err != nil {
		return nil, failure.New(failure.ExtractFailed, "detect format", err)
	}
	w := &writer{
		root:     root,
		modes:    x.permissions().Supported(),
		created:  manifest.Set{},
		dirModes: map[string]fs.FileMode{},
		log:      x.logger(),
	}
	switch format {
	case FormatZip:
		err = walkZip(src, w.write, w.log)
	case FormatTarGz:
		err = walkTarGz(src, w.write, w.log)
	}
	if err != nil {
		if failure.CodeOf(err) != "" {
			return nil, err
		}
		return nil, failure.New(failure.ExtractFailed, "read "+string(format), err)
	}
	if err := w.finish(); err != nil {
		return nil, err
	}
	w.log.Debug("archive extracted", "format", format, "root", root, "top_level", w.created.Sorted())
	return w.created, nil
}

type writer struct {
	root     string
	modes    bool
	created  manifest.Set
	dirModes map[string]fs.FileMode
	log      *slog.Logger
}

func (w *writer) write(e entry) error {
	rel, err := safeRel(e.name)
	if err != nil {
		return failure.New(failure.UnsafeArchiveEntry, "extract "+e.name, err)
	}
	if rel == "" {
		return nil
	}
	target := filepath.Join(w.root, filepath.FromSlash(rel))
	w.created.Add(topLevel(rel))

	if e.dir {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return failure.New(failure.ExtractFailed, "create dir "+rel, err)
		}
		if w.modes && e.hasMode {
			// Applied once all children are written. The owner keeps
			// rwx so later updates can move the directory aside.
			w.dirModes[target] = e.mode.Perm() | 0o700
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return failure.New(failure.ExtractFailed, "create dir "+path.Dir(rel), err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return failure.New(failure.ExtractFailed, "create "+rel, err)
	}
	if _, err := io.Copy(f, e.body); err != nil {
		_ = f.Close()
		return failure.New(failure.ExtractFailed, "write "+rel, err)
	}
	if err := f.Close(); err != nil {
		return failure.New(failure.ExtractFailed, "close "+rel, err)
	}
	if w.modes && e.hasMode {
		if err := os.Chmod(target, e.mode.Perm()); err != nil {
			return failure.New(failure.ExtractFailed, "chmod "+rel, err)
		}
	}
	return nil
}

func (w *writer) finish() error {
	for dir, mode := range w.dirModes {
		if err := os.Chmod(dir, mode); err != nil {
			return failure.New(failure.ExtractFailed, "chmod "+dir, err)
		}
	}
	return nil
}

// safeRel turns an archive member name into a clean slash-separated path
// below the root. It returns "" for the root itself.
func safeRel(name string) (string, error) {
	n := strings.ReplaceAll(name, `\`, "/")
	if n == "" {
		return "", errors.New("empty entry name")
	}
	if path.IsAbs(n) || filepath.VolumeName(n) != "" || hasDriveLetter(n) {
		return "", fmt.Errorf("entry %q is an absolute path", name)
	}
	clean := path.Clean(n)
	if clean == "." {
		return "", nil
	}
	if !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", fmt.Errorf("entry %q escapes the install root", name)
	}
	return clean, nil
}

func hasDriveLetter(n string) bool {
	if len(n) < 2 || n[1] != ':' {
		return false
	}
	c := n[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func topLevel(rel string) string {
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return rel
}

// Check reads src through to the end without writing anything, so a
// truncated or foreign download is caught before the root is touched.
func Check(src Source) (Format, error) {
	format, err := DetectFormat(src)
	if err != nil {
		return "", failure.New(failure.ExtractFailed, "detect format", err)
	}
	switch format {
	case FormatZip:
		err = checkZip(src)
	case FormatTarGz:
		err = checkTarGz(src)
	}
	if err != nil {
		return "", failure.New(failure.ExtractFailed, "check "+string(format), err)
	}
	return format, nil
}
