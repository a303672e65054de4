package archive

import (
	"io/fs"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Zip creator host ids whose external attributes carry Unix mode bits.
const (
	creatorUnix   = 3
	creatorDarwin = 19
)

func walkZip(src Source, fn func(entry) error, log *slog.Logger) error {
	zr, err := zip.NewReader(src, src.Size())
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		host := f.CreatorVersion >> 8
		e := entry{
			name:    f.Name,
			dir:     strings.HasSuffix(strings.ReplaceAll(f.Name, `\`, "/"), "/") || f.FileInfo().IsDir(),
			mode:    f.Mode(),
			hasMode: host == creatorUnix || host == creatorDarwin,
		}
		if !e.dir && f.Mode()&fs.ModeType != 0 {
			log.Warn("skipping unsupported archive entry", "name", f.Name, "mode", f.Mode().String())
			continue
		}
		if e.dir {
			if err := fn(e); err != nil {
				return err
			}
			continue
		}
		if err := openAndWrite(f, e, fn); err != nil {
			return err
		}
	}
	return nil
}

func openAndWrite(f *zip.File, e entry, fn func(entry) error) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	e.body = rc
	return fn(e)
}

func checkZip(src Source) error {
	_, err := zip.NewReader(src, src.Size())
	return err
}
