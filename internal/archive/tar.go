package archive

import (
	"archive/tar"
	"errors"
	"io"
	"log/slog"

	"github.com/klauspost/compress/gzip"
)

func walkTarGz(src Source, fn func(entry) error, log *slog.Logger) error {
	zr, err := gzip.NewReader(io.NewSectionReader(src, 0, src.Size()))
	if err != nil {
		return err
	}
	defer zr.Close()
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		e := entry{name: hdr.Name, mode: hdr.FileInfo().Mode(), hasMode: true}
		switch hdr.Typeflag {
		case tar.TypeDir:
			e.dir = true
		case tar.TypeReg:
			e.body = tr
		default:
			log.Warn("skipping unsupported archive entry", "name", hdr.Name, "type", string(hdr.Typeflag))
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

func checkTarGz(src Source) error {
	zr, err := gzip.NewReader(io.NewSectionReader(src, 0, src.Size()))
	if err != nil {
		return err
	}
	defer zr.Close()
	tr := tar.NewReader(zr)
	for {
		if _, err := tr.Next(); errors.Is(err, io.EOF) {
			// drain to the gzip trailer so its checksum is verified
			_, err = io.Copy(io.Discard, zr)
			return err
		} else if err != nil {
			return err
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return err
		}
	}
}
