// Package blockarchive packs a storage directory (meta.json, range files,
// rollback preimages) into a single portable cpio stream, optionally
// gzip-compressed, and unpacks one back onto disk.
package blockarchive

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/cavaliercoder/go-cpio"
	"github.com/google/renameio"
	"github.com/klauspost/pgzip"
	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

// Export walks dir and writes every file under it (meta.json, *.dat,
// rollback/*.pre) into w as a cpio (newc format) stream. When gzip is true
// the stream is wrapped in a parallel gzip writer.
func Export(dir string, w io.Writer, gzip bool) error {
	const op = "blockarchive.Export"

	var out io.Writer = w
	var zw *pgzip.Writer
	if gzip {
		zw = pgzip.NewWriter(w)
		out = zw
	}
	cw := cpio.NewWriter(out)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := cw.WriteHeader(&cpio.Header{
			Name: filepath.ToSlash(rel),
			Mode: cpio.FileMode(info.Mode().Perm()),
			Size: info.Size(),
		}); err != nil {
			return err
		}
		_, err = io.Copy(cw, f)
		return err
	})
	if err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	if err := cw.Close(); err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
	}
	return nil
}

// Import extracts a stream built by Export into dir, which must not already
// contain a storage directory's meta.json — every file is written via
// renameio so a half-extracted archive never leaves a partially-overwritten
// directory behind. gzip must match what Export was called with.
func Import(r io.Reader, dir string, gzip bool) error {
	const op = "blockarchive.Import"

	in := r
	if gzip {
		zr, err := pgzip.NewReader(r)
		if err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
		defer zr.Close()
		in = zr
	}

	if _, err := os.Stat(filepath.Join(dir, "meta.json")); err == nil {
		return gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("%s already contains a storage directory", dir))
	}

	cr := cpio.NewReader(in)
	for {
		hdr, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
		dest := filepath.Join(dir, filepath.FromSlash(hdr.Name))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
		b, err := ioutil.ReadAll(cr)
		if err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
		if err := renameio.WriteFile(dest, b, 0644); err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
	}
	return nil
}
