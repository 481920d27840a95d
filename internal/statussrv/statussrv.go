// Package statussrv serves periodically-rendered JSON snapshots of the
// emulator's ATP, NBP, and open-image state over HTTP, content-negotiated
// the way distri's own export command serves its package store.
package statussrv

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	"github.com/lpar/gzipped/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/atp"
	"github.com/pappadf/granny-smith-sub003/gserr"
	"github.com/pappadf/granny-smith-sub003/internal/addrfd"
	"github.com/pappadf/granny-smith-sub003/nbp"
)

// ImageStatus is one open disk image's status-page row.
type ImageStatus struct {
	Path       string `json:"path"`
	Kind       string `json:"kind"`
	Writable   bool   `json:"writable"`
	BlockCount uint64 `json:"block_count"`
}

// Sources supplies the live state statussrv snapshots. All three sources are
// read from the same ticking goroutine, never concurrently.
type Sources struct {
	ATP    *atp.Engine
	NBP    *nbp.Registry
	Images func() []ImageStatus
}

// Server renders Sources into a directory of plain and gzip-compressed
// JSON files and serves that directory.
type Server struct {
	sources Sources
	dumpDir string
}

// New creates a Server that writes its JSON dumps under dumpDir (created if
// necessary).
func New(sources Sources, dumpDir string) (*Server, error) {
	const op = "statussrv.New"
	if err := os.MkdirAll(dumpDir, 0755); err != nil {
		return nil, gserr.E(op, gserr.IOFailure, err)
	}
	return &Server{sources: sources, dumpDir: dumpDir}, nil
}

func (s *Server) renderOnce() error {
	const op = "statussrv.renderOnce"
	if err := s.writeJSON("atp.json", s.sources.ATP.Stats()); err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	if err := s.writeJSON("nbp.json", s.sources.NBP.Entries()); err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	var images []ImageStatus
	if s.sources.Images != nil {
		images = s.sources.Images()
	}
	if err := s.writeJSON("images.json", images); err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	return nil
}

// writeJSON renders v as indented JSON to name and name+".gz" under the dump
// directory, both via renameio so a concurrent reader never observes a
// half-written file.
func (s *Server) writeJSON(name string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(filepath.Join(s.dumpDir, name), b, 0644); err != nil {
		return err
	}
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(b); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(s.dumpDir, name+".gz"), gz.Bytes(), 0644)
}

// RunSnapshotLoop re-renders the dump directory once per interval until ctx
// is cancelled.
func (s *Server) RunSnapshotLoop(ctx context.Context, eg *errgroup.Group, interval time.Duration) {
	eg.Go(func() error {
		if err := s.renderOnce(); err != nil {
			return err
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := s.renderOnce(); err != nil {
					return err
				}
			}
		}
	})
}

// Serve listens on listenAddr and serves the dump directory until ctx is
// cancelled, writing the chosen address to -addrfd the way the rest of this
// module's servers do.
func (s *Server) Serve(ctx context.Context, eg *errgroup.Group, listenAddr string) error {
	const op = "statussrv.Serve"
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	addrfd.MustWrite(ln.Addr().String())

	mux := http.NewServeMux()
	mux.Handle("/", gzipped.FileServer(http.Dir(s.dumpDir)))
	httpSrv := &http.Server{Handler: mux}

	eg.Go(func() error {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return xerrors.Errorf("%s: %w", op, err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		return httpSrv.Shutdown(context.Background())
	})
	return nil
}
