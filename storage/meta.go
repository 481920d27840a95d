package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

// meta is the UTF-8 JSON descriptor persisted as meta.json.
type meta struct {
	BlockCount uint64 `json:"block_count"`
	BlockSize  uint32 `json:"block_size"`
}

func metaPath(dir string) string {
	return filepath.Join(dir, "meta.json")
}

// readMeta loads meta.json, reporting (meta{}, false, nil) if it is absent.
func readMeta(dir string) (meta, bool, error) {
	const op = "storage.readMeta"
	b, err := os.ReadFile(metaPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return meta{}, false, nil
		}
		return meta{}, false, gserr.E(op, gserr.IOFailure, err)
	}
	var m meta
	if err := json.Unmarshal(b, &m); err != nil {
		return meta{}, false, gserr.E(op, gserr.IOFailure, err)
	}
	return m, true, nil
}

// writeMeta persists m to meta.json via temp-then-rename.
func writeMeta(dir string, m meta) error {
	const op = "storage.writeMeta"
	b, err := json.Marshal(m)
	if err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	if err := renameio.WriteFile(metaPath(dir), b, 0644); err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	return nil
}

// validateAgainst fails if m disagrees with the declared config.
func (m meta) validateAgainst(cfg Config) error {
	const op = "storage.Open"
	if m.BlockCount != cfg.BlockCount || m.BlockSize != cfg.BlockSize {
		return gserr.E(op, gserr.InvalidArgument,
			xerrors.Errorf("meta.json {block_count:%d block_size:%d} disagrees with requested {block_count:%d block_size:%d}",
				m.BlockCount, m.BlockSize, cfg.BlockCount, cfg.BlockSize))
	}
	return nil
}
