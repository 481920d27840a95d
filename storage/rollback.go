package storage

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

// rollbackSet is the sorted in-memory mirror of rollback/*.pre.
type rollbackSet []uint64

func (rs rollbackSet) contains(lba uint64) bool {
	pos := sort.Search(len(rs), func(i int) bool { return rs[i] >= lba })
	return pos < len(rs) && rs[pos] == lba
}

func (rs *rollbackSet) insert(lba uint64) {
	pos := sort.Search(len(*rs), func(i int) bool { return (*rs)[i] >= lba })
	if pos < len(*rs) && (*rs)[pos] == lba {
		return
	}
	*rs = append(*rs, 0)
	copy((*rs)[pos+1:], (*rs)[pos:])
	(*rs)[pos] = lba
}

func (s *Storage) rollbackPath(lba uint64) string {
	return filepath.Join(s.dir, "rollback", rollbackFilename(lba))
}

// capturePreimage saves the current content of lba to rollback/<lba>.pre.
func (s *Storage) capturePreimage(lba uint64) error {
	const op = "storage.capturePreimage"
	cur, err := s.readLBA(op, lba)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.rollbackPath(lba), cur); err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	s.rollback.insert(lba)
	return nil
}

// ApplyRollback writes every captured preimage back via the normal write
// path (with capture disabled) and then deletes the preimages.
func (s *Storage) ApplyRollback() error {
	const op = "storage.ApplyRollback"
	s.capture = false
	defer func() { s.capture = true }()

	// Snapshot: writeLevel0 doesn't mutate s.rollback, but iterate a copy
	// defensively in case that ever changes.
	lbas := append(rollbackSet(nil), s.rollback...)
	for _, lba := range lbas {
		path := s.rollbackPath(lba)
		buf, err := os.ReadFile(path)
		if err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
		if err := s.writeLevel0(op, lba, buf); err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
	}
	s.rollback = nil
	return nil
}

// ClearRollback deletes every preimage file and forgets the in-memory set.
func (s *Storage) ClearRollback() error {
	const op = "storage.ClearRollback"
	for _, lba := range s.rollback {
		if err := os.Remove(s.rollbackPath(lba)); err != nil && !os.IsNotExist(err) {
			return gserr.E(op, gserr.IOFailure, err)
		}
	}
	s.rollback = nil
	return nil
}
