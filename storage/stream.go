package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pappadf/granny-smith-sub003/checkpoint"
	"github.com/pappadf/granny-smith-sub003/gserr"
)

// Checkpoint writes a full snapshot to sink: the 24-byte header with
// has_data=1, followed by block_count blocks read through ReadBlock. The
// snapshot becomes the new rollback baseline: ClearRollback runs afterwards,
// so a subsequent ApplyRollback undoes only writes made since this call.
func (s *Storage) Checkpoint(sink io.Writer) error {
	const op = "storage.Checkpoint"
	h := checkpoint.Header{Version: checkpoint.Version, HasData: true, BlockCount: s.blockCount, BlockSize: s.blockSize}
	if err := checkpoint.WriteHeader(sink, h); err != nil {
		return err
	}
	for lba := uint64(0); lba < s.blockCount; lba++ {
		buf, err := s.readLBA(op, lba)
		if err != nil {
			return err
		}
		if _, err := sink.Write(buf); err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
	}
	return s.ClearRollback()
}

// CheckpointRollback writes only the header, with has_data=0, signalling
// that restoring this checkpoint means "apply the rollback set".
func (s *Storage) CheckpointRollback(sink io.Writer) error {
	h := checkpoint.Header{Version: checkpoint.Version, HasData: false, BlockCount: s.blockCount, BlockSize: s.blockSize}
	return checkpoint.WriteHeader(sink, h)
}

// Restore reads a header from source and either applies the rollback set
// (has_data=0) or replaces all storage content with the streamed blocks
// (has_data=1), rebuilding an optimal range-file representation.
func (s *Storage) Restore(source io.Reader) error {
	const op = "storage.Restore"
	h, err := checkpoint.ReadHeader(source)
	if err != nil {
		return err
	}
	if !h.HasData {
		return s.ApplyRollback()
	}
	if err := s.ClearRollback(); err != nil {
		return err
	}
	if err := s.removeAllRangeFiles(op); err != nil {
		return err
	}
	return s.loadBlocks(op, source, h.BlockCount)
}

// SaveState performs a flat block-by-block export, independent of the
// checkpoint header envelope.
func (s *Storage) SaveState(w io.Writer) error {
	const op = "storage.SaveState"
	for lba := uint64(0); lba < s.blockCount; lba++ {
		buf, err := s.readLBA(op, lba)
		if err != nil {
			return err
		}
		if _, err := w.Write(buf); err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
	}
	return nil
}

// LoadState clears rollback and all range files, then streams blockCount
// blocks from r, rebuilding an optimal representation.
func (s *Storage) LoadState(r io.Reader) error {
	const op = "storage.LoadState"
	if err := s.ClearRollback(); err != nil {
		return err
	}
	if err := s.removeAllRangeFiles(op); err != nil {
		return err
	}
	return s.loadBlocks(op, r, s.blockCount)
}

func (s *Storage) removeAllRangeFiles(op string) error {
	for level := 0; level <= s.maxLevel; level++ {
		for _, base := range append(levelIndex(nil), s.levels[level]...) {
			path := filepath.Join(s.dir, rangeFilename(level, base))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return gserr.E(op, gserr.IOFailure, err)
			}
		}
		s.levels[level] = nil
	}
	return nil
}

// loadBlocks greedily writes incoming blocks choosing, at each step, the
// largest level whose span is aligned at the current LBA and no larger than
// the remaining block count, so a freshly loaded
// storage starts out maximally consolidated.
func (s *Storage) loadBlocks(op string, r io.Reader, count uint64) error {
	remaining := count
	lba := uint64(0)
	for remaining > 0 {
		level := s.maxLevel
		for level > 0 && (pow16(level) > remaining || lba%pow16(level) != 0) {
			level--
		}
		span := pow16(level)
		buf := make([]byte, int(span)*BlockSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
		path := filepath.Join(s.dir, rangeFilename(level, lba))
		if err := writeFileAtomic(path, buf); err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
		s.levels[level].insert(lba)
		lba += span
		remaining -= span
	}
	return nil
}
