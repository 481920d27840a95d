// Package storage implements the directory-of-blocks storage engine: an
// LBA-addressed, hierarchically-consolidated block store backing disk
// images. Every write goes through temp-then-rename (via
// github.com/google/renameio, the same atomic-write idiom the distri build
// pipeline this package is grounded on uses for every on-disk artifact) so a
// crash never leaves a half-written range file observable.
package storage

import (
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

// BlockSize is the only block size this engine supports.
const BlockSize = 512

// Config describes how to open or create a storage directory.
type Config struct {
	Dir        string
	BlockCount uint64
	BlockSize  uint32

	// ConsolidationsPerTick bounds how many sibling merges Tick performs.
	// 0 means the default of 1; a negative value disables consolidation.
	ConsolidationsPerTick int
}

// levelIndex is the sorted-ascending set of base LBAs with a range file at
// a given level (I-S2).
type levelIndex []uint64

func (li levelIndex) search(base uint64) (pos int, found bool) {
	pos = sort.Search(len(li), func(i int) bool { return li[i] >= base })
	return pos, pos < len(li) && li[pos] == base
}

func (li *levelIndex) insert(base uint64) {
	pos, found := li.search(base)
	if found {
		return
	}
	*li = append(*li, 0)
	copy((*li)[pos+1:], (*li)[pos:])
	(*li)[pos] = base
}

func (li *levelIndex) remove(base uint64) {
	pos, found := li.search(base)
	if !found {
		return
	}
	*li = append((*li)[:pos], (*li)[pos+1:]...)
}

// cursor tracks where Tick should resume scanning for consolidation
// candidates across calls.
type cursor struct {
	level     int
	afterBase uint64
}

// Storage is one open directory-of-blocks instance.
type Storage struct {
	dir                   string
	blockCount            uint64
	blockSize             uint32
	maxLevel              int
	consolidationsPerTick int

	levels   [maxLevel + 1]levelIndex
	rollback rollbackSet
	capture  bool // rollback capture enabled; apply_rollback disables it transiently
	cur      cursor
}

// Open creates or opens a storage directory per cfg.
func Open(cfg Config) (*Storage, error) {
	const op = "storage.Open"
	if cfg.BlockSize != BlockSize {
		return nil, gserr.E(op, gserr.InvalidArgument,
			xerrors.Errorf("block_size must be %d, got %d", BlockSize, cfg.BlockSize))
	}
	if cfg.BlockCount == 0 {
		return nil, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("block_count must be > 0"))
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dir, "rollback"), 0755); err != nil {
		return nil, gserr.E(op, gserr.IOFailure, err)
	}

	m, existed, err := readMeta(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if existed {
		if err := m.validateAgainst(cfg); err != nil {
			return nil, err
		}
	} else {
		m = meta{BlockCount: cfg.BlockCount, BlockSize: cfg.BlockSize}
		if err := writeMeta(cfg.Dir, m); err != nil {
			return nil, err
		}
	}

	perTick := cfg.ConsolidationsPerTick
	if perTick == 0 {
		perTick = 1
	}

	s := &Storage{
		dir:                   cfg.Dir,
		blockCount:            cfg.BlockCount,
		blockSize:             cfg.BlockSize,
		maxLevel:              highestLevel(cfg.BlockCount),
		consolidationsPerTick: perTick,
		capture:               true,
	}

	if err := s.scanRangeFiles(); err != nil {
		return nil, err
	}
	if err := s.scanRollback(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) scanRangeFiles() error {
	const op = "storage.Open"
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		level, base, ok := parseRangeFilename(e.Name())
		if !ok || level > s.maxLevel {
			continue
		}
		s.levels[level].insert(base)
	}
	return nil
}

func (s *Storage) scanRollback() error {
	const op = "storage.Open"
	dir := filepath.Join(s.dir, "rollback")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		lba, ok := parseRollbackFilename(e.Name())
		if !ok {
			continue
		}
		s.rollback.insert(lba)
	}
	return nil
}

// BlockCount returns the declared logical block count.
func (s *Storage) BlockCount() uint64 { return s.blockCount }

func (s *Storage) validateOffset(op string, offset uint64) (lba uint64, err error) {
	if offset%BlockSize != 0 {
		return 0, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("offset %d is not block-aligned", offset))
	}
	lba = offset / BlockSize
	if lba >= s.blockCount {
		return 0, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("offset %d is out of range (block_count=%d)", offset, s.blockCount))
	}
	return lba, nil
}

// ReadBlock returns the 512-byte block at offset, or an all-zero buffer if
// the block was never written.
func (s *Storage) ReadBlock(offset uint64) ([]byte, error) {
	const op = "storage.ReadBlock"
	lba, err := s.validateOffset(op, offset)
	if err != nil {
		return nil, err
	}
	return s.readLBA(op, lba)
}

func (s *Storage) readLBA(op string, lba uint64) ([]byte, error) {
	for level := 0; level <= s.maxLevel; level++ {
		base := baseForLevel(lba, level)
		if _, found := s.levels[level].search(base); !found {
			continue
		}
		path := filepath.Join(s.dir, rangeFilename(level, base))
		f, err := os.Open(path)
		if err != nil {
			return nil, gserr.E(op, gserr.IOFailure, err)
		}
		defer f.Close()
		buf := make([]byte, BlockSize)
		off := int64(lba-base) * BlockSize
		if _, err := f.ReadAt(buf, off); err != nil {
			return nil, gserr.E(op, gserr.IOFailure, err)
		}
		return buf, nil
	}
	return make([]byte, BlockSize), nil
}

// WriteBlock writes buf (exactly 512 bytes) to offset, capturing a rollback
// preimage first if one isn't already captured for this LBA.
func (s *Storage) WriteBlock(offset uint64, buf []byte) error {
	const op = "storage.WriteBlock"
	lba, err := s.validateOffset(op, offset)
	if err != nil {
		return err
	}
	if len(buf) != BlockSize {
		return gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("buffer must be %d bytes, got %d", BlockSize, len(buf)))
	}

	if s.capture && !s.rollback.contains(lba) {
		if err := s.capturePreimage(lba); err != nil {
			return err
		}
	}
	return s.writeLevel0(op, lba, buf)
}

func (s *Storage) writeLevel0(op string, lba uint64, buf []byte) error {
	path := filepath.Join(s.dir, rangeFilename(0, lba))
	if err := writeFileAtomic(path, buf); err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	s.levels[0].insert(lba)
	return nil
}
