package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/orcaman/writerseeker"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

// Tick performs up to s.consolidationsPerTick consolidations, advancing the
// rolling cursor across levels. Consolidation is semantically a no-op: every
// block's content observed through ReadBlock is unchanged by it.
func (s *Storage) Tick() error {
	if s.consolidationsPerTick < 0 {
		return nil
	}
	for done := 0; done < s.consolidationsPerTick; {
		ok, err := s.consolidateOnce()
		if err != nil {
			return err
		}
		if ok {
			done++
			continue
		}
		// consolidateOnce already advanced the cursor past every level with
		// no candidate; nothing more to do this tick.
		return nil
	}
	return nil
}

// consolidateOnce looks for one consolidation candidate starting at the
// cursor's level, advancing the cursor to the next level (wrapping) each
// time a level comes up empty, until either a candidate is merged or every
// level has been tried once.
func (s *Storage) consolidateOnce() (bool, error) {
	for attempts := 0; attempts <= s.maxLevel; attempts++ {
		level := s.cur.level
		if level > s.maxLevel {
			level = 0
			s.cur.level = 0
		}
		base, ok := s.findCandidate(level, s.cur.afterBase)
		if !ok {
			s.cur.level = (level + 1) % (s.maxLevel + 1)
			s.cur.afterBase = 0
			continue
		}
		lastChildBase := base + 15*pow16(level)
		if err := s.mergeSiblings(level, base); err != nil {
			return false, err
		}
		s.cur.afterBase = lastChildBase + 1
		return true, nil
	}
	return false, nil
}

// findCandidate finds the first run of 16 contiguous, 16^(level+1)-aligned
// level-k entries starting at or after afterBase (wrapping once), per I-S3.
func (s *Storage) findCandidate(level int, afterBase uint64) (base uint64, ok bool) {
	if level >= s.maxLevel {
		// There is no parent level to consolidate into.
		return 0, false
	}
	idx := s.levels[level]
	span := pow16(level)
	parentSpan := span * 16

	tryFrom := func(start int) (uint64, bool) {
		for i := start; i+15 < len(idx); i++ {
			b := idx[i]
			if b%parentSpan != 0 {
				continue
			}
			contiguous := true
			for j := 1; j < 16; j++ {
				if idx[i+j] != b+uint64(j)*span {
					contiguous = false
					break
				}
			}
			if contiguous {
				return b, true
			}
		}
		return 0, false
	}

	startPos, _ := idx.search(afterBase)
	if b, found := tryFrom(startPos); found {
		return b, true
	}
	if startPos > 0 {
		if b, found := tryFrom(0); found {
			return b, true
		}
	}
	return 0, false
}

// mergeSiblings streams the 16 level-k children at base into a new
// level-(k+1) file, then removes the children from disk and the index.
func (s *Storage) mergeSiblings(level int, base uint64) error {
	const op = "storage.Tick"
	span := pow16(level)
	childPaths := make([]string, 16)
	for j := 0; j < 16; j++ {
		childPaths[j] = filepath.Join(s.dir, rangeFilename(level, base+uint64(j)*span))
	}

	ws := &writerseeker.WriterSeeker{}
	for _, p := range childPaths {
		f, err := os.Open(p)
		if err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
		_, copyErr := io.Copy(ws, f)
		closeErr := f.Close()
		if copyErr != nil {
			return gserr.E(op, gserr.IOFailure, copyErr)
		}
		if closeErr != nil {
			return gserr.E(op, gserr.IOFailure, closeErr)
		}
	}

	parentPath := filepath.Join(s.dir, rangeFilename(level+1, base))
	r := ws.Reader()
	data, err := io.ReadAll(r)
	if err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	t, err := renameio.TempFile("", parentPath)
	if err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	defer t.Cleanup()
	if _, err := t.Write(data); err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		// The children and their index entries remain untouched: a failed
		// rename never corrupts existing state.
		return gserr.E(op, gserr.IOFailure, err)
	}

	for j := 0; j < 16; j++ {
		childBase := base + uint64(j)*span
		if err := os.Remove(childPaths[j]); err != nil && !os.IsNotExist(err) {
			return gserr.E(op, gserr.IOFailure, err)
		}
		s.levels[level].remove(childBase)
	}
	s.levels[level+1].insert(base)
	return nil
}
