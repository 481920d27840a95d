package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func pattern(b byte) []byte {
	buf := make([]byte, BlockSize)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

func mustOpen(t *testing.T, blockCount uint64) *Storage {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Config{Dir: dir, BlockCount: blockCount, BlockSize: BlockSize})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestReadUnwrittenIsZero(t *testing.T) {
	s := mustOpen(t, 16)
	buf, err := s.ReadBlock(5 * BlockSize)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, make([]byte, BlockSize)) {
		t.Errorf("expected zero block, got %x", buf[:8])
	}
}

func TestWriteThenRead(t *testing.T) {
	s := mustOpen(t, 16)
	want := pattern(0x42)
	if err := s.WriteBlock(3*BlockSize, want); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadBlock(3 * BlockSize)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got %x, want %x", got[:8], want[:8])
	}
}

func TestConsolidation(t *testing.T) {
	s := mustOpen(t, 256)

	// Write distinct patterns to every block 0..255 so each LBA's content is
	// individually identifiable.
	for lba := uint64(0); lba < 256; lba++ {
		if err := s.WriteBlock(lba*BlockSize, pattern(byte(lba))); err != nil {
			t.Fatalf("WriteBlock(%d): %v", lba, err)
		}
	}

	// 256 level-0 files exist; one tick should merge the 16 at bases 0..15
	// into one level-1 file and remove those 16 leaves.
	if err := s.Tick(); err != nil {
		t.Fatal(err)
	}

	parent := filepath.Join(s.dir, rangeFilename(1, 0))
	fi, err := os.Stat(parent)
	if err != nil {
		t.Fatalf("expected consolidated file %s: %v", parent, err)
	}
	if got, want := fi.Size(), int64(16*BlockSize); got != want {
		t.Errorf("consolidated file size = %d, want %d", got, want)
	}
	for lba := uint64(0); lba < 16; lba++ {
		leaf := filepath.Join(s.dir, rangeFilename(0, lba))
		if _, err := os.Stat(leaf); !os.IsNotExist(err) {
			t.Errorf("expected leaf %s to be removed", leaf)
		}
	}

	got, err := s.ReadBlock(5 * BlockSize)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, pattern(5)) {
		t.Errorf("ReadBlock(5) after consolidation = %x, want pattern(5)", got[:8])
	}
}

func TestConsolidationIsReadNoOp(t *testing.T) {
	s := mustOpen(t, 256)
	for lba := uint64(0); lba < 32; lba++ {
		if err := s.WriteBlock(lba*BlockSize, pattern(byte(lba))); err != nil {
			t.Fatal(err)
		}
	}
	before := make([][]byte, 256)
	for lba := range before {
		b, err := s.ReadBlock(uint64(lba) * BlockSize)
		if err != nil {
			t.Fatal(err)
		}
		before[lba] = b
	}
	for i := 0; i < 4; i++ {
		if err := s.Tick(); err != nil {
			t.Fatal(err)
		}
	}
	for lba := range before {
		after, err := s.ReadBlock(uint64(lba) * BlockSize)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(before[lba], after) {
			t.Errorf("lba %d changed across ticks: before=%x after=%x", lba, before[lba][:8], after[:8])
		}
	}
}

func TestRollback(t *testing.T) {
	s := mustOpen(t, 4)
	if err := s.WriteBlock(0, pattern(0xAA)); err != nil {
		t.Fatal(err)
	}
	var discard bytes.Buffer
	if err := s.Checkpoint(&discard); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteBlock(0, pattern(0xBB)); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyRollback(); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadBlock(0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, pattern(0xAA)) {
		t.Errorf("after rollback, block 0 = %x, want 0xAA pattern", got[:8])
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, "rollback"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("rollback directory not empty: %v", entries)
	}
}

func TestSaveLoadStateRoundTrip(t *testing.T) {
	src := mustOpen(t, 64)
	for _, lba := range []uint64{0, 1, 17, 63} {
		if err := src.WriteBlock(lba*BlockSize, pattern(byte(lba+1))); err != nil {
			t.Fatal(err)
		}
	}
	if err := src.Tick(); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := src.SaveState(&buf); err != nil {
		t.Fatal(err)
	}

	dst := mustOpen(t, 64)
	if err := dst.LoadState(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatal(err)
	}

	for lba := uint64(0); lba < 64; lba++ {
		want, err := src.ReadBlock(lba * BlockSize)
		if err != nil {
			t.Fatal(err)
		}
		got, err := dst.ReadBlock(lba * BlockSize)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(want, got) {
			t.Errorf("lba %d: got %x, want %x", lba, got[:8], want[:8])
		}
	}
}

func TestOpenRejectsMetaMismatch(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(Config{Dir: dir, BlockCount: 64, BlockSize: BlockSize}); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(Config{Dir: dir, BlockCount: 128, BlockSize: BlockSize}); err == nil {
		t.Error("expected error reopening with different block_count")
	}
}

func TestFilenameRoundTrip(t *testing.T) {
	cases := []struct {
		level int
		base  uint64
	}{
		{0, 0}, {0, 0xFF}, {1, 0}, {1, 0x10}, {8, 0},
	}
	for _, c := range cases {
		name := rangeFilename(c.level, c.base)
		level, base, ok := parseRangeFilename(name)
		if !ok {
			t.Errorf("parseRangeFilename(%q) failed", name)
			continue
		}
		if level != c.level || base != c.base {
			t.Errorf("parseRangeFilename(%q) = (%d,%d), want (%d,%d)", name, level, base, c.level, c.base)
		}
	}
}
