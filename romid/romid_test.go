package romid

import (
	"encoding/binary"
	"testing"
)

// buildROM constructs a synthetic ROM image of the given size whose stored
// checksum (offset 0) matches its computed checksum (sum of BE u16 words
// from offset 4).
func buildROM(t *testing.T, size int) []byte {
	t.Helper()
	rom := make([]byte, size)
	for i := 4; i < size; i++ {
		rom[i] = byte(i)
	}
	binary.BigEndian.PutUint32(rom[0:4], ComputedChecksum(rom))
	return rom
}

func TestVerifyValidROM(t *testing.T) {
	rom := buildROM(t, 128*1024)
	ok, err := Verify(rom)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("Verify() = false for a self-consistent ROM")
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	rom := buildROM(t, 128*1024)
	rom[1000] ^= 0xFF
	ok, err := Verify(rom)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Verify() = true for a corrupted ROM")
	}
}

func TestIdentifyKnownChecksum(t *testing.T) {
	rom := make([]byte, 128*1024)
	binary.BigEndian.PutUint32(rom[0:4], 0x4D1F8172)
	e, err := Identify(rom)
	if err != nil {
		t.Fatal(err)
	}
	if e.Model != "Macintosh Plus Rev 3" {
		t.Errorf("Identify() model = %q, want Macintosh Plus Rev 3", e.Model)
	}
}

func TestIdentifyFallsBackOnSize(t *testing.T) {
	rom := make([]byte, 256*1024)
	binary.BigEndian.PutUint32(rom[0:4], 0xFFFFFFFF) // unknown checksum
	e, err := Identify(rom)
	if err != nil {
		t.Fatal(err)
	}
	if e.Model != "Macintosh SE/30 Universal" {
		t.Errorf("Identify() fallback model = %q, want Macintosh SE/30 Universal", e.Model)
	}
}

func TestIdentifyUnknown(t *testing.T) {
	rom := make([]byte, 64*1024)
	binary.BigEndian.PutUint32(rom[0:4], 0xFFFFFFFF)
	if _, err := Identify(rom); err == nil {
		t.Error("Identify() with unknown checksum and size should fail")
	}
}

func TestAddEntriesSkipsDuplicates(t *testing.T) {
	before := len(Table())
	AddEntries([]Entry{{Checksum: 0x4D1EEEE1, Size: 128 * 1024, Model: "duplicate"}})
	if got := len(Table()); got != before {
		t.Errorf("AddEntries duplicate changed table size: %d -> %d", before, got)
	}

	AddEntries([]Entry{{Checksum: 0xCAFEBABE, Size: 512 * 1024, Model: "test-only model"}})
	if got := len(Table()); got != before+1 {
		t.Errorf("AddEntries new entry: table size = %d, want %d", got, before+1)
	}
}
