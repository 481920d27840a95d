// Package romid identifies a classic Macintosh ROM image by its stored and
// computed checksums, falling back to a size-based guess when the checksum
// is unrecognized.
package romid

import (
	"encoding/binary"

	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

// Entry describes one known ROM checksum.
type Entry struct {
	Checksum uint32
	Size     int
	Model    string
}

// builtinTable is the compiled-in default; romcatalog.Refresh can extend it
// at runtime with entries fetched from an upstream catalog.
var builtinTable = []Entry{
	{Checksum: 0x4D1EEEE1, Size: 128 * 1024, Model: "Macintosh Plus Rev 1"},
	{Checksum: 0x4D1EEAE1, Size: 128 * 1024, Model: "Macintosh Plus Rev 2"},
	{Checksum: 0x4D1F8172, Size: 128 * 1024, Model: "Macintosh Plus Rev 3"},
	{Checksum: 0x97221136, Size: 256 * 1024, Model: "Macintosh SE/30 Universal"},
}

// Table returns a copy of the currently known checksum table.
func Table() []Entry {
	out := make([]Entry, len(builtinTable))
	copy(out, builtinTable)
	return out
}

// AddEntries merges additional rows into the in-memory table, skipping any
// checksum already present. Used by romcatalog.Refresh.
func AddEntries(entries []Entry) {
	known := make(map[uint32]bool, len(builtinTable))
	for _, e := range builtinTable {
		known[e.Checksum] = true
	}
	for _, e := range entries {
		if known[e.Checksum] {
			continue
		}
		builtinTable = append(builtinTable, e)
		known[e.Checksum] = true
	}
}

// StoredChecksum returns the 32-bit big-endian checksum embedded at offset 0
// of rom.
func StoredChecksum(rom []byte) (uint32, error) {
	const op = "romid.StoredChecksum"
	if len(rom) < 4 {
		return 0, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("ROM image too short: %d bytes", len(rom)))
	}
	return binary.BigEndian.Uint32(rom[0:4]), nil
}

// ComputedChecksum sums big-endian 16-bit words from offset 4 to the end of
// rom, wrapping on 32-bit overflow.
func ComputedChecksum(rom []byte) uint32 {
	var sum uint32
	body := rom[4:]
	for i := 0; i+1 < len(body); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(body[i : i+2]))
	}
	return sum
}

// Verify reports whether rom's stored checksum matches its computed
// checksum, i.e. the image is not corrupt.
func Verify(rom []byte) (bool, error) {
	stored, err := StoredChecksum(rom)
	if err != nil {
		return false, err
	}
	return stored == ComputedChecksum(rom), nil
}

// Identify looks up rom's model by its stored checksum, falling back to a
// size-based guess (128 KiB -> Plus Rev 3, 256 KiB -> SE/30) when the
// checksum is unknown.
func Identify(rom []byte) (Entry, error) {
	const op = "romid.Identify"
	stored, err := StoredChecksum(rom)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range builtinTable {
		if e.Checksum == stored {
			return e, nil
		}
	}
	switch len(rom) {
	case 128 * 1024:
		return Entry{Checksum: stored, Size: len(rom), Model: "Macintosh Plus Rev 3"}, nil
	case 256 * 1024:
		return Entry{Checksum: stored, Size: len(rom), Model: "Macintosh SE/30 Universal"}, nil
	default:
		return Entry{}, gserr.E(op, gserr.NotFound, xerrors.Errorf("unknown ROM checksum %#08x, size %d", stored, len(rom)))
	}
}
