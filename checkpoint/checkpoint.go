// Package checkpoint implements the small versioned envelope that carries a
// storage snapshot (or a "just apply rollback" marker) between the block
// storage engine and a generic checkpoint sink. The sink/source are plain
// io.Writer/io.Reader: this module treats the checkpoint container format
// itself as an external collaborator, the way spec.md §1 scopes it out.
package checkpoint

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

// Version is the only header version this package knows how to produce or
// consume.
const Version = 1

// HeaderSize is the fixed, bit-exact size of the encoded Header.
const HeaderSize = 24

// Header precedes the block payload (when present) on the wire.
type Header struct {
	Version    uint32
	HasData    bool
	BlockCount uint64
	BlockSize  uint32
}

// WriteHeader encodes h to w in the bit-exact 24-byte wire format:
//
//	u32_le  version
//	u8      has_data
//	u8[3]   reserved (zero)
//	u64_le  block_count
//	u32_le  block_size
//	u8[4]   padding (zero)
func WriteHeader(w io.Writer, h Header) error {
	const op = "checkpoint.WriteHeader"
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Version)
	if h.HasData {
		buf[4] = 1
	}
	// buf[5:8] reserved, already zero
	binary.LittleEndian.PutUint64(buf[8:16], h.BlockCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.BlockSize)
	if _, err := w.Write(buf[:]); err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	return nil
}

// ReadHeader decodes a Header from r, validating the version field.
func ReadHeader(r io.Reader) (Header, error) {
	const op = "checkpoint.ReadHeader"
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, gserr.E(op, gserr.IOFailure, err)
	}
	h := Header{
		Version:    binary.LittleEndian.Uint32(buf[0:4]),
		HasData:    buf[4] != 0,
		BlockCount: binary.LittleEndian.Uint64(buf[8:16]),
		BlockSize:  binary.LittleEndian.Uint32(buf[16:20]),
	}
	if h.Version != Version {
		return Header{}, gserr.E(op, gserr.ProtocolMismatch,
			xerrors.Errorf("unsupported checkpoint version %d, want %d", h.Version, Version))
	}
	return h, nil
}
