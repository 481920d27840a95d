package diskimage

import (
	"encoding/binary"
	"io"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

// diskCopyHeaderSize is the fixed size of a DiskCopy 4.2 header.
const diskCopyHeaderSize = 0x54

type diskCopyHeader struct {
	dataSize uint32
	tagSize  uint32
}

// readDiskCopyHeader inspects the first bytes of f for a DiskCopy 4.2
// header, per the field-offset rules: data_size at 0x40 (big-endian u32,
// non-zero, a multiple of 512) and tag_size at 0x44, such that
// 0x54 + data_size + tag_size <= fileSize. Returns nil, nil if no such
// header is present.
func readDiskCopyHeader(f io.ReaderAt, fileSize int64) (*diskCopyHeader, error) {
	const op = "diskimage.readDiskCopyHeader"
	if fileSize < diskCopyHeaderSize {
		return nil, nil
	}
	buf := make([]byte, diskCopyHeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, gserr.E(op, gserr.IOFailure, err)
	}

	dataSize := binary.BigEndian.Uint32(buf[0x40:0x44])
	tagSize := binary.BigEndian.Uint32(buf[0x44:0x48])

	if dataSize == 0 || dataSize%512 != 0 {
		return nil, nil
	}
	if int64(diskCopyHeaderSize)+int64(dataSize)+int64(tagSize) > fileSize {
		return nil, nil
	}
	return &diskCopyHeader{dataSize: dataSize, tagSize: tagSize}, nil
}
