// Package diskimage maps a user-facing image file onto a storage.Storage
// instance: it detects the DiskCopy 4.2 wrapper, derives the .blocks
// directory path (honoring GS_STORAGE_CACHE), and seeds storage from the raw
// file on first open.
package diskimage

import (
	"io"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/gserr"
	"github.com/pappadf/granny-smith-sub003/internal/env"
	"github.com/pappadf/granny-smith-sub003/storage"
)

// Kind classifies the detected media geometry.
type Kind int

const (
	KindUnknown Kind = iota
	KindFloppy400K
	KindFloppy800K
	KindHardDisk
)

func (k Kind) String() string {
	switch k {
	case KindFloppy400K:
		return "400K floppy"
	case KindFloppy800K:
		return "800K floppy"
	case KindHardDisk:
		return "hard disk"
	default:
		return "unknown"
	}
}

const (
	floppy400KBytes = 400 * 1024
	floppy800KBytes = 800 * 1024
)

func classify(rawSize int64) Kind {
	switch rawSize {
	case floppy400KBytes:
		return KindFloppy400K
	case floppy800KBytes:
		return KindFloppy800K
	default:
		if rawSize > 0 {
			return KindHardDisk
		}
		return KindUnknown
	}
}

// Image is one open disk image.
type Image struct {
	path      string
	writable  bool
	rawSize   int64
	kind      Kind
	diskCopy  bool
	dcPayload int64 // offset into path where sector data starts
	s         *storage.Storage
}

// Path returns the originating filename.
func (img *Image) Path() string { return img.path }

// Kind returns the detected media geometry.
func (img *Image) Kind() Kind { return img.kind }

// IsDiskCopy reports whether the source file carried a DiskCopy 4.2 header.
func (img *Image) IsDiskCopy() bool { return img.diskCopy }

// Writable reports whether the image was opened for writing.
func (img *Image) Writable() bool { return img.writable }

// Storage returns the backing storage.Storage instance.
func (img *Image) Storage() *storage.Storage { return img.s }

// blocksDir returns the directory that should back imgPath, honoring
// GS_STORAGE_CACHE.
func blocksDir(imgPath string) (string, error) {
	const op = "diskimage.Open"
	abs, err := filepath.Abs(imgPath)
	if err != nil {
		return "", gserr.E(op, gserr.IOFailure, err)
	}
	if root := env.StorageCacheRoot; root != "" {
		return filepath.Join(root, abs+".blocks"), nil
	}
	return imgPath + ".blocks", nil
}

// Open maps imgPath onto a storage directory, seeding it from the raw file
// on first open.
func Open(imgPath string, writable bool) (*Image, error) {
	const op = "diskimage.Open"
	f, err := os.Open(imgPath)
	if err != nil {
		return nil, gserr.E(op, gserr.IOFailure, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, gserr.E(op, gserr.IOFailure, err)
	}

	hdr, err := readDiskCopyHeader(f, fi.Size())
	if err != nil {
		return nil, err
	}

	rawSize := fi.Size()
	dcPayload := int64(0)
	diskCopy := hdr != nil
	if diskCopy {
		rawSize = int64(hdr.dataSize)
		dcPayload = diskCopyHeaderSize
	}
	if rawSize%storage.BlockSize != 0 {
		return nil, gserr.E(op, gserr.InvalidArgument,
			xerrors.Errorf("image size %d is not a multiple of %d", rawSize, storage.BlockSize))
	}

	dir, err := blocksDir(imgPath)
	if err != nil {
		return nil, err
	}
	firstOpen := false
	if _, err := os.Stat(filepath.Join(dir, "meta.json")); os.IsNotExist(err) {
		firstOpen = true
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return nil, gserr.E(op, gserr.IOFailure, err)
	}

	blockCount := uint64(rawSize) / storage.BlockSize
	s, err := storage.Open(storage.Config{Dir: dir, BlockCount: blockCount, BlockSize: storage.BlockSize})
	if err != nil {
		return nil, err
	}

	img := &Image{
		path:      imgPath,
		writable:  writable,
		rawSize:   rawSize,
		kind:      classify(rawSize),
		diskCopy:  diskCopy,
		dcPayload: dcPayload,
		s:         s,
	}

	if firstOpen {
		if err := img.seed(imgPath); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// seed streams the raw file (skipping any DiskCopy header) into storage.
func (img *Image) seed(imgPath string) error {
	const op = "diskimage.Open"
	f, err := os.Open(imgPath)
	if err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	defer f.Close()
	if img.dcPayload > 0 {
		if _, err := f.Seek(img.dcPayload, io.SeekStart); err != nil {
			return gserr.E(op, gserr.IOFailure, err)
		}
	}
	return img.s.LoadState(io.LimitReader(f, img.rawSize))
}

// ReadBlock reads one 512-byte block at a 512-aligned offset.
func (img *Image) ReadBlock(offset uint64) ([]byte, error) {
	return img.s.ReadBlock(offset)
}

// WriteBlock writes one 512-byte block at a 512-aligned offset.
func (img *Image) WriteBlock(offset uint64, buf []byte) error {
	const op = "diskimage.WriteBlock"
	if !img.writable {
		return gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("image %s was opened read-only", img.path))
	}
	return img.s.WriteBlock(offset, buf)
}

// Tick advances the backing storage's consolidation cursor by one quantum.
func (img *Image) Tick() error {
	return img.s.Tick()
}

// Save exports the image's current content into a fresh file via
// storage.SaveState. It refuses DiskCopy-originated images, which carry
// out-of-band metadata (tag data, a resource fork checksum) this layer does
// not reproduce.
func (img *Image) Save(destPath string) error {
	const op = "diskimage.Save"
	if img.diskCopy {
		return gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("refusing to save a DiskCopy-originated image via Save"))
	}
	out, err := os.Create(destPath)
	if err != nil {
		return gserr.E(op, gserr.IOFailure, err)
	}
	defer out.Close()
	if err := img.s.SaveState(out); err != nil {
		return err
	}
	return nil
}
