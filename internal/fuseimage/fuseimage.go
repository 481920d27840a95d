// Package fuseimage exposes one open diskimage.Image as a single
// pass-through file under a FUSE mountpoint, so guest disk contents can be
// read and written with ordinary file tools instead of dedicated image
// utilities.
//
// Unlike a full package-store filesystem, the tree here is fixed: a root
// directory containing exactly one regular file named after the image. All
// I/O on that file is translated to whole-block reads and writes against the
// backing storage.Storage, since that is the only granularity the block
// engine supports.
package fuseimage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/diskimage"
	"github.com/pappadf/granny-smith-sub003/storage"
)

const (
	rootInode fuseops.InodeID = fuseops.RootInodeID
	fileInode fuseops.InodeID = fuseops.RootInodeID + 1
)

// never matches the FUSE attribute cache expiration idiom used for inodes
// that never change shape over the process lifetime.
var never = time.Now().Add(365 * 24 * time.Hour)

// FS is a fuseutil.FileSystem exposing img's blocks as one file named name
// under the mount root. Operations outside that one file fall through to
// fuseutil.NotImplementedFileSystem.
type FS struct {
	fuseutil.NotImplementedFileSystem

	name string
	img  *diskimage.Image

	mu sync.Mutex
}

// New creates an FS serving img as a file named name.
func New(name string, img *diskimage.Image) *FS {
	return &FS{name: name, img: img}
}

func (fs *FS) size() uint64 {
	return fs.img.Storage().BlockCount() * storage.BlockSize
}

func (fs *FS) fileMode() os.FileMode {
	if fs.img.Writable() {
		return 0644
	}
	return 0444
}

func (fs *FS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = storage.BlockSize
	op.Blocks = fs.img.Storage().BlockCount()
	op.BlocksFree = 0
	op.BlocksAvailable = 0
	op.IoSize = storage.BlockSize
	return nil
}

func (fs *FS) rootAttributes() fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  os.ModeDir | 0555,
	}
}

func (fs *FS) fileAttributes() fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  fs.size(),
		Nlink: 1,
		Mode:  fs.fileMode(),
	}
}

func (fs *FS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	if op.Parent != rootInode || op.Name != fs.name {
		return fuse.ENOENT
	}
	op.Entry.Child = fileInode
	op.Entry.Attributes = fs.fileAttributes()
	op.Entry.AttributesExpiration = never
	op.Entry.EntryExpiration = never
	return nil
}

func (fs *FS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	op.AttributesExpiration = never
	switch op.Inode {
	case rootInode:
		op.Attributes = fs.rootAttributes()
	case fileInode:
		op.Attributes = fs.fileAttributes()
	default:
		return fuse.ENOENT
	}
	return nil
}

func (fs *FS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	if op.Inode != rootInode {
		return fuse.ENOENT
	}
	return nil
}

func (fs *FS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	if op.Inode != rootInode {
		return fuse.ENOENT
	}
	entries := []fuseutil.Dirent{
		{
			Offset: 1,
			Inode:  fileInode,
			Name:   fs.name,
			Type:   fuseutil.DT_File,
		},
	}
	if op.Offset > fuseops.DirOffset(len(entries)) {
		return fuse.EIO
	}
	for _, e := range entries[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *FS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	if op.Inode != fileInode {
		return fuse.ENOENT
	}
	return nil
}

// blockRange returns the inclusive [first, last] 512-byte-aligned block
// offsets needed to cover byte range [offset, offset+length).
func blockRange(offset int64, length int) (first, last uint64) {
	first = (uint64(offset) / storage.BlockSize) * storage.BlockSize
	end := uint64(offset) + uint64(length)
	last = ((end - 1) / storage.BlockSize) * storage.BlockSize
	return first, last
}

func (fs *FS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	total := fs.size()
	if uint64(op.Offset) >= total {
		op.BytesRead = 0
		return nil
	}
	want := len(op.Dst)
	if remaining := total - uint64(op.Offset); uint64(want) > remaining {
		want = int(remaining)
	}
	if want == 0 {
		return nil
	}

	first, last := blockRange(op.Offset, want)
	startInBlock := uint64(op.Offset) - first
	n := 0
	for lba := first; lba <= last; lba += storage.BlockSize {
		block, err := fs.img.ReadBlock(lba)
		if err != nil {
			return err
		}
		src := block
		if lba == first {
			src = src[startInBlock:]
		}
		if copied := copy(op.Dst[n:want], src); copied > 0 {
			n += copied
		}
		if n >= want {
			break
		}
	}
	op.BytesRead = n
	return nil
}

func (fs *FS) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.img.Writable() {
		return syscall.EROFS
	}
	if len(op.Data) == 0 {
		return nil
	}

	first, last := blockRange(op.Offset, len(op.Data))
	startInBlock := uint64(op.Offset) - first
	n := 0
	for lba := first; lba <= last; lba += storage.BlockSize {
		block, err := fs.img.ReadBlock(lba)
		if err != nil {
			return err
		}
		buf := make([]byte, storage.BlockSize)
		copy(buf, block)
		off := uint64(0)
		if lba == first {
			off = startInBlock
		}
		copied := copy(buf[off:], op.Data[n:])
		if err := fs.img.WriteBlock(lba, buf); err != nil {
			return err
		}
		n += copied
		if n >= len(op.Data) {
			break
		}
	}
	return nil
}

func (fs *FS) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return nil
}

func (fs *FS) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	return nil
}

func (fs *FS) Destroy() {}

// Mount mounts img at mountpoint under the name filepath.Base(img.Path())
// and returns a function that blocks until the mount is unmounted (either
// externally or via ctx cancellation), cleaning up the mount on the way out.
func Mount(ctx context.Context, mountpoint string, img *diskimage.Image) (join func(context.Context) error, err error) {
	fs := New(filepath.Base(img.Path()), img)
	server := fuseutil.NewFileSystemServer(fs)

	mfs, err := fuse.Mount(mountpoint, server, &fuse.MountConfig{
		FSName:   "gsimage",
		ReadOnly: !img.Writable(),
	})
	if err != nil {
		return nil, xerrors.Errorf("fuse.Mount: %v", err)
	}

	go func() {
		<-ctx.Done()
		syscall.Unmount(mountpoint, 0)
	}()

	return mfs.Join, nil
}
