package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pappadf/granny-smith-sub003/diskimage"
	"github.com/pappadf/granny-smith-sub003/internal/fuseimage"
)

const fuseHelp = `gsctl fuse [-flags] <image-path> <mountpoint>

Mount a guest disk image's blocks as a single file under mountpoint, so it
can be read (and, with -write, written) with ordinary file tools.

Example:
  % gsctl fuse disk1.img /mnt/disk1
`

func cmdfuse(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("fuse", flag.ExitOnError)
	write := fset.Bool("write", false, "mount the image writable")
	fset.Usage = usage(fset, fuseHelp)
	fset.Parse(args)
	if fset.NArg() != 2 {
		fset.Usage()
		return fmt.Errorf("expected <image-path> <mountpoint>")
	}

	img, err := diskimage.Open(fset.Arg(0), *write)
	if err != nil {
		return err
	}

	join, err := fuseimage.Mount(ctx, fset.Arg(1), img)
	if err != nil {
		return err
	}
	return join(ctx)
}
