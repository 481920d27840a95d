package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pappadf/granny-smith-sub003/diskimage"
)

const imageHelp = `gsctl image [-flags] <path>

Inspect a guest disk image, seeding its .blocks storage directory on first
use. With -save, export the image's current block content to a fresh file
instead.

Example:
  % gsctl image disk1.img
  % gsctl image -write -save disk1.out.img disk1.img
`

func cmdimage(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("image", flag.ExitOnError)
	var (
		write = fset.Bool("write", false, "open the image writable")
		save  = fset.String("save", "", "if set, save the current block content to this path instead of printing a summary")
	)
	fset.Usage = usage(fset, imageHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		fset.Usage()
		return fmt.Errorf("expected exactly one image path")
	}

	img, err := diskimage.Open(fset.Arg(0), *write || *save != "")
	if err != nil {
		return err
	}

	if *save != "" {
		return img.Save(*save)
	}

	fmt.Printf("path:       %s\n", img.Path())
	fmt.Printf("kind:       %s\n", img.Kind())
	fmt.Printf("diskcopy:   %t\n", img.IsDiskCopy())
	fmt.Printf("writable:   %t\n", img.Writable())
	fmt.Printf("blockcount: %d\n", img.Storage().BlockCount())
	return nil
}
