package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pappadf/granny-smith-sub003/internal/blockarchive"
)

const bundleHelp = `gsctl bundle [-flags] <export|import> <storage-dir> <archive-path>

Export a storage directory to a cpio archive (optionally gzip-compressed),
or import one back into an empty storage directory.

Example:
  % gsctl bundle export disk1.img.blocks disk1.bundle.cpio.gz
  % gsctl bundle -gzip=false import restored.blocks disk1.bundle.cpio
`

func cmdbundle(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("bundle", flag.ExitOnError)
	gzip := fset.Bool("gzip", true, "compress (export) or expect compressed (import) archive content")
	fset.Usage = usage(fset, bundleHelp)
	fset.Parse(args)
	if fset.NArg() != 3 {
		fset.Usage()
		return fmt.Errorf("expected <export|import> <storage-dir> <archive-path>")
	}
	verb, dir, archivePath := fset.Arg(0), fset.Arg(1), fset.Arg(2)

	switch verb {
	case "export":
		f, err := os.Create(archivePath)
		if err != nil {
			return err
		}
		defer f.Close()
		return blockarchive.Export(dir, f, *gzip)

	case "import":
		f, err := os.Open(archivePath)
		if err != nil {
			return err
		}
		defer f.Close()
		return blockarchive.Import(f, dir, *gzip)

	default:
		fset.Usage()
		return fmt.Errorf("unknown bundle verb %q, want export or import", verb)
	}
}
