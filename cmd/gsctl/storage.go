package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/pappadf/granny-smith-sub003/diskimage"
	"github.com/pappadf/granny-smith-sub003/internal/storagestats"
	"github.com/pappadf/granny-smith-sub003/storage"
)

const storageHelp = `gsctl storage advise [-flags] <image-path>

Sample an open image's write and consolidation latency over -samples rounds
and recommend a ConsolidationsPerTick setting.

Example:
  % gsctl storage advise -samples 32 disk1.img
`

func cmdstorage(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("storage", flag.ExitOnError)
	samples := fset.Int("samples", 16, "number of write+consolidate rounds to sample")
	fset.Usage = usage(fset, storageHelp)
	fset.Parse(args)
	if fset.NArg() != 2 || fset.Arg(0) != "advise" {
		fset.Usage()
		return fmt.Errorf("expected: advise <image-path>")
	}

	img, err := diskimage.Open(fset.Arg(1), true)
	if err != nil {
		return err
	}

	advisor := storagestats.NewAdvisor(*samples, 1)
	buf := make([]byte, storage.BlockSize)
	blockCount := img.Storage().BlockCount()
	for i := 0; i < *samples; i++ {
		lba := uint64(i) % blockCount

		start := time.Now()
		if err := img.WriteBlock(lba*storage.BlockSize, buf); err != nil {
			return err
		}
		advisor.RecordWrite(time.Since(start))

		start = time.Now()
		if err := img.Tick(); err != nil {
			return err
		}
		advisor.RecordConsolidation(time.Since(start))
	}

	advice := advisor.Advise()
	fmt.Printf("consolidations_per_tick: %d\n", advice.ConsolidationsPerTick)
	fmt.Printf("reason:                  %s\n", advice.Reason)
	return nil
}
