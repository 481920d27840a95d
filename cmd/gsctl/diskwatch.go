package main

import (
	"context"
	"flag"
	"log"

	"github.com/pappadf/granny-smith-sub003/internal/diskwatch"
)

const diskwatchHelp = `gsctl diskwatch [-flags]

Watch the kernel uevent stream for newly-attached block devices and log
their /dev path (linux only). A production caller would open each reported
path as a guest disk image via "gsctl image".

Example:
  % gsctl diskwatch
`

func cmddiskwatch(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("diskwatch", flag.ExitOnError)
	fset.Usage = usage(fset, diskwatchHelp)
	fset.Parse(args)

	logger := log.New(log.Writer(), "diskwatch: ", log.LstdFlags)
	return diskwatch.Watch(ctx, func(devicePath string) error {
		logger.Printf("new block device: %s", devicePath)
		return nil
	})
}
