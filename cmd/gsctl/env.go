package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pappadf/granny-smith-sub003/internal/env"
)

const envHelp = `gsctl env

Display gsctl environment variables.

Example:
  % gsctl env
`

func cmdenv(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("env", flag.ExitOnError)
	fset.Usage = usage(fset, envHelp)
	fset.Parse(args)
	fmt.Printf("GS_STORAGE_CACHE=%q\n", env.StorageCacheRoot)
	return nil
}
