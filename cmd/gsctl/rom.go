package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pappadf/granny-smith-sub003/internal/romcatalog"
	"github.com/pappadf/granny-smith-sub003/romid"
)

const romHelp = `gsctl rom [-flags] <path>

Verify a ROM file's embedded checksum and identify it against the known ROM
table. With -refresh-from, pull the catalog's CSV source from a GitHub repo
path and merge in any new entries before identifying.

Example:
  % gsctl rom Quadra800.rom
  % gsctl rom -refresh-from owner/repo/path/to/roms.csv -ref main Quadra800.rom
`

func cmdrom(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("rom", flag.ExitOnError)
	var (
		refreshFrom = fset.String("refresh-from", "", "owner/repo/path to a ROM catalog CSV on GitHub, merged in before identifying")
		ref         = fset.String("ref", "", "git ref to read -refresh-from at (defaults to the repo's default branch)")
		token       = fset.String("github-token", os.Getenv("GITHUB_TOKEN"), "GitHub access token for -refresh-from (defaults to $GITHUB_TOKEN)")
	)
	fset.Usage = usage(fset, romHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		fset.Usage()
		return fmt.Errorf("expected exactly one ROM path")
	}

	if *refreshFrom != "" {
		src, err := parseCatalogSource(*refreshFrom, *ref)
		if err != nil {
			return err
		}
		client := romcatalog.NewClient(ctx, *token, src)
		added, err := client.Refresh(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("catalog: merged %d new entries\n", added)
	}

	rom, err := os.ReadFile(fset.Arg(0))
	if err != nil {
		return err
	}

	ok, err := romid.Verify(rom)
	if err != nil {
		return err
	}
	fmt.Printf("checksum valid: %t\n", ok)

	entry, err := romid.Identify(rom)
	if err != nil {
		return err
	}
	fmt.Printf("identified as:  %s\n", entry.Model)
	return nil
}

// parseCatalogSource splits "owner/repo/path..." into a romcatalog.Source.
func parseCatalogSource(spec, ref string) (romcatalog.Source, error) {
	parts := strings.SplitN(spec, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return romcatalog.Source{}, fmt.Errorf("malformed -refresh-from %q, want owner/repo/path", spec)
	}
	return romcatalog.Source{Owner: parts[0], Repo: parts[1], Path: parts[2], Ref: ref}, nil
}
