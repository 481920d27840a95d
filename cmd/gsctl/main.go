// Command gsctl is the operator entry point for this module: it wraps the
// storage engine, disk images, the AppleTalk stack, and the status/transfer
// services behind a single verb-dispatched CLI, the way distri wraps its own
// subsystems behind a single binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/pappadf/granny-smith-sub003/internal/procctl"
)

var debug = flag.Bool("debug", false, "format error messages with additional detail")

// colorEnabled reports whether diagnostics written to stderr should be
// colorized: only when stderr is an interactive terminal, never when piped
// or redirected.
func colorEnabled() bool {
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

func diagf(format string, args ...interface{}) {
	if colorEnabled() {
		fmt.Fprintf(os.Stderr, "\x1b[31m"+format+"\x1b[0m\n", args...)
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

type cmd struct {
	fn func(ctx context.Context, args []string) error
}

func funcmain() error {
	flag.Parse()

	verbs := map[string]cmd{
		"env":          {cmdenv},
		"storage":      {cmdstorage},
		"image":        {cmdimage},
		"rom":          {cmdrom},
		"bundle":       {cmdbundle},
		"checkpoint":   {cmdcheckpoint},
		"atp-debug":    {cmdatpdebug},
		"serve-status": {cmdservestatus},
		"fuse":         {cmdfuse},
		"diskwatch":    {cmddiskwatch},
	}

	args := flag.Args()
	verb := "help"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	if verb == "help" {
		fmt.Fprintf(os.Stderr, "gsctl [-flags] <command> [-flags] <args>\n\n")
		fmt.Fprintf(os.Stderr, "To get help on any command, use gsctl <command> -help.\n\n")
		fmt.Fprintf(os.Stderr, "Image commands:\n")
		fmt.Fprintf(os.Stderr, "\timage        - inspect, seed, or save a guest disk image\n")
		fmt.Fprintf(os.Stderr, "\tbundle       - export/import a storage directory as a cpio+gzip archive\n")
		fmt.Fprintf(os.Stderr, "\tcheckpoint   - push/pull a storage checkpoint over gRPC\n")
		fmt.Fprintf(os.Stderr, "\tfuse         - mount a guest disk image's blocks as a single file\n")
		fmt.Fprintf(os.Stderr, "\tdiskwatch    - watch for newly-attached host block devices\n")
		fmt.Fprintf(os.Stderr, "\tstorage      - sample write/consolidation latency and advise tuning\n")
		fmt.Fprintf(os.Stderr, "\nROM commands:\n")
		fmt.Fprintf(os.Stderr, "\trom          - verify/identify a ROM, or refresh the catalog from GitHub\n")
		fmt.Fprintf(os.Stderr, "\nAppleTalk commands:\n")
		fmt.Fprintf(os.Stderr, "\tatp-debug    - bridge an ATP/NBP stack over a LocalTalk WebSocket\n")
		fmt.Fprintf(os.Stderr, "\tserve-status - serve live ATP/NBP/image status snapshots over HTTP\n")
		fmt.Fprintf(os.Stderr, "\nOther commands:\n")
		fmt.Fprintf(os.Stderr, "\tenv          - display gsctl environment variables\n")
		os.Exit(2)
	}

	ctx, canc := procctl.InterruptibleContext()
	defer canc()

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: gsctl <command> [options]\n")
		os.Exit(2)
	}
	if err := v.fn(ctx, args); err != nil {
		if *debug {
			return fmt.Errorf("%s: %+v", verb, err)
		}
		return fmt.Errorf("%s: %v", verb, err)
	}
	return nil
}

func main() {
	if err := funcmain(); err != nil {
		diagf("%v", err)
		os.Exit(1)
	}
}
