package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pappadf/granny-smith-sub003/atalk/ddp"
	"github.com/pappadf/granny-smith-sub003/atp"
	"github.com/pappadf/granny-smith-sub003/diskimage"
	"github.com/pappadf/granny-smith-sub003/internal/atalknet"
	"github.com/pappadf/granny-smith-sub003/internal/statussrv"
	"github.com/pappadf/granny-smith-sub003/nbp"
)

const serveStatusHelp = `gsctl serve-status [-flags] <image-path>...

Run an NBP/ATP AppleTalk bridge (the same stack atp-debug serves) and a
periodically-rendered JSON status server side by side, so the status
snapshots reflect a live engine instead of an idle one.

Example:
  % gsctl serve-status -bridge-listen :7075 -status-listen :7090 disk1.img
`

func cmdservestatus(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("serve-status", flag.ExitOnError)
	var (
		bridgeListen = fset.String("bridge-listen", ":7075", "[host]:port for the LocalTalk WebSocket bridge")
		statusListen = fset.String("status-listen", ":7090", "[host]:port to serve status snapshots on")
		dumpDir      = fset.String("dump-dir", "", "directory to render JSON dumps into (defaults to a temp dir)")
		interval     = fset.Duration("interval", 2*time.Second, "engine tick and snapshot re-render interval")
	)
	fset.Usage = usage(fset, serveStatusHelp)
	fset.Parse(args)

	var images []*diskimage.Image
	for _, path := range fset.Args() {
		img, err := diskimage.Open(path, false)
		if err != nil {
			return err
		}
		images = append(images, img)
	}

	dir := *dumpDir
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "gsctl-status")
		if err != nil {
			return err
		}
	}

	logger := log.New(log.Writer(), "serve-status: ", log.LstdFlags)
	registry := nbp.New()
	engine := atp.NewEngine(logSender{logger: logger})
	router := &ddp.Router{NBP: registry, ATP: engine, Logger: logger}
	bridge := atalknet.NewBridge(router)

	srv, err := statussrv.New(statussrv.Sources{
		ATP: engine,
		NBP: registry,
		Images: func() []statussrv.ImageStatus {
			out := make([]statussrv.ImageStatus, len(images))
			for i, img := range images {
				out[i] = statussrv.ImageStatus{
					Path:       img.Path(),
					Kind:       img.Kind().String(),
					Writable:   img.Writable(),
					BlockCount: img.Storage().BlockCount(),
				}
			}
			return out
		},
	}, dir)
	if err != nil {
		return err
	}

	var eg errgroup.Group
	engine.RunBackgroundTicker(ctx, &eg, *interval)
	srv.RunSnapshotLoop(ctx, &eg, *interval)
	if err := srv.Serve(ctx, &eg, *statusListen); err != nil {
		return err
	}

	bridgeMux := http.NewServeMux()
	bridgeMux.Handle("/", bridge.Handler())
	bridgeSrv := &http.Server{Addr: *bridgeListen, Handler: bridgeMux}
	eg.Go(func() error {
		logger.Printf("serving LocalTalk bridge on %s", *bridgeListen)
		if err := bridgeSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		return bridgeSrv.Shutdown(context.Background())
	})

	return eg.Wait()
}
