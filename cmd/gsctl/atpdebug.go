package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pappadf/granny-smith-sub003/atalk/ddp"
	"github.com/pappadf/granny-smith-sub003/atp"
	"github.com/pappadf/granny-smith-sub003/internal/atalknet"
	"github.com/pappadf/granny-smith-sub003/nbp"
)

const atpDebugHelp = `gsctl atp-debug [-flags]

Bridge an NBP/ATP AppleTalk stack over a LocalTalk-over-WebSocket endpoint,
logging engine occupancy every -interval until interrupted. Useful for
exercising the NBP registry and ATP responder against a real LLAP client
without a guest OS attached.

Example:
  % gsctl atp-debug -listen :7075
`

// logSender logs outbound ATP packets instead of actually transmitting them:
// a standalone debug listener has no fixed peer address to retry a
// timer-driven ATP retransmission against, unlike the synchronous
// request/reply path Bridge.Handler already serves per connection.
type logSender struct{ logger *log.Logger }

func (s logSender) SendATP(dest atp.Destination, payload []byte) error {
	s.logger.Printf("would send %d bytes to node %d socket %d", len(payload), dest.Node, dest.Socket)
	return nil
}

func cmdatpdebug(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("atp-debug", flag.ExitOnError)
	var (
		listen   = fset.String("listen", ":7075", "[host]:port to serve the LocalTalk WebSocket bridge on")
		interval = fset.Duration("interval", 5*time.Second, "engine tick and occupancy-log interval")
	)
	fset.Usage = usage(fset, atpDebugHelp)
	fset.Parse(args)

	logger := log.New(log.Writer(), "atp-debug: ", log.LstdFlags)

	registry := nbp.New()
	engine := atp.NewEngine(logSender{logger: logger})
	router := &ddp.Router{NBP: registry, ATP: engine, Logger: logger}
	bridge := atalknet.NewBridge(router)

	var eg errgroup.Group
	engine.RunBackgroundTicker(ctx, &eg, *interval)

	mux := http.NewServeMux()
	mux.Handle("/", bridge.Handler())
	httpSrv := &http.Server{Addr: *listen, Handler: mux}

	eg.Go(func() error {
		logger.Printf("serving LocalTalk bridge on %s", *listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		return httpSrv.Shutdown(context.Background())
	})
	eg.Go(func() error {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s := engine.Stats()
				fmt.Printf("atp: reqSlots=%d/%d xoCache=%d/%d responders=%d nbpEntries=%d\n",
					s.RequestSlotsInUse, s.RequestSlotsTotal,
					s.XOCacheEntries, s.XOCacheCapacity,
					s.ResponderSockets, len(registry.Entries()))
			}
		}
	})
	return eg.Wait()
}
