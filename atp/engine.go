package atp

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pappadf/granny-smith-sub003/atalk/ddp"
)

// Engine is the ATP core: requester slots with retry timers, a responder
// socket-handler table, and the XO cache, all driven by an explicit Tick
// rather than real goroutine timers, so the whole engine can be driven
// deterministically by a CPU emulation loop or by tests.
type Engine struct {
	sender    Sender
	sched     *scheduler
	responder *responder

	reqSlots [maxRequestSlots]requestSlot
	nextTID  map[byte]uint16

	now time.Time
}

// NewEngine creates an Engine that transmits outbound packets via sender.
func NewEngine(sender Sender) *Engine {
	return &Engine{
		sender:    sender,
		sched:     newScheduler(),
		responder: newResponder(),
		nextTID:   make(map[byte]uint16),
	}
}

// RegisterHandler installs h as the responder for localSocket.
func (e *Engine) RegisterHandler(localSocket byte, h ResponderHandler) error {
	return e.responder.register(localSocket, h)
}

// Stats is a point-in-time snapshot of engine occupancy, for status
// reporting (it is not used by the protocol logic itself).
type Stats struct {
	RequestSlotsInUse int
	RequestSlotsTotal int
	XOCacheEntries    int
	XOCacheCapacity   int
	ResponderSockets  int
}

// Stats reports how full the engine's fixed-size tables currently are.
func (e *Engine) Stats() Stats {
	s := Stats{RequestSlotsTotal: maxRequestSlots, XOCacheCapacity: maxXOEntries}
	for i := range e.reqSlots {
		if e.reqSlots[i].inUse {
			s.RequestSlotsInUse++
		}
	}
	for i := range e.responder.xo {
		if e.responder.xo[i].inUse {
			s.XOCacheEntries++
		}
	}
	s.ResponderSockets = len(e.responder.handlers)
	return s
}

// Tick advances the engine's timer wheel to now, firing any due retry or
// XO-release timers.
func (e *Engine) Tick(now time.Time) {
	e.now = now
	e.sched.tick(now)
}

// RunBackgroundTicker drives Tick once per interval until ctx is cancelled,
// supervised the way the corpus supervises background work elsewhere:
// registered on eg via errgroup.Group.Go so the caller's eg.Wait() observes
// its exit (always nil here; ctx cancellation is the only way out).
func (e *Engine) RunBackgroundTicker(ctx context.Context, eg *errgroup.Group, interval time.Duration) {
	eg.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case t := <-ticker.C:
				e.Tick(t)
			}
		}
	})
}

// HandleDDP implements ddp.Handler. ATP never answers synchronously through
// the router's reply path: a TReq's response (and any later XO
// retransmission or retry) always goes out through the Engine's own Sender,
// since retries and XO releases are timer-driven and have no inbound packet
// to attach a reply to. HandleDDP therefore always reports ok=false; its
// only job is to feed the decoded packet into the requester or responder
// state machine.
func (e *Engine) HandleDDP(hdr ddp.Header, payload []byte) ([][]byte, bool) {
	pkt, err := ParsePacket(payload)
	if err != nil {
		return nil, false
	}
	remote := Destination{Node: hdr.Node, Socket: hdr.SrcSocket}

	switch pkt.Kind() {
	case CtlTReq:
		e.responder.handleTReq(e.now, e.sched, e.sender, hdr.DstSocket, remote, pkt)
	case CtlTResp:
		e.handleResponsePacket(hdr.DstSocket, remote, pkt)
	case CtlTRel:
		e.responder.handleTRel(e.sched, pkt.TID, remote, hdr.DstSocket)
	}
	return nil, false
}
