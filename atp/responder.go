package atp

import (
	"time"

	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

const (
	maxResponderSockets = 8
	maxXOEntries        = 16
)

// Fragment is one response packet a ResponderHandler produces; EOM is
// forced on the last fragment by the engine, so handlers only need to flag
// STS when they want an immediate requester retry of the remaining bitmap.
type Fragment struct {
	Data []byte
	STS  bool
}

// TReqContext is the inbound request handed to a ResponderHandler.
type TReqContext struct {
	TID       uint16
	Requester Destination
	Bitmap    byte
	UserBytes [4]byte
	Data      []byte
}

// ResponderHandler answers an inbound TReq with zero or more response
// fragments.
type ResponderHandler interface {
	HandleTReq(req TReqContext) []Fragment
}

type xoCacheEntry struct {
	inUse           bool
	tid             uint16
	requesterNode   byte
	requesterSocket byte
	responderSocket byte
	packets         [][]byte
}

type responder struct {
	handlers map[byte]ResponderHandler
	xo       [maxXOEntries]xoCacheEntry
}

func newResponder() *responder {
	return &responder{handlers: make(map[byte]ResponderHandler)}
}

func (r *responder) register(socket byte, h ResponderHandler) error {
	const op = "atp.Engine.RegisterHandler"
	if _, exists := r.handlers[socket]; !exists && len(r.handlers) >= maxResponderSockets {
		return gserr.E(op, gserr.CapacityExhausted, xerrors.Errorf("ATP responder socket table full (%d sockets)", maxResponderSockets))
	}
	r.handlers[socket] = h
	return nil
}

func (r *responder) findXO(tid uint16, reqNode, reqSocket, respSocket byte) int {
	for i := range r.xo {
		e := &r.xo[i]
		if e.inUse && e.tid == tid && e.requesterNode == reqNode && e.requesterSocket == reqSocket && e.responderSocket == respSocket {
			return i
		}
	}
	return -1
}

func (r *responder) allocXO() int {
	for i := range r.xo {
		if !r.xo[i].inUse {
			return i
		}
	}
	return -1
}

func (r *responder) releaseXO(idx int) {
	r.xo[idx] = xoCacheEntry{}
}

func sendSelected(sender Sender, remote Destination, packets [][]byte, bitmap byte) {
	for i, raw := range packets {
		if i >= 8 {
			break
		}
		if bitmap&(1<<uint(i)) != 0 {
			_ = sender.SendATP(remote, raw)
		}
	}
}

// handleTReq answers or re-answers an inbound TReq. On an XO cache hit, the
// cached packets selected by the new bitmap are retransmitted without
// invoking the handler again, and the release timer is rearmed; on a miss
// the handler runs and, for XO requests, the built packets are cached.
func (r *responder) handleTReq(now time.Time, sched *scheduler, sender Sender, localSocket byte, remote Destination, pkt Packet) {
	handler, ok := r.handlers[localSocket]
	if !ok {
		return
	}

	if pkt.XO() {
		if idx := r.findXO(pkt.TID, remote.Node, remote.Socket, localSocket); idx >= 0 {
			entry := &r.xo[idx]
			sendSelected(sender, remote, entry.packets, pkt.Bitmap)
			sched.arm(now, eventXORelease, uint16(idx), pkt.TRelHint(), func() { r.releaseXO(idx) })
			return
		}
	}

	frags := handler.HandleTReq(TReqContext{TID: pkt.TID, Requester: remote, Bitmap: pkt.Bitmap, UserBytes: pkt.UserBytes, Data: pkt.Data})
	if len(frags) == 0 {
		return
	}

	packets := make([][]byte, len(frags))
	for i, f := range frags {
		ctl := byte(CtlTResp)
		if f.STS {
			ctl |= ctlSTS
		}
		if i == len(frags)-1 {
			ctl |= ctlEOM
		}
		if pkt.XO() {
			ctl |= ctlXO
		}
		p := Packet{Ctl: ctl, Bitmap: byte(i), TID: pkt.TID, UserBytes: pkt.UserBytes, Data: f.Data}
		packets[i] = p.Bytes()
	}
	sendSelected(sender, remote, packets, pkt.Bitmap)

	if pkt.XO() {
		idx := r.allocXO()
		if idx < 0 {
			return // XO cache full; the response was still sent, just won't survive a retransmit
		}
		r.xo[idx] = xoCacheEntry{inUse: true, tid: pkt.TID, requesterNode: remote.Node, requesterSocket: remote.Socket, responderSocket: localSocket, packets: packets}
		sched.arm(now, eventXORelease, uint16(idx), pkt.TRelHint(), func() { r.releaseXO(idx) })
	}
}

func (r *responder) handleTRel(sched *scheduler, tid uint16, remote Destination, localSocket byte) {
	if idx := r.findXO(tid, remote.Node, remote.Socket, localSocket); idx >= 0 {
		sched.cancel(eventXORelease, uint16(idx))
		r.releaseXO(idx)
	}
}
