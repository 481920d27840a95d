package atp

import (
	"time"

	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

const maxRequestSlots = 16

// Callbacks are invoked as a submitted transaction progresses.
type Callbacks struct {
	// OnResponse fires for every inbound response packet, including
	// duplicates (bit already clear), which are tagged duplicate=true and
	// must not be treated as new data.
	OnResponse func(seq int, data []byte, duplicate bool)
	// OnComplete fires exactly once, when the transaction reaches ok,
	// timeout, or aborted.
	OnComplete func(result Result)
}

// SubmitParams describes one outgoing transaction.
type SubmitParams struct {
	Dest         Destination
	SrcSocket    byte
	UserBytes    [4]byte
	Data         []byte
	Bitmap       byte // requested response packets; 0 defaults to all 8
	XO           bool
	TRelHintCode byte
	RetryTimeout time.Duration
	RetryLimit   int // negative = infinite
	Callbacks    Callbacks
}

type requestSlot struct {
	inUse        bool
	tid          uint16
	srcSocket    byte
	dest         Destination
	ctl          byte
	userBytes    [4]byte
	data         []byte
	bitmap       byte
	retryTimeout time.Duration
	retryLimit   int
	retriesLeft  int
	callbacks    Callbacks
}

func (e *Engine) allocRequestSlot() int {
	for i := range e.reqSlots {
		if !e.reqSlots[i].inUse {
			return i
		}
	}
	return -1
}

func (e *Engine) nextTIDFor(socket byte) uint16 {
	tid := e.nextTID[socket]
	for {
		collision := false
		for i := range e.reqSlots {
			if e.reqSlots[i].inUse && e.reqSlots[i].srcSocket == socket && e.reqSlots[i].tid == tid {
				collision = true
				break
			}
		}
		if !collision {
			break
		}
		tid++
	}
	e.nextTID[socket] = tid + 1
	return tid
}

// Submit allocates a slot, builds and sends the initial TReq, and arms its
// retry timer.
func (e *Engine) Submit(now time.Time, params SubmitParams) (int, error) {
	const op = "atp.Engine.Submit"
	e.now = now

	idx := e.allocRequestSlot()
	if idx < 0 {
		return -1, gserr.E(op, gserr.CapacityExhausted, xerrors.Errorf("ATP request table full (%d slots)", maxRequestSlots))
	}

	bitmap := params.Bitmap
	if bitmap == 0 {
		bitmap = 0xFF
	}
	ctl := byte(CtlTReq)
	if params.XO {
		ctl |= ctlXO | (params.TRelHintCode & ctlTRelHintMask)
	}

	e.reqSlots[idx] = requestSlot{
		inUse:        true,
		tid:          e.nextTIDFor(params.SrcSocket),
		srcSocket:    params.SrcSocket,
		dest:         params.Dest,
		ctl:          ctl,
		userBytes:    params.UserBytes,
		data:         params.Data,
		bitmap:       bitmap,
		retryTimeout: params.RetryTimeout,
		retryLimit:   params.RetryLimit,
		retriesLeft:  params.RetryLimit,
		callbacks:    params.Callbacks,
	}
	slot := &e.reqSlots[idx]

	if err := e.sendRequest(slot); err != nil {
		return -1, err
	}
	e.armRetry(idx)
	return idx, nil
}

func (e *Engine) sendRequest(slot *requestSlot) error {
	pkt := Packet{Ctl: slot.ctl, Bitmap: slot.bitmap, TID: slot.tid, UserBytes: slot.userBytes, Data: slot.data}
	return e.sender.SendATP(slot.dest, pkt.Bytes())
}

func (e *Engine) armRetry(idx int) {
	slot := &e.reqSlots[idx]
	e.sched.arm(e.now, eventRetryTimeout, uint16(idx), slot.retryTimeout, func() { e.onRetryTimeout(idx) })
}

func (e *Engine) onRetryTimeout(idx int) {
	slot := &e.reqSlots[idx]
	if !slot.inUse {
		return
	}
	if slot.retryLimit >= 0 {
		if slot.retriesLeft <= 0 {
			e.completeRequest(idx, ResultTimeout)
			return
		}
		slot.retriesLeft--
	}
	if err := e.sendRequest(slot); err != nil {
		e.completeRequest(idx, ResultTimeout)
		return
	}
	e.armRetry(idx)
}

// Cancel aborts a live request; idempotent.
func (e *Engine) Cancel(idx int) {
	if idx < 0 || idx >= len(e.reqSlots) || !e.reqSlots[idx].inUse {
		return
	}
	e.completeRequest(idx, ResultAborted)
}

func (e *Engine) completeRequest(idx int, result Result) {
	slot := &e.reqSlots[idx]
	if !slot.inUse {
		return
	}
	cb := slot.callbacks.OnComplete
	slot.inUse = false
	e.sched.cancel(eventRetryTimeout, uint16(idx))
	if cb != nil {
		cb(result)
	}
}

func (e *Engine) findRequestSlot(tid uint16, localSocket byte, remote Destination) int {
	for i := range e.reqSlots {
		s := &e.reqSlots[i]
		if s.inUse && s.tid == tid && s.srcSocket == localSocket && s.dest.Node == remote.Node && s.dest.Socket == remote.Socket {
			return i
		}
	}
	return -1
}

func (e *Engine) handleResponsePacket(localSocket byte, remote Destination, pkt Packet) {
	idx := e.findRequestSlot(pkt.TID, localSocket, remote)
	if idx < 0 {
		return
	}
	slot := &e.reqSlots[idx]

	seq := int(pkt.Bitmap & 7)
	bit := byte(1) << uint(seq)
	duplicate := slot.bitmap&bit == 0
	if !duplicate {
		slot.bitmap &^= bit
		if pkt.EOM() {
			for b := seq + 1; b < 8; b++ {
				slot.bitmap &^= 1 << uint(b)
			}
		}
	}

	if slot.callbacks.OnResponse != nil {
		slot.callbacks.OnResponse(seq, pkt.Data, duplicate)
	}

	if pkt.STS() {
		if slot.bitmap != 0 {
			_ = e.sendRequest(slot)
		}
		return
	}

	if slot.bitmap == 0 {
		if slot.ctl&ctlXO != 0 {
			e.sendTRel(slot)
		}
		e.completeRequest(idx, ResultOK)
	}
}

func (e *Engine) sendTRel(slot *requestSlot) {
	pkt := Packet{Ctl: CtlTRel, TID: slot.tid, UserBytes: slot.userBytes}
	_ = e.sender.SendATP(slot.dest, pkt.Bytes())
}
