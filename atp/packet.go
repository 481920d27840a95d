// Package atp implements the AppleTalk Transaction Protocol: a requester
// side with retry timers, a responder side with a socket-handler table, and
// the exactly-once (XO) response cache that lets a responder re-send a
// cached reply instead of re-running a handler for a retransmitted request.
package atp

import (
	"encoding/binary"
	"time"

	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

// Control byte layout: top two bits are the packet kind, followed by XO,
// EOM, and STS flags, with the low three bits doubling as the TRel release
// timer hint on a TReq.
const (
	ctlKindMask = 0xC0
	CtlTReq     = 0x40
	CtlTResp    = 0x80
	CtlTRel     = 0xC0

	ctlXO           = 0x20
	ctlEOM          = 0x10
	ctlSTS          = 0x08
	ctlTRelHintMask = 0x07
)

// releaseDurations maps a 3-bit TRel hint to the release-timer duration; the
// protocol only defines 30/60/120/240/480s, so hint codes beyond those clamp
// to the longest duration.
var releaseDurations = [8]time.Duration{
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	240 * time.Second,
	480 * time.Second,
	480 * time.Second,
	480 * time.Second,
	480 * time.Second,
}

const headerSize = 8 // ctl, bitmap, tid_hi, tid_lo, user[4]

// Packet is one ATP wire packet.
type Packet struct {
	Ctl       byte
	Bitmap    byte // outstanding-bits request bitmap, or response sequence number
	TID       uint16
	UserBytes [4]byte
	Data      []byte
}

// Kind returns one of CtlTReq, CtlTResp, CtlTRel.
func (p Packet) Kind() byte { return p.Ctl & ctlKindMask }

// XO reports whether the exactly-once bit is set.
func (p Packet) XO() bool { return p.Ctl&ctlXO != 0 }

// EOM reports whether this is (or terminates) the last response packet.
func (p Packet) EOM() bool { return p.Ctl&ctlEOM != 0 }

// STS reports whether the sender wants an immediate retry of the remaining
// bitmap without waiting out the retry timer.
func (p Packet) STS() bool { return p.Ctl&ctlSTS != 0 }

// TRelHint decodes the release-timer duration carried in a TReq's control
// byte.
func (p Packet) TRelHint() time.Duration { return releaseDurations[p.Ctl&ctlTRelHintMask] }

// ParsePacket decodes an ATP packet from the front of buf.
func ParsePacket(buf []byte) (Packet, error) {
	const op = "atp.ParsePacket"
	if len(buf) < headerSize {
		return Packet{}, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("ATP packet needs %d bytes, got %d", headerSize, len(buf)))
	}
	p := Packet{
		Ctl:    buf[0],
		Bitmap: buf[1],
		TID:    binary.BigEndian.Uint16(buf[2:4]),
		Data:   buf[headerSize:],
	}
	copy(p.UserBytes[:], buf[4:8])
	return p, nil
}

// Bytes encodes p back into wire format.
func (p Packet) Bytes() []byte {
	buf := make([]byte, headerSize+len(p.Data))
	buf[0] = p.Ctl
	buf[1] = p.Bitmap
	binary.BigEndian.PutUint16(buf[2:4], p.TID)
	copy(buf[4:8], p.UserBytes[:])
	copy(buf[headerSize:], p.Data)
	return buf
}

// Destination addresses an AppleTalk socket on some node.
type Destination struct {
	Net    uint16
	Node   byte
	Socket byte
}

// Sender transmits a built ATP packet to dest; Engine never touches LLAP or
// DDP framing directly, matching how C8 is described as sitting beside C6
// rather than inside it.
type Sender interface {
	SendATP(dest Destination, payload []byte) error
}

// Result is how a requester transaction finished.
type Result int

const (
	ResultOK Result = iota
	ResultTimeout
	ResultAborted
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultTimeout:
		return "timeout"
	case ResultAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
