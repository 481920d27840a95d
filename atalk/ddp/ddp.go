// Package ddp implements Datagram Delivery Protocol short-header framing and
// routing by protocol type (NBP, ATP, AEP, RTMP).
package ddp

import (
	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

// DDP protocol types, carried in the short header.
const (
	TypeNBP  = 2
	TypeATP  = 3
	TypeAEP  = 4
	TypeRTMP = 5
)

// Well-known sockets.
const (
	SocketNBP       = 2
	SocketPAP       = 6
	SocketAFP       = 8
	SocketAFPCompat = 54
)

// MaxData is the largest payload a short-header DDP datagram can carry.
const MaxData = 586

const headerSize = 5

// Header is a DDP short header: a 10-bit length split across the top two
// bits of byte 0 and all of byte 1, followed by destination socket, source
// socket, and protocol type.
//
// Node is not part of the short-header wire format (single-hop LocalTalk
// addressing is carried by the enclosing LLAP frame) — llap.Dispatch fills
// it in from the frame's source node before handing the header to a Router,
// so that handlers needing the originating node (ATP's requester/XO keys)
// don't have to thread it through a parallel parameter.
type Header struct {
	Length    uint16
	DstSocket byte
	SrcSocket byte
	Type      byte
	Node      byte
}

// ParseShortHeader decodes a 5-byte short header from the front of buf and
// returns the header plus the remaining payload, truncated to the header's
// declared length.
func ParseShortHeader(buf []byte) (Header, []byte, error) {
	const op = "ddp.ParseShortHeader"
	if len(buf) < headerSize {
		return Header{}, nil, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("short DDP header needs %d bytes, got %d", headerSize, len(buf)))
	}
	length := uint16(buf[0]&3)<<8 | uint16(buf[1])
	h := Header{Length: length, DstSocket: buf[2], SrcSocket: buf[3], Type: buf[4]}

	payload := buf[headerSize:]
	if dataLen := int(length) - headerSize; dataLen >= 0 && dataLen <= len(payload) {
		payload = payload[:dataLen]
	}
	return h, payload, nil
}

// Bytes encodes h and payload back into a short-header DDP datagram.
func (h Header) Bytes(payload []byte) []byte {
	length := uint16(headerSize + len(payload))
	buf := make([]byte, headerSize+len(payload))
	buf[0] = byte((length >> 8) & 3)
	buf[1] = byte(length)
	buf[2] = h.DstSocket
	buf[3] = h.SrcSocket
	buf[4] = h.Type
	copy(buf[headerSize:], payload)
	return buf
}

func reply(hdr Header) Header {
	return Header{DstSocket: hdr.SrcSocket, SrcSocket: hdr.DstSocket, Type: hdr.Type}
}

// Handler processes one inbound DDP datagram of a given type and returns the
// payloads to send back (zero or more packets — NBP lookup replies and ATP
// responses can both span several packets), or ok=false to send nothing.
type Handler interface {
	HandleDDP(hdr Header, payload []byte) (replyPayloads [][]byte, ok bool)
}

// Logger is the minimal interface Router needs for tracing unhandled types;
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Router dispatches inbound short-header DDP datagrams by protocol type.
type Router struct {
	NBP    Handler // type 2
	ATP    Handler // type 3, only for sockets AFP/AFP-compat/PAP
	Logger Logger
}

// Route dispatches hdr/payload and returns the reply header plus every
// payload to send back under it, or ok=false if there is nothing to send.
func (r *Router) Route(hdr Header, payload []byte) (Header, [][]byte, bool) {
	switch hdr.Type {
	case TypeNBP:
		if r.NBP == nil {
			return Header{}, nil, false
		}
		out, ok := r.NBP.HandleDDP(hdr, payload)
		if !ok {
			return Header{}, nil, false
		}
		return reply(hdr), out, true

	case TypeATP:
		if hdr.DstSocket != SocketAFP && hdr.DstSocket != SocketAFPCompat && hdr.DstSocket != SocketPAP {
			return Header{}, nil, false
		}
		if r.ATP == nil {
			return Header{}, nil, false
		}
		out, ok := r.ATP.HandleDDP(hdr, payload)
		if !ok {
			return Header{}, nil, false
		}
		return reply(hdr), out, true

	case TypeAEP:
		// Echo protocol: send the payload back with source and destination
		// swapped.
		return reply(hdr), [][]byte{payload}, true

	case TypeRTMP:
		// Acknowledged minimally: an empty reply of the same type.
		return reply(hdr), [][]byte{nil}, true

	default:
		if r.Logger != nil {
			r.Logger.Printf("ddp: unhandled protocol type %d from socket %d", hdr.Type, hdr.SrcSocket)
		}
		return Header{}, nil, false
	}
}
