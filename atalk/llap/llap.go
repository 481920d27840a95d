// Package llap implements LocalTalk Link Access Protocol framing: the
// 3-byte {dst, src, type} envelope around DDP datagrams, plus the ENQ/RTS
// handshake replies.
package llap

import (
	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/atalk/ddp"
	"github.com/pappadf/granny-smith-sub003/gserr"
)

// HostNode is this stack's LocalTalk node number.
const HostNode = 33

// LLAP frame types.
const (
	TypeShortDDP = 0x01
	TypeLongDDP  = 0x02 // DDP_EXTENDED: unsupported, always an error
	TypeENQ      = 0x81
	TypeACK      = 0x82
	TypeRTS      = 0x84
	TypeCTS      = 0x85
)

const headerSize = 3

// Frame is one LLAP frame.
type Frame struct {
	Dst, Src, Type byte
	Payload        []byte
}

// Parse decodes a 3-byte LLAP header plus trailing payload from buf.
func Parse(buf []byte) (Frame, error) {
	const op = "llap.Parse"
	if len(buf) < headerSize {
		return Frame{}, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("LLAP header needs %d bytes, got %d", headerSize, len(buf)))
	}
	return Frame{Dst: buf[0], Src: buf[1], Type: buf[2], Payload: buf[headerSize:]}, nil
}

// Bytes encodes f back into wire format.
func (f Frame) Bytes() []byte {
	buf := make([]byte, headerSize+len(f.Payload))
	buf[0], buf[1], buf[2] = f.Dst, f.Src, f.Type
	copy(buf[headerSize:], f.Payload)
	return buf
}

func handshakeReply(f Frame, replyType byte) (Frame, bool) {
	if f.Dst != HostNode {
		return Frame{}, false
	}
	return Frame{Dst: f.Src, Src: HostNode, Type: replyType}, true
}

// Dispatch processes one inbound frame, routing DDP_SHORT payloads through
// router, and returns the frames to send back, if any (a DDP_SHORT reply may
// span several frames, e.g. a batched NBP lookup reply).
func Dispatch(f Frame, router *ddp.Router) ([]Frame, error) {
	const op = "llap.Dispatch"
	switch f.Type {
	case TypeENQ:
		if out, ok := handshakeReply(f, TypeACK); ok {
			return []Frame{out}, nil
		}
		return nil, nil

	case TypeRTS:
		if out, ok := handshakeReply(f, TypeCTS); ok {
			return []Frame{out}, nil
		}
		return nil, nil

	case TypeCTS:
		// Observed only: no action, no reply.
		return nil, nil

	case TypeShortDDP:
		hdr, payload, err := ddp.ParseShortHeader(f.Payload)
		if err != nil {
			return nil, err
		}
		hdr.Node = f.Src
		replyHdr, replyPayloads, ok := router.Route(hdr, payload)
		if !ok {
			return nil, nil
		}
		out := make([]Frame, len(replyPayloads))
		for i, p := range replyPayloads {
			out[i] = Frame{Dst: f.Src, Src: HostNode, Type: TypeShortDDP, Payload: replyHdr.Bytes(p)}
		}
		return out, nil

	case TypeLongDDP:
		return nil, gserr.E(op, gserr.ProtocolMismatch, xerrors.Errorf("DDP_EXTENDED frames are not supported"))

	default:
		return nil, nil
	}
}
