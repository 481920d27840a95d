package nbp

import (
	"encoding/binary"

	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

// Header is the NBP packet header: a 4-bit function, a 4-bit tuple count,
// and a 16-bit id echoed in replies.
type Header struct {
	Function   byte
	TupleCount byte
	ID         uint16
}

// Tuple is one NBP entity (a lookup pattern in a request, a binding in a
// reply).
type Tuple struct {
	Net        uint16
	Node       byte
	Socket     byte
	Enumerator byte
	Object     string
	Type       string
	Zone       string
}

const headerSize = 3

// ParseHeader decodes the 3-byte NBP header from the front of buf.
func ParseHeader(buf []byte) (Header, []byte, error) {
	const op = "nbp.ParseHeader"
	if len(buf) < headerSize {
		return Header{}, nil, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("NBP header needs %d bytes, got %d", headerSize, len(buf)))
	}
	h := Header{
		Function:   buf[0] >> 4,
		TupleCount: buf[0] & 0xF,
		ID:         binary.BigEndian.Uint16(buf[1:3]),
	}
	return h, buf[headerSize:], nil
}

// Bytes encodes h.
func (h Header) Bytes() []byte {
	buf := make([]byte, headerSize)
	buf[0] = h.Function<<4 | h.TupleCount&0xF
	binary.BigEndian.PutUint16(buf[1:3], h.ID)
	return buf
}

func parsePascal(buf []byte, pos int) (string, int, error) {
	const op = "nbp.parsePascal"
	if pos >= len(buf) {
		return "", 0, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("truncated Pascal string"))
	}
	n := int(buf[pos])
	end := pos + 1 + n
	if end > len(buf) {
		return "", 0, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("Pascal string length %d exceeds buffer", n))
	}
	return string(buf[pos+1 : end]), end, nil
}

func appendPascal(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}

// ParseTuple decodes one NBP tuple from the front of buf, returning the
// remaining bytes.
func ParseTuple(buf []byte) (Tuple, []byte, error) {
	const op = "nbp.ParseTuple"
	if len(buf) < 5 {
		return Tuple{}, nil, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("NBP tuple needs at least 5 bytes, got %d", len(buf)))
	}
	t := Tuple{
		Net:        binary.BigEndian.Uint16(buf[0:2]),
		Node:       buf[2],
		Socket:     buf[3],
		Enumerator: buf[4],
	}
	pos := 5
	var err error
	if t.Object, pos, err = parsePascal(buf, pos); err != nil {
		return Tuple{}, nil, err
	}
	if t.Type, pos, err = parsePascal(buf, pos); err != nil {
		return Tuple{}, nil, err
	}
	if t.Zone, pos, err = parsePascal(buf, pos); err != nil {
		return Tuple{}, nil, err
	}
	return t, buf[pos:], nil
}

// Bytes encodes t.
func (t Tuple) Bytes() []byte {
	buf := make([]byte, 5, 5+len(t.Object)+len(t.Type)+len(t.Zone)+3)
	binary.BigEndian.PutUint16(buf[0:2], t.Net)
	buf[2] = t.Node
	buf[3] = t.Socket
	buf[4] = t.Enumerator
	buf = appendPascal(buf, t.Object)
	buf = appendPascal(buf, t.Type)
	buf = appendPascal(buf, t.Zone)
	return buf
}

// ParseTuples decodes exactly count tuples from buf.
func ParseTuples(buf []byte, count int) ([]Tuple, error) {
	tuples := make([]Tuple, 0, count)
	for i := 0; i < count; i++ {
		t, rest, err := ParseTuple(buf)
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, t)
		buf = rest
	}
	return tuples, nil
}

// entryTuple converts a registered Entry into its wire Tuple form.
func entryTuple(e Entry) Tuple {
	return Tuple{
		Net:        e.Net,
		Node:       e.Node,
		Socket:     e.Socket,
		Enumerator: e.Enumerator,
		Object:     e.Object,
		Type:       e.Type,
		Zone:       e.Zone,
	}
}

// BuildReplyPacket encodes a LookupReply packet carrying batch, preserving
// the request's id.
func BuildReplyPacket(id uint16, batch []Entry) []byte {
	h := Header{Function: FuncLookupReply, TupleCount: byte(len(batch)), ID: id}
	buf := h.Bytes()
	for _, e := range batch {
		buf = append(buf, entryTuple(e).Bytes()...)
	}
	return buf
}
