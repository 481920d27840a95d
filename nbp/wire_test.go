package nbp

import "testing"

func TestHeaderBytesRoundTrip(t *testing.T) {
	h := Header{Function: FuncLookup, TupleCount: 3, ID: 0xBEEF}
	got, rest, err := ParseHeader(h.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Errorf("ParseHeader(Bytes()) = %+v, want %+v", got, h)
	}
	if len(rest) != 0 {
		t.Errorf("leftover bytes = %d, want 0", len(rest))
	}
}

func TestTupleBytesRoundTrip(t *testing.T) {
	tp := Tuple{Net: 0x1234, Node: 5, Socket: 8, Enumerator: 2, Object: "MyMac", Type: "AFPServer", Zone: "Eng"}
	got, rest, err := ParseTuple(tp.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if got != tp {
		t.Errorf("ParseTuple(Bytes()) = %+v, want %+v", got, tp)
	}
	if len(rest) != 0 {
		t.Errorf("leftover bytes = %d, want 0", len(rest))
	}
}

func TestParseTuplesDecodesMultiple(t *testing.T) {
	t1 := Tuple{Object: "A", Type: "Srv", Zone: "*"}
	t2 := Tuple{Object: "B", Type: "Srv", Zone: "*"}
	buf := append(t1.Bytes(), t2.Bytes()...)

	tuples, err := ParseTuples(buf, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(tuples) != 2 || tuples[0].Object != "A" || tuples[1].Object != "B" {
		t.Errorf("ParseTuples() = %+v", tuples)
	}
}

func TestParseTupleTruncatedFails(t *testing.T) {
	if _, _, err := ParseTuple([]byte{0, 0, 0}); err == nil {
		t.Error("expected error for truncated tuple")
	}
}

func TestBuildReplyPacketEncodesBatch(t *testing.T) {
	batch := []Entry{
		{Object: "A", Type: "Srv", Zone: "*", Socket: 1, Node: 33, Enumerator: 1},
		{Object: "B", Type: "Srv", Zone: "*", Socket: 1, Node: 33, Enumerator: 2},
	}
	buf := BuildReplyPacket(7, batch)

	hdr, rest, err := ParseHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Function != FuncLookupReply || hdr.ID != 7 || int(hdr.TupleCount) != len(batch) {
		t.Errorf("header = %+v", hdr)
	}
	tuples, err := ParseTuples(rest, len(batch))
	if err != nil {
		t.Fatal(err)
	}
	if tuples[0].Object != "A" || tuples[1].Object != "B" {
		t.Errorf("tuples = %+v", tuples)
	}
}
