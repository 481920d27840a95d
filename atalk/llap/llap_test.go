package llap

import (
	"bytes"
	"testing"

	"github.com/pappadf/granny-smith-sub003/atalk/ddp"
)

func TestParseBytesRoundTrip(t *testing.T) {
	f := Frame{Dst: 1, Src: 2, Type: TypeShortDDP, Payload: []byte{9, 9}}
	got, err := Parse(f.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if got.Dst != f.Dst || got.Src != f.Src || got.Type != f.Type || !bytes.Equal(got.Payload, f.Payload) {
		t.Errorf("Parse(Bytes()) = %+v, want %+v", got, f)
	}
}

func TestDispatchENQProducesACK(t *testing.T) {
	in := Frame{Dst: HostNode, Src: 10, Type: TypeENQ}
	out, err := Dispatch(in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Type != TypeACK || out[0].Dst != 10 || out[0].Src != HostNode {
		t.Errorf("Dispatch(ENQ) = %+v, want one ACK to node 10 from %d", out, HostNode)
	}
}

func TestDispatchENQIgnoredForOtherNode(t *testing.T) {
	in := Frame{Dst: 5, Src: 10, Type: TypeENQ}
	out, err := Dispatch(in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("Dispatch(ENQ) for another node should produce no reply, got %+v", out)
	}
}

func TestDispatchRTSProducesCTS(t *testing.T) {
	in := Frame{Dst: HostNode, Src: 7, Type: TypeRTS}
	out, err := Dispatch(in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Type != TypeCTS || out[0].Dst != 7 {
		t.Errorf("Dispatch(RTS) = %+v, want one CTS to node 7", out)
	}
}

func TestDispatchCTSIsObservedOnly(t *testing.T) {
	in := Frame{Dst: HostNode, Src: 7, Type: TypeCTS}
	out, err := Dispatch(in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("Dispatch(CTS) should produce no reply, got %+v", out)
	}
}

func TestDispatchLongDDPIsAnError(t *testing.T) {
	in := Frame{Dst: HostNode, Src: 7, Type: TypeLongDDP}
	if _, err := Dispatch(in, nil); err == nil {
		t.Error("Dispatch(DDP_EXTENDED) should return an error")
	}
}

func TestDispatchShortDDPRoutesThroughDDPRouter(t *testing.T) {
	router := &ddp.Router{}
	hdr := ddp.Header{DstSocket: ddp.SocketNBP, SrcSocket: 1, Type: ddp.TypeAEP}
	payload := []byte{1, 2, 3}
	in := Frame{Dst: HostNode, Src: 20, Type: TypeShortDDP, Payload: hdr.Bytes(payload)}

	out, err := Dispatch(in, router)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("Dispatch(DDP_SHORT) = %d frames, want 1", len(out))
	}
	if out[0].Type != TypeShortDDP || out[0].Dst != 20 || out[0].Src != HostNode {
		t.Fatalf("Dispatch(DDP_SHORT) envelope = %+v", out[0])
	}
	outHdr, outPayload, err := ddp.ParseShortHeader(out[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(outPayload, payload) {
		t.Errorf("echoed AEP payload = %x, want %x", outPayload, payload)
	}
	if outHdr.DstSocket != hdr.SrcSocket {
		t.Errorf("inner DDP header dst socket not swapped: %+v", outHdr)
	}
}
