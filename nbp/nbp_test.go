package nbp

import (
	"testing"

	"github.com/pappadf/granny-smith-sub003/atalk/ddp"
	"github.com/pappadf/granny-smith-sub003/atalk/llap"
)

func ddpHeaderForTest() ddp.Header {
	return ddp.Header{DstSocket: ddp.SocketNBP, SrcSocket: 1, Type: ddp.TypeNBP}
}

func TestRegisterAssignsDefaults(t *testing.T) {
	r := New()
	e, err := r.Register(Description{Object: "MyMac", Type: "AFPServer", Socket: 8})
	if err != nil {
		t.Fatal(err)
	}
	if e.Zone != "*" {
		t.Errorf("Zone = %q, want *", e.Zone)
	}
	if e.Node != llap.HostNode {
		t.Errorf("Node = %d, want %d", e.Node, llap.HostNode)
	}
	if e.Enumerator != 1 {
		t.Errorf("Enumerator = %d, want 1", e.Enumerator)
	}
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	r := New()
	if _, err := r.Register(Description{Type: "AFPServer", Socket: 8}); err == nil {
		t.Error("expected error for empty object")
	}
	if _, err := r.Register(Description{Object: "MyMac", Type: "AFPServer"}); err == nil {
		t.Error("expected error for zero socket")
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := New()
	if _, err := r.Register(Description{Object: "MyMac", Type: "AFPServer", Zone: "Eng", Socket: 8}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register(Description{Object: "mymac", Type: "afpserver", Zone: "eng", Socket: 9}); err == nil {
		t.Error("expected duplicate registration to be rejected")
	}
}

func TestRegisterEnforcesCapacity(t *testing.T) {
	r := New()
	for i := 0; i < maxEntries; i++ {
		name := string(rune('A' + i))
		if _, err := r.Register(Description{Object: name, Type: "Srv", Socket: 1}); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
	}
	if _, err := r.Register(Description{Object: "Overflow", Type: "Srv", Socket: 1}); err == nil {
		t.Error("expected 17th registration to fail")
	}
}

func TestNextEnumeratorPerSocket(t *testing.T) {
	r := New()
	e1, _ := r.Register(Description{Object: "A", Type: "Srv", Socket: 1})
	e2, _ := r.Register(Description{Object: "B", Type: "Srv", Socket: 1})
	e3, _ := r.Register(Description{Object: "C", Type: "Srv", Socket: 2})
	if e1.Enumerator != 1 || e2.Enumerator != 2 {
		t.Errorf("same-socket enumerators = %d, %d, want 1, 2", e1.Enumerator, e2.Enumerator)
	}
	if e3.Enumerator != 1 {
		t.Errorf("other-socket enumerator = %d, want 1", e3.Enumerator)
	}
}

func TestGlobMatchWildcardAndEquals(t *testing.T) {
	cases := []struct {
		pattern, value string
		want           bool
	}{
		{"=", "AnythingGoesHere", true},
		{"MyMac", "mymac", true},
		{"My\xc5", "MyMac", true},
		{"\xc5Mac", "BigMac", true},
		{"A\xc5Z", "AxyzZ", true},
		{"A\xc5Z", "Axyz", false},
		{"Exact", "Different", false},
	}
	for _, c := range cases {
		if got := globMatch(c.pattern, c.value); got != c.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", c.pattern, c.value, got, c.want)
		}
	}
}

func TestZoneMatchesRules(t *testing.T) {
	if !zoneMatches("", "Eng") {
		t.Error("empty query zone should match everything")
	}
	if !zoneMatches("*", "Eng") {
		t.Error("* query zone should match everything")
	}
	if !zoneMatches("Sales", "*") {
		t.Error("entry zone * should match everything")
	}
	if zoneMatches("Sales", "Eng") {
		t.Error("mismatched zones should not match")
	}
}

func TestLookupAndReplyBatching(t *testing.T) {
	r := New()
	for i := 0; i < 10; i++ {
		name := string(rune('A' + i))
		if _, err := r.Register(Description{Object: name, Type: "Srv", Zone: "Eng", Socket: 1}); err != nil {
			t.Fatal(err)
		}
	}
	matches := r.Lookup("=", "Srv", "Eng")
	if len(matches) != 10 {
		t.Fatalf("Lookup() = %d matches, want 10", len(matches))
	}
	batches := ReplyBatches(matches)
	if len(batches) != 2 {
		t.Fatalf("ReplyBatches() = %d batches, want 2", len(batches))
	}
	if len(batches[0]) != tuplesPerReply || len(batches[1]) != 2 {
		t.Errorf("batch sizes = %d, %d, want %d, 2", len(batches[0]), len(batches[1]), tuplesPerReply)
	}
}

func TestHandleDDPBuildsLookupReply(t *testing.T) {
	r := New()
	if _, err := r.Register(Description{Object: "MyMac", Type: "AFPServer", Socket: 8}); err != nil {
		t.Fatal(err)
	}

	pattern := Tuple{Object: "=", Type: "AFPServer", Zone: "*"}
	reqHdr := Header{Function: FuncLookup, TupleCount: 1, ID: 42}
	payload := append(reqHdr.Bytes(), pattern.Bytes()...)

	replies, ok := r.HandleDDP(ddpHeaderForTest(), payload)
	if !ok {
		t.Fatal("HandleDDP() ok = false")
	}
	if len(replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(replies))
	}

	replyHdr, rest, err := ParseHeader(replies[0])
	if err != nil {
		t.Fatal(err)
	}
	if replyHdr.Function != FuncLookupReply || replyHdr.ID != 42 || replyHdr.TupleCount != 1 {
		t.Errorf("reply header = %+v", replyHdr)
	}
	tuples, err := ParseTuples(rest, int(replyHdr.TupleCount))
	if err != nil {
		t.Fatal(err)
	}
	if tuples[0].Object != "MyMac" {
		t.Errorf("reply tuple object = %q, want MyMac", tuples[0].Object)
	}
}

func TestHandleDDPScansEveryTuple(t *testing.T) {
	r := New()
	if _, err := r.Register(Description{Object: "MyMac", Type: "AFPServer", Socket: 8}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register(Description{Object: "Printer1", Type: "LaserWriter", Socket: 9}); err != nil {
		t.Fatal(err)
	}

	tuples := []Tuple{
		{Object: "=", Type: "AFPServer", Zone: "*"},
		{Object: "=", Type: "LaserWriter", Zone: "*"},
	}
	reqHdr := Header{Function: FuncLookup, TupleCount: 2, ID: 7}
	payload := reqHdr.Bytes()
	for _, tuple := range tuples {
		payload = append(payload, tuple.Bytes()...)
	}

	replies, ok := r.HandleDDP(ddpHeaderForTest(), payload)
	if !ok {
		t.Fatal("HandleDDP() ok = false")
	}
	if len(replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(replies))
	}
	replyHdr, rest, err := ParseHeader(replies[0])
	if err != nil {
		t.Fatal(err)
	}
	if replyHdr.TupleCount != 2 {
		t.Fatalf("reply TupleCount = %d, want 2 (one match per requested tuple)", replyHdr.TupleCount)
	}
	got, err := ParseTuples(rest, int(replyHdr.TupleCount))
	if err != nil {
		t.Fatal(err)
	}
	var objects []string
	for _, tuple := range got {
		objects = append(objects, tuple.Object)
	}
	if len(objects) != 2 || objects[0] == objects[1] {
		t.Errorf("reply objects = %v, want one match per tuple", objects)
	}
}

func TestHandleDDPDispatchesFwdReq(t *testing.T) {
	r := New()
	if _, err := r.Register(Description{Object: "MyMac", Type: "AFPServer", Socket: 8}); err != nil {
		t.Fatal(err)
	}

	pattern := Tuple{Object: "=", Type: "AFPServer", Zone: "*"}
	reqHdr := Header{Function: FuncFwdReq, TupleCount: 1, ID: 3}
	payload := append(reqHdr.Bytes(), pattern.Bytes()...)

	if _, ok := r.HandleDDP(ddpHeaderForTest(), payload); !ok {
		t.Error("HandleDDP() should resolve a FwdReq the same as a BrRq/Lookup")
	}
}

func TestHandleDDPNoMatchReturnsNoReply(t *testing.T) {
	r := New()
	pattern := Tuple{Object: "Nobody", Type: "=", Zone: "*"}
	reqHdr := Header{Function: FuncLookup, TupleCount: 1, ID: 1}
	payload := append(reqHdr.Bytes(), pattern.Bytes()...)

	if _, ok := r.HandleDDP(ddpHeaderForTest(), payload); ok {
		t.Error("HandleDDP() should return ok=false when nothing matches")
	}
}
