package nbp

import (
	"github.com/pappadf/granny-smith-sub003/atalk/ddp"
)

// HandleDDP implements ddp.Handler: it decodes an inbound NBP packet,
// resolves BrRq/Lookup/FwdReq requests by scanning every tuple against the
// registry, and returns one LookupReply packet per batch of up to
// tuplesPerReply aggregated matches (a single request can legitimately need
// several packets).
func (r *Registry) HandleDDP(hdr ddp.Header, payload []byte) ([][]byte, bool) {
	nbpHdr, rest, err := ParseHeader(payload)
	if err != nil {
		return nil, false
	}
	if nbpHdr.Function != FuncBrRq && nbpHdr.Function != FuncLookup && nbpHdr.Function != FuncFwdReq {
		return nil, false
	}

	tuples, err := ParseTuples(rest, int(nbpHdr.TupleCount))
	if err != nil || len(tuples) == 0 {
		return nil, false
	}

	var matches []Entry
	for _, pattern := range tuples {
		matches = append(matches, r.Lookup(pattern.Object, pattern.Type, pattern.Zone)...)
	}

	batches := ReplyBatches(matches)
	if len(batches) == 0 {
		return nil, false
	}

	out := make([][]byte, len(batches))
	for i, batch := range batches {
		out[i] = BuildReplyPacket(nbpHdr.ID, batch)
	}
	return out, true
}
