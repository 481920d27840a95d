// Package nbp implements the AppleTalk Name Binding Protocol registry: a
// fixed-size table of named service entries, glob-style lookup matching,
// and batched reply construction.
package nbp

import (
	"strings"

	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/atalk/llap"
	"github.com/pappadf/granny-smith-sub003/gserr"
)

const (
	maxEntries     = 16
	tuplesPerReply = 8

	wildcardByte = 0xC5 // Mac OS Roman "≈": match zero or more bytes
)

// NBP function codes.
const (
	FuncBrRq        = 1
	FuncLookup      = 2
	FuncLookupReply = 3
	FuncFwdReq      = 4
)

// Entry is one registered NBP name binding.
type Entry struct {
	Object, Type, Zone string
	Socket             byte
	Node               byte
	Net                uint16
	Enumerator         byte
}

// Description is the caller-supplied registration request; Zone, Node, and
// Net take their defaults when zero-valued.
type Description struct {
	Object, Type, Zone string
	Socket             byte
	Node               byte
	Net                uint16
}

// Registry is the up-to-16-entry name binding table.
type Registry struct {
	entries []Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register validates and installs desc, assigning a per-socket enumerator.
func (r *Registry) Register(desc Description) (Entry, error) {
	const op = "nbp.Register"
	if desc.Object == "" || desc.Type == "" {
		return Entry{}, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("object and type must not be empty"))
	}
	if desc.Socket == 0 {
		return Entry{}, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("socket must be non-zero"))
	}
	if len(r.entries) >= maxEntries {
		return Entry{}, gserr.E(op, gserr.CapacityExhausted, xerrors.Errorf("NBP table full (%d entries)", maxEntries))
	}

	zone := desc.Zone
	if zone == "" {
		zone = "*"
	}
	node := desc.Node
	if node == 0 {
		node = llap.HostNode
	}

	for _, e := range r.entries {
		if strings.EqualFold(e.Object, desc.Object) && strings.EqualFold(e.Type, desc.Type) && strings.EqualFold(e.Zone, zone) {
			return Entry{}, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("duplicate NBP entry for %s:%s@%s", desc.Object, desc.Type, zone))
		}
	}

	e := Entry{
		Object:     desc.Object,
		Type:       desc.Type,
		Zone:       zone,
		Socket:     desc.Socket,
		Node:       node,
		Net:        desc.Net,
		Enumerator: r.nextEnumerator(desc.Socket),
	}
	r.entries = append(r.entries, e)
	return e, nil
}

// nextEnumerator picks the smallest value in [1,255] not already used by a
// live entry on socket.
func (r *Registry) nextEnumerator(socket byte) byte {
	used := make(map[byte]bool)
	for _, e := range r.entries {
		if e.Socket == socket {
			used[e.Enumerator] = true
		}
	}
	for v := byte(1); v != 0; v++ {
		if !used[v] {
			return v
		}
	}
	return 1 // unreachable while maxEntries <= 255
}

// Entries returns a copy of the live registry table.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func equalFoldByte(a, b byte) bool {
	if 'A' <= a && a <= 'Z' {
		a += 'a' - 'A'
	}
	if 'A' <= b && b <= 'Z' {
		b += 'a' - 'A'
	}
	return a == b
}

// globMatch implements NBP field matching: "=" alone matches anything;
// 0xC5 within the pattern matches zero or more bytes; all other bytes
// compare case-insensitively (ASCII fold).
func globMatch(pattern, value string) bool {
	if pattern == "=" {
		return true
	}
	return globMatchBytes([]byte(pattern), []byte(value))
}

func globMatchBytes(p, v []byte) bool {
	for len(p) > 0 {
		if p[0] == wildcardByte {
			for len(p) > 0 && p[0] == wildcardByte {
				p = p[1:]
			}
			if len(p) == 0 {
				return true
			}
			for i := 0; i <= len(v); i++ {
				if globMatchBytes(p, v[i:]) {
					return true
				}
			}
			return false
		}
		if len(v) == 0 || !equalFoldByte(p[0], v[0]) {
			return false
		}
		p, v = p[1:], v[1:]
	}
	return len(v) == 0
}

func zoneMatches(queryZone, entryZone string) bool {
	if queryZone == "" || queryZone == "*" {
		return true
	}
	if entryZone == "*" {
		return true
	}
	return globMatch(queryZone, entryZone)
}

// Matches reports whether entry satisfies the lookup pattern (object, type,
// zone), applying the NBP field-matching rules.
func (r *Registry) Matches(e Entry, object, typ, zone string) bool {
	return globMatch(object, e.Object) && globMatch(typ, e.Type) && zoneMatches(zone, e.Zone)
}

// Lookup returns every live entry matching the given pattern.
func (r *Registry) Lookup(object, typ, zone string) []Entry {
	var out []Entry
	for _, e := range r.entries {
		if r.Matches(e, object, typ, zone) {
			out = append(out, e)
		}
	}
	return out
}

// ReplyBatches splits matches into packets of up to tuplesPerReply entries,
// per the NBP reply batching rule.
func ReplyBatches(matches []Entry) [][]Entry {
	if len(matches) == 0 {
		return nil
	}
	var batches [][]Entry
	for len(matches) > 0 {
		n := tuplesPerReply
		if n > len(matches) {
			n = len(matches)
		}
		batches = append(batches, matches[:n])
		matches = matches[n:]
	}
	return batches
}
