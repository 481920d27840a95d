// Package mmu implements a 68030-style software TLB: a lazily-filled table
// walker that resolves memmap fast-path misses by walking guest translation
// tables (or bypassing them via the transparent-translation registers) and
// populating memmap's SoA vectors.
package mmu

import (
	"github.com/pappadf/granny-smith-sub003/memmap"
)

// Descriptor type, encoded in the low two bits of CRP/SRP/table entries.
const (
	dtInvalid = 0
	dtPage    = 1
	dtShort   = 2
	dtLong    = 3
)

// MMUSR bit positions (only the ones this implementation populates).
const (
	statusInvalid = 1 << iota
	statusWriteProtect
	statusModified
	statusSupervisorOnly
	statusTTMatch
)

// TableIndexWidths carries the per-level index bit widths (A, B, C, D) used
// during a table walk; a zero width stops the walk at that level.
type TableIndexWidths [4]uint8

// TC is the translation control register.
type TC struct {
	Enable bool
	SRE    bool // supervisor root pointer enable: use SRP instead of CRP when supervisor
	IS     uint8
	TI     TableIndexWidths
}

// RootPointer is the 64-bit CRP/SRP descriptor: DT in the low two bits of
// the high word, table base in the low word with its own low two bits
// cleared.
type RootPointer struct {
	DT    uint8
	Table uint32
}

// TTRegister describes one transparent-translation range (TT0/TT1).
type TTRegister struct {
	Enabled      bool
	Base         uint8
	Mask         uint8
	FCBase       uint8
	FCMask       uint8
	MatchWrite   bool // if set, only writes match (read/write match rule, see ttMatches)
	MatchRead    bool
	CacheInhibit bool
}

// MMU holds the guest-visible translation registers and is installed on a
// memmap.MemoryMap via SetFaultHandler.
type MMU struct {
	mm *memmap.MemoryMap

	tc       TC
	crp, srp RootPointer
	tt0, tt1 TTRegister

	mmusr uint32
}

// New creates an MMU bound to mm. Callers must also call
// mm.SetFaultHandler(m) to wire it into the slow path.
func New(mm *memmap.MemoryMap) *MMU {
	return &MMU{mm: mm}
}

// SetTC installs a new translation control register and invalidates the TLB,
// matching the guest-visible side effect of writing TC.
func (m *MMU) SetTC(tc TC) {
	m.tc = tc
	m.mm.InvalidateTLB()
}

// SetCRP installs a new CPU root pointer and invalidates the TLB.
func (m *MMU) SetCRP(rp RootPointer) {
	m.crp = rp
	m.mm.InvalidateTLB()
}

// SetSRP installs a new supervisor root pointer and invalidates the TLB.
func (m *MMU) SetSRP(rp RootPointer) {
	m.srp = rp
	m.mm.InvalidateTLB()
}

// SetTT0 installs the first transparent-translation register.
func (m *MMU) SetTT0(tt TTRegister) { m.tt0 = tt }

// SetTT1 installs the second transparent-translation register.
func (m *MMU) SetTT1(tt TTRegister) { m.tt1 = tt }

// MMUSR returns the status register accumulated by the most recent
// HandleFault or TestAddress call.
func (m *MMU) MMUSR() uint32 { return m.mmusr }

// PFlushA invalidates every TLB entry, matching the PFLUSHA instruction.
func (m *MMU) PFlushA() { m.mm.InvalidateTLB() }

func ttMatches(tt TTRegister, addr uint32, isWrite bool) bool {
	if !tt.Enabled {
		return false
	}
	addrTop := uint8(addr >> 24)
	if addrTop&tt.Mask != tt.Base&tt.Mask {
		return false
	}
	if tt.MatchWrite && !isWrite {
		return false
	}
	if tt.MatchRead && isWrite {
		return false
	}
	return true
}

// HandleFault resolves a memmap fast-path miss for a load (is_write=false)
// or store at logicalAddr. It returns true if the caller should retry the
// fast path (a mapping was installed), false if the access should be
// treated as a bus error.
func (m *MMU) HandleFault(logicalAddr uint32, isWrite, supervisor bool) bool {
	m.mmusr = 0
	if !m.tc.Enable {
		return false
	}

	if ttMatches(m.tt0, logicalAddr, isWrite) || ttMatches(m.tt1, logicalAddr, isWrite) {
		m.mmusr |= statusTTMatch
		page := logicalAddr &^ uint32(memmap.PageSize-1)
		m.mm.FillPage(page, page, false, false)
		return true
	}

	page, supervisorOnly, writeProtected, ok := m.walk(logicalAddr, supervisor)
	if !ok {
		m.mmusr |= statusInvalid
		return false
	}
	if supervisorOnly && !supervisor {
		m.mmusr |= statusSupervisorOnly
		return false
	}
	if writeProtected && isWrite {
		m.mmusr |= statusWriteProtect
		return false
	}

	logicalPage := logicalAddr &^ uint32(memmap.PageSize-1)
	m.mm.FillPage(logicalPage, page, supervisorOnly, writeProtected)
	return true
}

// TestAddress implements PTEST: it performs the walk without filling any
// SoA entry and returns the accumulated MMUSR.
func (m *MMU) TestAddress(logicalAddr uint32, isWrite, supervisor bool) uint32 {
	m.mmusr = 0
	if !m.tc.Enable {
		return m.mmusr
	}
	if ttMatches(m.tt0, logicalAddr, isWrite) || ttMatches(m.tt1, logicalAddr, isWrite) {
		m.mmusr |= statusTTMatch
		return m.mmusr
	}
	_, supervisorOnly, writeProtected, ok := m.walk(logicalAddr, supervisor)
	if !ok {
		m.mmusr |= statusInvalid
		return m.mmusr
	}
	if supervisorOnly {
		m.mmusr |= statusSupervisorOnly
	}
	if writeProtected {
		m.mmusr |= statusWriteProtect
	}
	return m.mmusr
}

// walk performs the A..D level table walk described in §4.4, returning the
// resolved physical page base and its protection bits.
func (m *MMU) walk(logicalAddr uint32, supervisor bool) (physPage uint32, supervisorOnly, writeProtected, ok bool) {
	rp := m.crp
	if m.tc.SRE && supervisor {
		rp = m.srp
	}
	if rp.DT == dtInvalid {
		return 0, false, false, false
	}

	tableAddr := rp.Table &^ 3
	long := rp.DT == dtLong
	bitPos := 32 - int(m.tc.IS)
	levels := 0

	for _, indexBits := range m.tc.TI {
		if indexBits == 0 {
			break
		}
		levels++
		bitPos -= int(indexBits)
		index := (logicalAddr >> uint(bitPos)) & ((1 << indexBits) - 1)

		descSize := uint32(4)
		if long {
			descSize = 8
		}
		descAddr := tableAddr + index*descSize

		desc, dt := m.readDescriptor(descAddr, long)
		switch dt {
		case dtInvalid:
			return 0, false, false, false
		case dtPage:
			pageMask := uint32(memmap.PageSize - 1)
			base := desc &^ pageMask &^ 3
			wp := desc&0x4 != 0
			if desc&0x10 != 0 {
				m.mmusr |= statusModified
			}
			so := false
			if long {
				so = desc&0x2000 != 0
			}
			return base, so, wp, true
		case dtShort:
			tableAddr = desc &^ 3
			long = false
		case dtLong:
			tableAddr = desc &^ 3
			long = true
		}
	}
	return 0, false, false, false
}

// readDescriptor fetches one table/page descriptor from guest memory via
// the bound memmap, returning its raw value and decoded DT.
func (m *MMU) readDescriptor(addr uint32, long bool) (desc uint32, dt uint8) {
	if long {
		// The high word of a long descriptor carries flags this
		// implementation doesn't need beyond DT and S; the low word holds
		// the table/page base and DT, consistent with short descriptors.
		desc = m.mm.Read(addr+4, 4)
	} else {
		desc = m.mm.Read(addr, 4)
	}
	return desc, uint8(desc & 3)
}
