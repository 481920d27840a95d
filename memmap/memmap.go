// Package memmap implements the guest's flat RAM+ROM address space: a
// page-granular fast path backed by four struct-of-arrays host-offset
// tables (supervisor/user x read/write), and a slow path that dispatches to
// mapped devices or an MMU fault handler.
package memmap

import (
	"encoding/binary"

	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/gserr"
)

const (
	// PageSize is the emulator's page granularity, independent of any
	// guest-configured MMU page size.
	PageSize = 4096
	pageBits = 12
	pageMask = PageSize - 1
)

// Device handles accesses that fall through to the slow path for a mapped
// region. offset is relative to the region's base address.
type Device interface {
	Read(offset uint32, width int) (uint32, error)
	Write(offset uint32, width int, val uint32) error
}

// FaultHandler resolves a slow-path miss that is neither device-mapped nor
// already host-backed; on success it calls back into FillPage and returns
// true, asking the caller to retry the fast path once.
type FaultHandler interface {
	HandleFault(addr uint32, isWrite, supervisor bool) bool
}

type pageEntry struct {
	device     Device
	deviceBase uint32
}

// MemoryMap owns the flat host buffer, the AoS device table, and the four
// SoA fast-path vectors.
type MemoryMap struct {
	bits     int
	addrMask uint32
	ramSize  uint32
	romSize  uint32

	// host is the flat backing buffer: a PageSize dead zone (so a zero SoA
	// entry unambiguously means "no direct mapping", never a legitimate
	// RAM-page-0 delta of zero), followed by RAM, followed by ROM.
	host []byte

	aos []pageEntry

	soaSR, soaSW, soaUR, soaUW []int64
	activeRead, activeWrite    *[]int64
	supervisor                 bool

	fault FaultHandler
}

// New allocates a MemoryMap for the given address width and RAM/ROM sizes.
// addressBits must be 24 or 32.
func New(addressBits int, ramSize, romSize uint32) (*MemoryMap, error) {
	const op = "memmap.New"
	if addressBits != 24 && addressBits != 32 {
		return nil, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("address_bits must be 24 or 32, got %d", addressBits))
	}
	numPages := (uint64(1) << uint(addressBits-pageBits))

	mm := &MemoryMap{
		bits:     addressBits,
		addrMask: uint32(uint64(1)<<uint(addressBits) - 1),
		ramSize:  ramSize,
		romSize:  romSize,
		host:     make([]byte, int(PageSize)+int(ramSize)+int(romSize)),
		aos:      make([]pageEntry, numPages),
		soaSR:    make([]int64, numPages),
		soaSW:    make([]int64, numPages),
		soaUR:    make([]int64, numPages),
		soaUW:    make([]int64, numPages),
	}
	mm.activeRead = &mm.soaSR
	mm.activeWrite = &mm.soaSW
	return mm, nil
}

// SetFaultHandler installs the MMU consulted by the slow path on an
// otherwise-unresolved miss. A nil handler disables that step.
func (mm *MemoryMap) SetFaultHandler(fh FaultHandler) { mm.fault = fh }

// SetSupervisor swaps the active read/write SoA pair; the AoS device table
// is unaffected.
func (mm *MemoryMap) SetSupervisor(supervisor bool) {
	mm.supervisor = supervisor
	if supervisor {
		mm.activeRead, mm.activeWrite = &mm.soaSR, &mm.soaSW
	} else {
		mm.activeRead, mm.activeWrite = &mm.soaUR, &mm.soaUW
	}
}

func (mm *MemoryMap) numPages() uint64 { return uint64(len(mm.aos)) }

// hostOffsetForPhys returns the host buffer offset backing a physical
// address, if any.
func (mm *MemoryMap) hostOffsetForPhys(phys uint32) (int64, bool) {
	if phys < mm.ramSize {
		return int64(PageSize) + int64(phys), true
	}
	romOff := phys - mm.ramSize
	if romOff < mm.romSize {
		return int64(PageSize) + int64(mm.ramSize) + int64(romOff), true
	}
	return 0, false
}

// PopulatePages fills RAM pages [0, ram_size) as direct and writable in all
// four SoA vectors, and ROM pages [romStart, romRegionEnd) as direct and
// read-only, mirrored every 2*rom_size: the first half of each stride
// aliases ROM content, the second half is left unmapped.
func (mm *MemoryMap) PopulatePages(romStart, romRegionEnd uint32) {
	for page := uint64(0); page*PageSize < uint64(mm.ramSize); page++ {
		hostBase := int64(PageSize) + int64(page)*PageSize
		emuBase := int64(page) * PageSize
		d := hostBase - emuBase
		mm.soaSR[page] = d
		mm.soaSW[page] = d
		mm.soaUR[page] = d
		mm.soaUW[page] = d
	}

	stride := uint64(2) * uint64(mm.romSize)
	if stride == 0 {
		return
	}
	for addr := uint64(romStart); addr < uint64(romRegionEnd); addr += PageSize {
		strideOff := (addr - uint64(romStart)) % stride
		if strideOff >= uint64(mm.romSize) {
			continue // second half of the stride: left unmapped
		}
		page := addr / PageSize
		if page >= mm.numPages() {
			continue
		}
		romOff := strideOff
		hostBase := int64(PageSize) + int64(mm.ramSize) + int64(romOff)
		d := hostBase - int64(addr)
		mm.soaSR[page] = d
		mm.soaUR[page] = d
		// ROM is never writable: write SoAs stay zero for these pages.
	}
}

// MapAdd installs a device over [base, base+size), clearing the SoA fast
// path for every page the region touches so accesses fall through to the
// device.
func (mm *MemoryMap) MapAdd(base, size uint32, dev Device) {
	firstPage := uint64(base) / PageSize
	lastPage := uint64(base+size-1) / PageSize
	for page := firstPage; page <= lastPage && page < mm.numPages(); page++ {
		mm.aos[page] = pageEntry{device: dev, deviceBase: base}
		mm.soaSR[page] = 0
		mm.soaSW[page] = 0
		mm.soaUR[page] = 0
		mm.soaUW[page] = 0
	}
}

// MapRemove reverses a prior MapAdd over the same region. The affected
// pages become unmapped (slow path returns zero / drops writes) until
// re-populated or re-mapped.
func (mm *MemoryMap) MapRemove(base, size uint32) {
	firstPage := uint64(base) / PageSize
	lastPage := uint64(base+size-1) / PageSize
	for page := firstPage; page <= lastPage && page < mm.numPages(); page++ {
		mm.aos[page] = pageEntry{}
	}
}

// FillPage installs a fast-path entry for the page containing logicalBase,
// mapping it to the host backing of physBase (rounded down to its own page
// boundary by the caller). Per §4.4 fill_soa: the supervisor-read SoA is
// always filled; supervisor-write iff the physical page is RAM and not
// write-protected; the user SoAs are filled iff not supervisor-only, with
// user-write further gated by writability. A physical page with no host
// backing leaves the entry unfilled (stays zero).
func (mm *MemoryMap) FillPage(logicalBase, physBase uint32, supervisorOnly, writeProtected bool) {
	hostOff, ok := mm.hostOffsetForPhys(physBase)
	if !ok {
		return
	}
	page := uint64(logicalBase) / PageSize
	if page >= mm.numPages() {
		return
	}
	isRAM := physBase < mm.ramSize
	delta := hostOff - int64(logicalBase)

	mm.soaSR[page] = delta
	if isRAM && !writeProtected {
		mm.soaSW[page] = delta
	}
	if !supervisorOnly {
		mm.soaUR[page] = delta
		if isRAM && !writeProtected {
			mm.soaUW[page] = delta
		}
	}
}

// InvalidateTLB zeroes all four SoA vectors, forcing every subsequent
// access back through the slow path (and, if installed, the MMU).
func (mm *MemoryMap) InvalidateTLB() {
	for page := range mm.soaSR {
		mm.soaSR[page] = 0
		mm.soaSW[page] = 0
		mm.soaUR[page] = 0
		mm.soaUW[page] = 0
	}
}

func widthFits(offset uint32, width int) bool {
	return width == 1 || offset <= PageSize-uint32(width)
}

// Read performs a 1/2/4-byte big-endian load at addr.
func (mm *MemoryMap) Read(addr uint32, width int) uint32 {
	masked := addr & mm.addrMask
	page := uint64(masked) / PageSize
	offset := masked % PageSize
	if page < mm.numPages() {
		if entry := (*mm.activeRead)[page]; entry != 0 && widthFits(offset, width) {
			idx := entry + int64(masked)
			return loadBE(mm.host, idx, width)
		}
	}
	return mm.slowRead(masked, width)
}

// Write performs a 1/2/4-byte big-endian store at addr.
func (mm *MemoryMap) Write(addr uint32, width int, val uint32) {
	masked := addr & mm.addrMask
	page := uint64(masked) / PageSize
	offset := masked % PageSize
	if page < mm.numPages() {
		if entry := (*mm.activeWrite)[page]; entry != 0 && widthFits(offset, width) {
			idx := entry + int64(masked)
			storeBE(mm.host, idx, width, val)
			return
		}
	}
	mm.slowWrite(masked, width, val)
}

func (mm *MemoryMap) slowRead(addr uint32, width int) uint32 {
	page := uint64(addr) / PageSize
	if page < mm.numPages() {
		if pe := mm.aos[page]; pe.device != nil {
			return mm.deviceRead(pe, addr, width)
		}
	}
	if !widthFits(addr%PageSize, width) {
		if _, ok := mm.hostOffsetForPhys(addr); ok {
			return mm.splitRead(addr, width)
		}
	}
	if mm.fault != nil && mm.fault.HandleFault(addr, false, mm.supervisor) {
		return mm.Read(addr, width)
	}
	return 0
}

func (mm *MemoryMap) slowWrite(addr uint32, width int, val uint32) {
	page := uint64(addr) / PageSize
	if page < mm.numPages() {
		if pe := mm.aos[page]; pe.device != nil {
			mm.deviceWrite(pe, addr, width, val)
			return
		}
	}
	if !widthFits(addr%PageSize, width) {
		if _, ok := mm.hostOffsetForPhys(addr); ok {
			mm.splitWrite(addr, width, val)
			return
		}
	}
	if mm.fault != nil && mm.fault.HandleFault(addr, true, mm.supervisor) {
		mm.Write(addr, width, val)
		return
	}
	// Silently dropped: no device, no MMU resolution.
}

// deviceRead dispatches to pe.device, splitting a page-boundary-crossing
// multi-byte access into aligned sub-accesses through the fast readers.
func (mm *MemoryMap) deviceRead(pe pageEntry, addr uint32, width int) uint32 {
	offset := addr % PageSize
	if widthFits(offset, width) {
		v, err := pe.device.Read(addr-pe.deviceBase, width)
		if err != nil {
			return 0
		}
		return v
	}
	return mm.splitRead(addr, width)
}

func (mm *MemoryMap) deviceWrite(pe pageEntry, addr uint32, width int, val uint32) {
	offset := addr % PageSize
	if widthFits(offset, width) {
		_ = pe.device.Write(addr-pe.deviceBase, width, val)
		return
	}
	mm.splitWrite(addr, width, val)
}

// splitRead and splitWrite break a cross-page unaligned access into
// width one-byte accesses, each of which independently re-enters Read/Write
// and so resolves through whichever page (fast path, device, or unmapped)
// it happens to land on.
func (mm *MemoryMap) splitRead(addr uint32, width int) uint32 {
	var buf [4]byte
	for i := 0; i < width; i++ {
		buf[i] = byte(mm.Read(addr+uint32(i), 1))
	}
	return loadBEBytes(buf[:width])
}

func (mm *MemoryMap) splitWrite(addr uint32, width int, val uint32) {
	buf := make([]byte, width)
	storeBEBytes(buf, val)
	for i := 0; i < width; i++ {
		mm.Write(addr+uint32(i), 1, uint32(buf[i]))
	}
}

func loadBE(buf []byte, idx int64, width int) uint32 {
	switch width {
	case 1:
		return uint32(buf[idx])
	case 2:
		return uint32(binary.BigEndian.Uint16(buf[idx : idx+2]))
	case 4:
		return binary.BigEndian.Uint32(buf[idx : idx+4])
	default:
		panic("memmap: unsupported width")
	}
}

func storeBE(buf []byte, idx int64, width int, val uint32) {
	switch width {
	case 1:
		buf[idx] = byte(val)
	case 2:
		binary.BigEndian.PutUint16(buf[idx:idx+2], uint16(val))
	case 4:
		binary.BigEndian.PutUint32(buf[idx:idx+4], val)
	default:
		panic("memmap: unsupported width")
	}
}

func loadBEBytes(buf []byte) uint32 {
	switch len(buf) {
	case 1:
		return uint32(buf[0])
	case 2:
		return uint32(binary.BigEndian.Uint16(buf))
	case 4:
		return binary.BigEndian.Uint32(buf)
	default:
		panic("memmap: unsupported width")
	}
}

func storeBEBytes(buf []byte, val uint32) {
	switch len(buf) {
	case 1:
		buf[0] = byte(val)
	case 2:
		binary.BigEndian.PutUint16(buf, uint16(val))
	case 4:
		binary.BigEndian.PutUint32(buf, val)
	default:
		panic("memmap: unsupported width")
	}
}
