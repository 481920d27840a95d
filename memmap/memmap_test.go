package memmap

import "testing"

func TestRAMReadWriteRoundTrip(t *testing.T) {
	mm, err := New(24, 64*1024, 16*1024)
	if err != nil {
		t.Fatal(err)
	}
	mm.PopulatePages(0x400000, 0x400000+16*1024)

	mm.Write(0x1000, 4, 0xDEADBEEF)
	if got := mm.Read(0x1000, 4); got != 0xDEADBEEF {
		t.Errorf("Read after Write = %#x, want 0xDEADBEEF", got)
	}
	if got := mm.Read(0x1000, 2); got != 0xDEAD {
		t.Errorf("Read 2-byte high half = %#x, want 0xDEAD", got)
	}
}

func TestUnmappedReadIsZero(t *testing.T) {
	mm, err := New(24, 64*1024, 16*1024)
	if err != nil {
		t.Fatal(err)
	}
	if got := mm.Read(0x800000, 4); got != 0 {
		t.Errorf("Read of unmapped address = %#x, want 0", got)
	}
}

func TestUnmappedWriteIsDropped(t *testing.T) {
	mm, err := New(24, 64*1024, 16*1024)
	if err != nil {
		t.Fatal(err)
	}
	mm.Write(0x800000, 4, 0x11223344) // must not panic
	if got := mm.Read(0x800000, 4); got != 0 {
		t.Errorf("Read after write-to-unmapped = %#x, want 0", got)
	}
}

func TestROMIsReadOnlyAndMirrored(t *testing.T) {
	romSize := uint32(16 * 1024)
	mm, err := New(24, 64*1024, romSize)
	if err != nil {
		t.Fatal(err)
	}
	romStart := uint32(0x400000)
	mm.PopulatePages(romStart, romStart+4*romSize) // two full mirror strides

	mm.Write(romStart, 4, 0xFFFFFFFF) // ROM pages have no write SoA entry: must be a no-op
	copy(mm.host[int(PageSize)+int(mm.ramSize):], []byte{0x12, 0x34, 0x56, 0x78})
	if got := mm.Read(romStart, 4); got != 0x12345678 {
		t.Errorf("ROM read = %#x, want 0x12345678 (write to ROM should have been dropped)", got)
	}

	// Second half of the first 2*romSize stride is unmapped.
	if got := mm.Read(romStart+romSize, 4); got != 0 {
		t.Errorf("Read of ROM mirror gap = %#x, want 0", got)
	}

	// Third romSize-sized block (start of the second stride) mirrors ROM
	// again.
	if got := mm.Read(romStart+2*romSize, 4); got != 0x12345678 {
		t.Errorf("Read of mirrored ROM = %#x, want 0x12345678", got)
	}
}

func TestModeSwitchSwapsActiveVectors(t *testing.T) {
	mm, err := New(24, 64*1024, 16*1024)
	if err != nil {
		t.Fatal(err)
	}
	mm.PopulatePages(0x400000, 0x400000+16*1024)
	mm.SetSupervisor(false)
	mm.Write(0x2000, 4, 0xCAFEBABE)
	mm.SetSupervisor(true)
	if got := mm.Read(0x2000, 4); got != 0xCAFEBABE {
		t.Errorf("supervisor read after user write = %#x, want 0xCAFEBABE", got)
	}
}

func TestUnalignedCrossPageReadWriteSplitsOnHostBackedPages(t *testing.T) {
	mm, err := New(24, 64*1024, 16*1024)
	if err != nil {
		t.Fatal(err)
	}
	mm.PopulatePages(0x400000, 0x400000+16*1024)

	mm.host[int(PageSize)+0x0FFF] = 0x12
	mm.host[int(PageSize)+0x1000] = 0x34
	if got, want := mm.Read(0x0FFF, 2), uint32(0x1234); got != want {
		t.Errorf("cross-page Read(0x0FFF, 2) = %#x, want %#x", got, want)
	}

	mm.Write(0x1FFF, 2, 0xCAFE)
	if got := mm.host[int(PageSize)+0x1FFF]; got != 0xCA {
		t.Errorf("low byte of cross-page write = %#x, want 0xca", got)
	}
	if got := mm.host[int(PageSize)+0x2000]; got != 0xFE {
		t.Errorf("high byte of cross-page write = %#x, want 0xfe", got)
	}
	if got, want := mm.Read(0x1FFF, 2), uint32(0xCAFE); got != want {
		t.Errorf("Read back after cross-page Write = %#x, want %#x", got, want)
	}
}

type fakeDevice struct {
	lastOffset uint32
	lastWidth  int
	writeVal   uint32
	readVal    uint32
}

func (d *fakeDevice) Read(offset uint32, width int) (uint32, error) {
	d.lastOffset, d.lastWidth = offset, width
	return d.readVal, nil
}

func (d *fakeDevice) Write(offset uint32, width int, val uint32) error {
	d.lastOffset, d.lastWidth, d.writeVal = offset, width, val
	return nil
}

func TestDeviceMappingDispatchesSlowPath(t *testing.T) {
	mm, err := New(24, 64*1024, 16*1024)
	if err != nil {
		t.Fatal(err)
	}
	mm.PopulatePages(0x400000, 0x400000+16*1024)
	dev := &fakeDevice{readVal: 0x55}
	mm.MapAdd(0x900000, PageSize, dev)

	if got := mm.Read(0x900010, 1); got != 0x55 {
		t.Errorf("device-mapped Read = %#x, want 0x55", got)
	}
	if dev.lastOffset != 0x10 {
		t.Errorf("device saw offset %#x, want 0x10", dev.lastOffset)
	}

	mm.Write(0x900020, 2, 0xABCD)
	if dev.writeVal != 0xABCD || dev.lastOffset != 0x20 {
		t.Errorf("device saw write offset=%#x val=%#x, want offset=0x20 val=0xabcd", dev.lastOffset, dev.writeVal)
	}
}

type stubFault struct {
	mm       *MemoryMap
	physBase uint32
	calls    int
}

func (f *stubFault) HandleFault(addr uint32, isWrite, supervisor bool) bool {
	f.calls++
	f.mm.FillPage(addr&^uint32(PageSize-1), f.physBase, false, false)
	return true
}

func TestFaultHandlerRetriesFastPath(t *testing.T) {
	mm, err := New(24, 64*1024, 16*1024)
	if err != nil {
		t.Fatal(err)
	}
	fh := &stubFault{mm: mm, physBase: 0}
	mm.SetFaultHandler(fh)

	mm.Write(0x3000, 4, 0x99887766)
	if fh.calls != 1 {
		t.Fatalf("fault handler called %d times, want 1", fh.calls)
	}
	if got := mm.Read(0x3000, 4); got != 0x99887766 {
		t.Errorf("Read after fault-filled page = %#x, want 0x99887766", got)
	}
	if fh.calls != 1 {
		t.Errorf("fault handler called again after fill: %d calls", fh.calls)
	}
}
