package mem

import "testing"

func freshPhysmem() *Physmem_t {
	p := &Physmem_t{}
	p.Mem = make([]byte, 64*PGSIZE)
	p.nframes = 64
	p.used = make([]bool, p.nframes)
	return p
}

func TestAllocFirstFit(t *testing.T) {
	p := freshPhysmem()
	pa, ok := p.Alloc()
	if !ok {
		t.Fatal("Alloc failed on a fresh arena")
	}
	if pa != RAMBase {
		t.Fatalf("first Alloc = %#x, want %#x", pa, RAMBase)
	}
	pa2, ok := p.Alloc()
	if !ok || pa2 != RAMBase+Pa_t(PGSIZE) {
		t.Fatalf("second Alloc = %#x, %v", pa2, ok)
	}
}

func TestAllocExhaustion(t *testing.T) {
	p := freshPhysmem()
	for i := 0; i < p.nframes; i++ {
		if _, ok := p.Alloc(); !ok {
			t.Fatalf("Alloc failed early at frame %d", i)
		}
	}
	if _, ok := p.Alloc(); ok {
		t.Fatal("Alloc succeeded past exhaustion")
	}
}

func TestFreeThenReuse(t *testing.T) {
	p := freshPhysmem()
	pa, _ := p.Alloc()
	p.Free(pa)
	pa2, ok := p.Alloc()
	if !ok || pa2 != pa {
		t.Fatalf("expected freed frame %#x to be reused, got %#x", pa, pa2)
	}
}

func TestDoubleFreePanics(t *testing.T) {
	p := freshPhysmem()
	pa, _ := p.Alloc()
	p.Free(pa)
	defer func() {
		if recover() == nil {
			t.Fatal("double free did not panic")
		}
	}()
	p.Free(pa)
}

func TestAllocZeroedIsZero(t *testing.T) {
	p := freshPhysmem()
	pa, ok := p.AllocZeroed()
	if !ok {
		t.Fatal("AllocZeroed failed")
	}
	pg := p.Dmap(pa)
	for i, b := range pg {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %#x", i, b)
		}
	}
}

func TestReserveExcludesFromAlloc(t *testing.T) {
	p := freshPhysmem()
	p.Reserve(RAMBase)
	pa, ok := p.Alloc()
	if !ok || pa == RAMBase {
		t.Fatalf("Alloc returned reserved frame %#x", pa)
	}
}

func TestPgcount(t *testing.T) {
	p := freshPhysmem()
	if got := p.Pgcount(); got != p.nframes {
		t.Fatalf("Pgcount = %d, want %d", got, p.nframes)
	}
	p.Alloc()
	if got := p.Pgcount(); got != p.nframes-1 {
		t.Fatalf("Pgcount after one alloc = %d, want %d", got, p.nframes-1)
	}
}
