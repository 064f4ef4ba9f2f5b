package vm

import (
	"testing"

	"mem"
)

func setup(t *testing.T) {
	t.Helper()
	mem.Phys_init()
}

func TestMapTranslateRoundtrip(t *testing.T) {
	setup(t)
	root, ok := New()
	if !ok {
		t.Fatal("New failed")
	}
	va := mem.Va_t(0x1000)
	pa, ok := mem.Physmem.AllocZeroed()
	if !ok {
		t.Fatal("AllocZeroed failed")
	}
	if !Map(root, va, pa, PTE_R|PTE_W|PTE_U) {
		t.Fatal("Map failed")
	}
	gotPa, perms, ok := Translate(root, va)
	if !ok {
		t.Fatal("Translate reported unmapped")
	}
	if gotPa != pa {
		t.Fatalf("Translate pa = %#x, want %#x", gotPa, pa)
	}
	if perms&PTE_R == 0 || perms&PTE_W == 0 || perms&PTE_U == 0 {
		t.Fatalf("Translate perms = %#x, missing expected bits", perms)
	}
}

func TestTranslateUnmappedFails(t *testing.T) {
	setup(t)
	root, _ := New()
	if _, _, ok := Translate(root, mem.Va_t(0x2000)); ok {
		t.Fatal("Translate succeeded on an unmapped address")
	}
}

func TestUnmapClearsMapping(t *testing.T) {
	setup(t)
	root, _ := New()
	pa, _ := mem.Physmem.AllocZeroed()
	va := mem.Va_t(0x3000)
	Map(root, va, pa, PTE_R|PTE_W)
	Unmap(root, va)
	if _, _, ok := Translate(root, va); ok {
		t.Fatal("Translate succeeded after Unmap")
	}
}

func TestMapUnalignedPanics(t *testing.T) {
	setup(t)
	root, _ := New()
	pa, _ := mem.Physmem.AllocZeroed()
	defer func() {
		if recover() == nil {
			t.Fatal("Map with unaligned va did not panic")
		}
	}()
	Map(root, mem.Va_t(0x1001), pa, PTE_R)
}

func TestInstallKernelGlobalsCopiesUpperHalf(t *testing.T) {
	setup(t)
	src, _ := New()
	dst, _ := New()

	const splitVpn2 = 256
	kva := mem.MkVa(300, 0, 0, 0)
	pa, _ := mem.Physmem.AllocZeroed()
	if !Map(src, kva, pa, PTE_R|PTE_W) {
		t.Fatal("Map into src failed")
	}

	InstallKernelGlobals(dst, src, splitVpn2)

	gotPa, _, ok := Translate(dst, kva)
	if !ok || gotPa != pa {
		t.Fatalf("dst did not inherit kernel mapping: ok=%v pa=%#x want %#x", ok, gotPa, pa)
	}
}

func TestCloneUserSpaceCopiesNotShares(t *testing.T) {
	setup(t)
	src, _ := New()
	dst, _ := New()

	const splitVpn2 = 256
	uva := mem.MkVa(10, 0, 0, 0)
	pa, _ := mem.Physmem.AllocZeroed()
	mem.Physmem.Dmap(pa)[0] = 0xAB
	if !Map(src, uva, pa, PTE_R|PTE_W|PTE_U) {
		t.Fatal("Map into src failed")
	}

	if !CloneUserSpace(dst, src, splitVpn2) {
		t.Fatal("CloneUserSpace failed")
	}

	dstPa, _, ok := Translate(dst, uva)
	if !ok {
		t.Fatal("dst has no mapping for cloned address")
	}
	if dstPa == pa {
		t.Fatal("CloneUserSpace shared the frame instead of copying it")
	}
	if mem.Physmem.Dmap(dstPa)[0] != 0xAB {
		t.Fatal("cloned frame did not copy source contents")
	}

	// Mutating the clone must not affect the original (a full copy, not COW).
	mem.Physmem.Dmap(dstPa)[0] = 0xCD
	if mem.Physmem.Dmap(pa)[0] != 0xAB {
		t.Fatal("mutating the clone affected the source frame")
	}
}

func TestFreeUserSpaceFreesFrames(t *testing.T) {
	setup(t)
	root, _ := New()
	const splitVpn2 = 256
	uva := mem.MkVa(5, 0, 0, 0)
	pa, _ := mem.Physmem.AllocZeroed()
	Map(root, uva, pa, PTE_R|PTE_W|PTE_U)

	before := mem.Physmem.Pgcount()
	FreeUserSpace(root, splitVpn2)
	after := mem.Physmem.Pgcount()

	// One mapped leaf plus its two owning page-table pages (L0, L1) come
	// back to the allocator.
	if want := before + 3; after != want {
		t.Fatalf("Pgcount after FreeUserSpace = %d, want %d", after, want)
	}
}
