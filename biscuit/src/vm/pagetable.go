// Package vm implements the Sv39 page-table manager and the address-space
// abstraction syscalls use to move bytes to and from user memory.
//
// Biscuit's x86_64 equivalent (as.go) builds a 4-level PML4 tree with
// demand-paged, copy-on-write anonymous and file-backed regions
// (Vmregion_t/Vminfo_t/VANON/VFILE/VSANON) resolved lazily from page
// faults, because real Linux-style processes need all of that. Claudia
// drops COW, demand paging, and swap entirely: every user mapping is
// created eagerly and fully resident, so the Sv39 tree here has no
// PTE_COW/PTE_WASCOW bits and Pgfault exists only to report "truly
// unmapped" as EFAULT rather than to resolve a mapping lazily.
package vm

import (
	"mem"
)

// PGSHIFT/PGOFFSET mirror mem's page geometry for code in this
// package that does address arithmetic directly.
const (
	PGSHIFT = mem.PGSHIFT
	PGOFFSET = mem.PGOFFSET
)

// PTE flag bits, Sv39.
const (
	PTE_V = mem.PTE_V
	PTE_R = mem.PTE_R
	PTE_W = mem.PTE_W
	PTE_X = mem.PTE_X
	PTE_U = mem.PTE_U
	PTE_G = mem.PTE_G
	PTE_A = mem.PTE_A
	PTE_D = mem.PTE_D
)

// pteAddr extracts the physical frame a leaf/branch PTE points to.
func pteAddr(pte mem.Pa_t) mem.Pa_t {
	return (pte >> mem.PTE_PPN_SHIFT) << mem.PGSHIFT
}

func mkpte(pa mem.Pa_t, flags mem.Pa_t) mem.Pa_t {
	return (pa>>mem.PGSHIFT)<<mem.PTE_PPN_SHIFT | flags
}

// Pagetable_t is the physical address of the root of a 3-level Sv39 tree.
type Pagetable_t = mem.Pa_t

// New allocates a zeroed page to serve as a fresh page-table root.
func New() (Pagetable_t, bool) {
	pa, ok := mem.Physmem.AllocZeroed()
	return pa, ok
}

func walk(root Pagetable_t, va mem.Va_t, alloc bool) (*mem.Pa_t, bool) {
	table := root
	for level := uint(2); level >= 1; level-- {
		ptes := mem.Physmem.PmapAt(table)
		idx := mem.Vpn(va, level)
		pte := &ptes[idx]
		if *pte&PTE_V == 0 {
			if !alloc {
				return nil, false
			}
			npa, ok := mem.Physmem.AllocZeroed()
			if !ok {
				return nil, false
			}
			*pte = mkpte(npa, PTE_V)
		} else if *pte&(PTE_R|PTE_W|PTE_X) != 0 {
			// a leaf at a non-final level would mean a superpage; this
			// kernel never creates one, so treat it as corruption.
			panic("vm: unexpected leaf above level 0")
		}
		table = pteAddr(*pte)
	}
	ptes := mem.Physmem.PmapAt(table)
	idx := mem.Vpn(va, 0)
	return &ptes[idx], true
}

// Map installs a leaf mapping from va to pa with the given permission bits
// (PTE_R/PTE_W/PTE_X/PTE_U), allocating intermediate page-table pages as
// needed. Both addresses must be page aligned.
func Map(root Pagetable_t, va mem.Va_t, pa mem.Pa_t, perms mem.Pa_t) bool {
	if mem.Pa_t(va)&PGOFFSET != 0 || pa&PGOFFSET != 0 {
		panic("vm.Map: unaligned address")
	}
	pte, ok := walk(root, va, true)
	if !ok {
		return false
	}
	*pte = mkpte(pa, perms|PTE_V|PTE_A|PTE_D)
	return true
}

// Unmap clears the leaf mapping for va, if any. It does not free
// intermediate page-table pages.
func Unmap(root Pagetable_t, va mem.Va_t) {
	pte, ok := walk(root, va, false)
	if !ok || pte == nil {
		return
	}
	*pte = 0
}

// Translate returns the physical address and permission bits for va, or
// false if va has no valid mapping.
func Translate(root Pagetable_t, va mem.Va_t) (mem.Pa_t, mem.Pa_t, bool) {
	pte, ok := walk(root, va, false)
	if !ok || *pte&PTE_V == 0 {
		return 0, 0, false
	}
	off := mem.Pa_t(va) & PGOFFSET
	return pteAddr(*pte) + off, *pte & (PTE_R | PTE_W | PTE_X | PTE_U), true
}

// InstallKernelGlobals copies the kernel's top-level (VPN2) page-table
// entries from src into dst so every process's address space shares the
// same view of kernel text/data above the user/kernel split, the Sv39
// analogue of Biscuit's own Kents-based "kernel globals installed in
// every pmap" scheme.
func InstallKernelGlobals(dst, src Pagetable_t, splitVpn2 uint) {
	dstPm := mem.Physmem.PmapAt(dst)
	srcPm := mem.Physmem.PmapAt(src)
	for i := splitVpn2; i < 512; i++ {
		dstPm[i] = srcPm[i]
	}
}

// CloneUserSpace copies every user-half (below splitVpn2) mapped page from
// src into a freshly allocated frame mapped at the same address in dst,
// performing a full copy rather than Biscuit's copy-on-write sharing
// scheme. Used by fork.
func CloneUserSpace(dst, src Pagetable_t, splitVpn2 uint) bool {
	srcPm := mem.Physmem.PmapAt(src)
	for i2 := uint(0); i2 < splitVpn2; i2++ {
		if srcPm[i2]&PTE_V == 0 {
			continue
		}
		l1 := pteAddr(srcPm[i2])
		l1pm := mem.Physmem.PmapAt(l1)
		for i1 := uint(0); i1 < 512; i1++ {
			if l1pm[i1]&PTE_V == 0 {
				continue
			}
			l0 := pteAddr(l1pm[i1])
			l0pm := mem.Physmem.PmapAt(l0)
			for i0 := uint(0); i0 < 512; i0++ {
				pte := l0pm[i0]
				if pte&PTE_V == 0 {
					continue
				}
				npa, ok := mem.Physmem.AllocZeroed()
				if !ok {
					return false
				}
				copy(mem.Physmem.Dmap(npa)[:], mem.Physmem.Dmap(pteAddr(pte))[:])
				va := mem.MkVa(i2, i1, i0, 0)
				perms := pte & (PTE_R | PTE_W | PTE_X | PTE_U)
				if !Map(dst, mem.Va_t(va), npa, perms) {
					return false
				}
			}
		}
	}
	return true
}

// FreeUserSpace walks the user half of root (below splitVpn2), freeing
// every mapped leaf frame and every page-table page it owns.
func FreeUserSpace(root Pagetable_t, splitVpn2 uint) {
	pm := mem.Physmem.PmapAt(root)
	for i2 := uint(0); i2 < splitVpn2; i2++ {
		if pm[i2]&PTE_V == 0 {
			continue
		}
		l1 := pteAddr(pm[i2])
		l1pm := mem.Physmem.PmapAt(l1)
		for i1 := uint(0); i1 < 512; i1++ {
			if l1pm[i1]&PTE_V == 0 {
				continue
			}
			l0 := pteAddr(l1pm[i1])
			l0pm := mem.Physmem.PmapAt(l0)
			for i0 := uint(0); i0 < 512; i0++ {
				pte := l0pm[i0]
				if pte&PTE_V == 0 {
					continue
				}
				mem.Physmem.Free(pteAddr(pte))
				l0pm[i0] = 0
			}
			mem.Physmem.Free(l0)
			l1pm[i1] = 0
		}
		mem.Physmem.Free(l1)
		pm[i2] = 0
	}
}
