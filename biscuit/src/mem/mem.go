// Package mem implements the physical frame allocator and the arena that
// stands in for RAM on the QEMU virt machine.
//
// Biscuit's x86_64 allocator tracks physical pages with a per-CPU freelist
// of refcounted Physpg_t entries reachable through a recursively-mapped
// direct map, because real hardware gives it no other way to touch
// physical memory from Go. Claudia has no such constraint: SMP is a
// Non-goal and physical RAM is modeled as a flat []byte
// arena that kernel code already runs inside, so the direct map collapses
// to a slice of that arena and the freelist collapses to a bitmap. COW is
// also a Non-goal, so frames carry no refcount; Free(pa) must name a
// frame this allocator actually owns, same as Biscuit's "double-free is a
// bug" discipline.
package mem

import (
	"fmt"
	"sync"
	"unsafe"

	"oommsg"
)

// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

// Sv39 PTE flag bits.
const (
	PTE_V Pa_t = 1 << 0 // valid
	PTE_R Pa_t = 1 << 1 // readable
	PTE_W Pa_t = 1 << 2 // writable
	PTE_X Pa_t = 1 << 3 // executable
	PTE_U Pa_t = 1 << 4 // user-accessible
	PTE_G Pa_t = 1 << 5 // global
	PTE_A Pa_t = 1 << 6 // accessed
	PTE_D Pa_t = 1 << 7 // dirty
)

// PTE_PPN_SHIFT is where the physical page number begins in a leaf PTE.
const PTE_PPN_SHIFT = 10

// Pa_t represents a physical address: a byte offset into Physmem.Mem.
type Pa_t uintptr

// Bytepg_t is a byte-addressed page.
type Bytepg_t [PGSIZE]uint8

// Pmap_t is a page-table page: 512 Sv39 PTEs.
type Pmap_t [512]Pa_t

func pg2pmap(pg *Bytepg_t) *Pmap_t {
	return (*Pmap_t)(unsafe.Pointer(pg))
}

// RAMBase is the load address of RAM on QEMU's virt machine.
const RAMBase Pa_t = 0x80000000

// RAMSize is the amount of simulated RAM backing Physmem (128MB default,
// generous for an educational kernel and its test suite).
const RAMSize = 128 << 20

// Physmem_t is the global physical-frame allocator: a flat arena plus a
// first-fit bitmap over its 4KB frames.
type Physmem_t struct {
	sync.Mutex
	Mem     []byte // the simulated RAM, indexed by Pa_t-RAMBase
	used    []bool // one entry per frame; true = allocated
	nframes int
}

// Physmem is the global physical memory allocator instance.
var Physmem = &Physmem_t{}

// Phys_init allocates the backing arena and marks every frame free. It must
// run exactly once before any other mem call.
func Phys_init() *Physmem_t {
	phys := Physmem
	phys.Mem = make([]byte, RAMSize)
	phys.nframes = RAMSize / PGSIZE
	phys.used = make([]bool, phys.nframes)
	fmt.Printf("mem: %v frames (%vMB) at pa %#x\n", phys.nframes, RAMSize>>20, RAMBase)
	return phys
}

func (phys *Physmem_t) frame2pa(idx int) Pa_t {
	return RAMBase + Pa_t(idx*PGSIZE)
}

func (phys *Physmem_t) pa2frame(pa Pa_t) int {
	if pa < RAMBase {
		panic("pa below RAM base")
	}
	idx := int(pa-RAMBase) / PGSIZE
	if idx >= phys.nframes {
		panic("pa beyond RAM end")
	}
	return idx
}

// Alloc reserves one physical frame with unspecified contents. On
// exhaustion it posts to oommsg.OomCh before giving up, in case a reclaim
// goroutine is listening; nothing
// in this port actually reclaims yet, so the notify is best-effort and
// Alloc fails regardless of whether anyone was there to hear it.
func (phys *Physmem_t) Alloc() (Pa_t, bool) {
	phys.Lock()
	defer phys.Unlock()
	for idx := 0; idx < phys.nframes; idx++ {
		if !phys.used[idx] {
			phys.used[idx] = true
			return phys.frame2pa(idx), true
		}
	}
	select {
	case oommsg.OomCh <- oommsg.Oommsg_t{Need: 1}:
	default:
	}
	return 0, false
}

// AllocZeroed reserves one physical frame and zeroes it.
func (phys *Physmem_t) AllocZeroed() (Pa_t, bool) {
	pa, ok := phys.Alloc()
	if !ok {
		return 0, false
	}
	pg := phys.Dmap(pa)
	for i := range pg {
		pg[i] = 0
	}
	return pa, true
}

// AllocPage is Alloc plus the mapped page, for callers that want both the
// physical address and a direct view of its bytes in one call.
func (phys *Physmem_t) AllocPage() (Pa_t, *Bytepg_t, bool) {
	pa, ok := phys.Alloc()
	if !ok {
		return 0, nil, false
	}
	return pa, phys.Dmap(pa), true
}

// Free releases a frame previously returned by Alloc/AllocZeroed. Freeing a
// frame this allocator does not believe is allocated is a programmer error
// and halts the kernel, matching Biscuit's refcount-underflow panics.
func (phys *Physmem_t) Free(pa Pa_t) {
	phys.Lock()
	defer phys.Unlock()
	idx := phys.pa2frame(pa)
	if !phys.used[idx] {
		panic("mem: double free")
	}
	phys.used[idx] = false
}

// Reserve marks the frame backing pa as permanently used, for the kernel
// image and other regions carved out before the allocator starts handing
// out frames.
func (phys *Physmem_t) Reserve(pa Pa_t) {
	phys.Lock()
	defer phys.Unlock()
	idx := phys.pa2frame(pa)
	phys.used[idx] = true
}

// Dmap returns the byte-page living at physical address p. Unlike
// Biscuit's recursively-mapped direct map this never faults: p need only
// name a page-aligned offset inside the arena.
func (phys *Physmem_t) Dmap(p Pa_t) *Bytepg_t {
	if p%Pa_t(PGSIZE) != 0 {
		panic("Dmap: not page aligned")
	}
	off := int(p - RAMBase)
	if off < 0 || off+PGSIZE > len(phys.Mem) {
		panic("Dmap: address out of range")
	}
	return (*Bytepg_t)(unsafe.Pointer(&phys.Mem[off]))
}

// PmapAt returns the page-table page living at physical address p.
func (phys *Physmem_t) PmapAt(p Pa_t) *Pmap_t {
	return pg2pmap(phys.Dmap(p))
}

// Dmaplen returns a slice over l bytes of the arena starting at p. p need
// not be page aligned.
func (phys *Physmem_t) Dmaplen(p Pa_t, l int) []uint8 {
	off := int(p - RAMBase)
	if off < 0 || off+l > len(phys.Mem) {
		panic("Dmaplen: address out of range")
	}
	return phys.Mem[off : off+l]
}

// Pgcount reports the number of free frames remaining.
func (phys *Physmem_t) Pgcount() int {
	phys.Lock()
	defer phys.Unlock()
	free := 0
	for _, u := range phys.used {
		if !u {
			free++
		}
	}
	return free
}
