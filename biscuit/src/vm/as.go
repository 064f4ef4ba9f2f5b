package vm

import (
	"sync"
	"time"

	"defs"
	"mem"
	"ustr"
	"util"
)

// SplitVpn2 is the VPN2 index at which the user/kernel split happens: VPN2
// values below this are user space, at or above are kernel space shared by
// every process.
const SplitVpn2 = 256

// USERMIN is the lowest valid user virtual address.
const USERMIN = uintptr(0)

// Vm_t represents one process's Sv39 address space: a page-table root plus
// the mutex that serializes every lookup and mutation against it.
//
// Biscuit's Vm_t additionally carries a Vmregion_t describing lazily
// faulted-in anonymous/file/shared regions, because real processes grow
// their heap and stack on demand and share COW pages after fork.
// Demand paging, COW and swap are all Non-goals here: every
// mapping this kernel creates is eagerly resident, so Vm_t needs no region
// list, only the page-table root and its lock.
type Vm_t struct {
	sync.Mutex
	Pagetable Pagetable_t
	pgfltaken bool
}

// Lock_pmap acquires the address-space mutex.
func (as *Vm_t) Lock_pmap() {
	as.Lock()
	as.pgfltaken = true
}

// Unlock_pmap releases the address-space mutex.
func (as *Vm_t) Unlock_pmap() {
	as.pgfltaken = false
	as.Unlock()
}

// Lockassert_pmap panics if the address-space mutex is not held.
func (as *Vm_t) Lockassert_pmap() {
	if !as.pgfltaken {
		panic("pgfl lock must be held")
	}
}

// Userdmap8_inner returns a slice mapping the user address va. k2u records
// whether the kernel intends to write through the returned slice (kernel
// writing into a user buffer, e.g. for a read(2) syscall); the mapping
// must be PTE_W for that to be legal.
func (as *Vm_t) Userdmap8_inner(va int, k2u bool) ([]uint8, defs.Err_t) {
	as.Lockassert_pmap()
	voff := va & int(PGOFFSET)
	pa, perms, ok := Translate(as.Pagetable, mem.Va_t(util.Rounddown(va, mem.PGSIZE)))
	if !ok {
		return nil, -defs.EFAULT
	}
	if perms&PTE_U == 0 {
		return nil, -defs.EFAULT
	}
	if k2u && perms&PTE_W == 0 {
		return nil, -defs.EFAULT
	}
	pg := mem.Physmem.Dmap(pa - mem.Pa_t(voff))
	return pg[voff:], 0
}

func (as *Vm_t) _userdmap8(va int, k2u bool) ([]uint8, defs.Err_t) {
	as.Lock_pmap()
	ret, err := as.Userdmap8_inner(va, k2u)
	as.Unlock_pmap()
	return ret, err
}

// Userdmap8r maps the user address for reading.
func (as *Vm_t) Userdmap8r(va int) ([]uint8, defs.Err_t) {
	return as._userdmap8(va, false)
}

func (as *Vm_t) usermapped(va, n int) bool {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	_, _, ok := Translate(as.Pagetable, mem.Va_t(va))
	return ok
}

// Userreadn reads n (<=8) bytes from user address va as a little-endian
// integer.
func (as *Vm_t) Userreadn(va, n int) (int, defs.Err_t) {
	as.Lock_pmap()
	a, b := as.userreadn_inner(va, n)
	as.Unlock_pmap()
	return a, b
}

func (as *Vm_t) userreadn_inner(va, n int) (int, defs.Err_t) {
	as.Lockassert_pmap()
	if n > 8 {
		panic("large n")
	}
	var ret int
	var src []uint8
	var err defs.Err_t
	for i := 0; i < n; i += len(src) {
		src, err = as.Userdmap8_inner(va+i, false)
		if err != 0 {
			return 0, err
		}
		l := n - i
		if len(src) < l {
			l = len(src)
		}
		v := util.Readn(src, l, 0)
		ret |= v << (8 * uint(i))
	}
	return ret, 0
}

// Userwriten writes n (<=8) bytes of val to user address va.
func (as *Vm_t) Userwriten(va, n, val int) defs.Err_t {
	if n > 8 {
		panic("large n")
	}
	as.Lock_pmap()
	defer as.Unlock_pmap()
	var dst []uint8
	for i := 0; i < n; i += len(dst) {
		v := val >> (8 * uint(i))
		t, err := as.Userdmap8_inner(va+i, true)
		dst = t
		if err != 0 {
			return err
		}
		util.Writen(dst, n-i, 0, v)
	}
	return 0
}

// Userstr copies a NUL-terminated string from user space, up to lenmax
// bytes.
func (as *Vm_t) Userstr(uva int, lenmax int) (ustr.Ustr, defs.Err_t) {
	if lenmax < 0 {
		return nil, 0
	}
	as.Lock_pmap()
	defer as.Unlock_pmap()
	i := 0
	s := ustr.MkUstr()
	for {
		str, err := as.Userdmap8_inner(uva+i, false)
		if err != 0 {
			return s, err
		}
		for j, c := range str {
			if c == 0 {
				s = append(s, str[:j]...)
				return s, 0
			}
		}
		s = append(s, str...)
		i += len(str)
		if len(s) >= lenmax {
			return nil, -defs.ENAMETOOLONG
		}
	}
}

// Usertimespec reads a {secs, nsecs} pair from user memory at va.
func (as *Vm_t) Usertimespec(va int) (time.Duration, time.Time, defs.Err_t) {
	var zt time.Time
	secs, err := as.Userreadn(va, 8)
	if err != 0 {
		return 0, zt, err
	}
	nsecs, err := as.Userreadn(va+8, 8)
	if err != 0 {
		return 0, zt, err
	}
	if secs < 0 || nsecs < 0 {
		return 0, zt, -defs.EINVAL
	}
	tot := time.Duration(secs)*time.Second + time.Duration(nsecs)*time.Nanosecond
	t := time.Unix(int64(secs), int64(nsecs))
	return tot, t, 0
}

// K2user copies src into the user address space starting at uva.
func (as *Vm_t) K2user(src []uint8, uva int) defs.Err_t {
	as.Lock_pmap()
	ret := as.K2user_inner(src, uva)
	as.Unlock_pmap()
	return ret
}

func (as *Vm_t) K2user_inner(src []uint8, uva int) defs.Err_t {
	as.Lockassert_pmap()
	cnt := 0
	l := len(src)
	for cnt != l {
		dst, err := as.Userdmap8_inner(uva+cnt, true)
		if err != 0 {
			return err
		}
		ub := len(src) - cnt
		if ub > len(dst) {
			ub = len(dst)
		}
		copy(dst, src[cnt:cnt+ub])
		cnt += ub
	}
	return 0
}

// User2k copies len(dst) bytes from user address uva into dst.
func (as *Vm_t) User2k(dst []uint8, uva int) defs.Err_t {
	as.Lock_pmap()
	ret := as.User2k_inner(dst, uva)
	as.Unlock_pmap()
	return ret
}

func (as *Vm_t) User2k_inner(dst []uint8, uva int) defs.Err_t {
	as.Lockassert_pmap()
	cnt := 0
	for len(dst) != 0 {
		src, err := as.Userdmap8_inner(uva+cnt, false)
		if err != 0 {
			return err
		}
		did := copy(dst, src)
		dst = dst[did:]
		cnt += did
	}
	return 0
}

// Unusedva_inner finds an address not currently mapped, scanning forward
// from startva. Unlike Biscuit's Vmregion-based search this just probes
// Translate page by page; fine for an educational kernel's small address
// spaces.
func (as *Vm_t) Unusedva_inner(startva, length int) int {
	as.Lockassert_pmap()
	va := util.Rounddown(startva, mem.PGSIZE)
	if va < int(USERMIN) {
		va = int(USERMIN)
	}
	run := 0
	start := va
	for run < length {
		if _, _, ok := Translate(as.Pagetable, mem.Va_t(va)); ok {
			run = 0
			start = va + mem.PGSIZE
		} else {
			run += mem.PGSIZE
		}
		va += mem.PGSIZE
	}
	return start
}

// Pgfault reports every address-space miss as EFAULT: with demand paging
// and COW out of scope, there is never a lazy mapping left
// to resolve, so a process taking a page fault has made a genuine
// out-of-bounds access.
func (as *Vm_t) Pgfault(tid defs.Tid_t, fa, ecode uintptr) defs.Err_t {
	return -defs.EFAULT
}

// Uvmfree releases every user mapping and the page tables that back it.
func (as *Vm_t) Uvmfree() {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	FreeUserSpace(as.Pagetable, SplitVpn2)
	mem.Physmem.Free(as.Pagetable)
}

// Vmadd_anon eagerly allocates and maps len bytes of zeroed memory
// starting at start with the given permissions (PTE_R/PTE_W/PTE_X all
// ORed with PTE_U, matching the spec's eager-mapping model).
func (as *Vm_t) Vmadd_anon(start, length int, perms mem.Pa_t) defs.Err_t {
	if mem.Pa_t(start|length)&PGOFFSET != 0 {
		panic("start and len must be aligned")
	}
	as.Lock_pmap()
	defer as.Unlock_pmap()
	for off := 0; off < length; off += mem.PGSIZE {
		pa, ok := mem.Physmem.AllocZeroed()
		if !ok {
			return -defs.ENOMEM
		}
		if !Map(as.Pagetable, mem.Va_t(start+off), pa, perms|PTE_U) {
			mem.Physmem.Free(pa)
			return -defs.ENOMEM
		}
	}
	return 0
}

// Mkuserbuf allocates and initializes a Userbuf_t referencing user memory
// starting at userva.
func (as *Vm_t) Mkuserbuf(userva, length int) *Userbuf_t {
	ret := &Userbuf_t{}
	ret.ub_init(as, userva, length)
	return ret
}
