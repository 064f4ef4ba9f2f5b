package proc

import (
	"defs"
	"mem"
	"trapframe"
	"vm"
)

// UserTextBase is where a freshly exec'd image's text segment starts.
// Every binary this kernel runs is a flat, already-linked image produced
// host-side by cmd/mkinitrd/cmd/chentry, not
// an ELF this package parses itself: Claudia moves the ELF-section-vs-
// segment bookkeeping out of ring-0 entirely rather than porting
// Biscuit's in-kernel ELF loader, trading "exec accepts arbitrary ELF" for
// "the embedded image is already a page-aligned text+data+bss blob" (see
// DESIGN.md's Exec entry).
const UserTextBase = 0x10000

// UserStackTop and StackSize bound the fixed user stack every exec
// installs, in the user half below vm.SplitVpn2.
const (
	StackSize   = 8 * mem.PGSIZE
	UserStackTop = 0x50000000
)

// Exec replaces p's user address space with a fresh image: tear down the
// old user mappings, map in the new text+data image read-write-execute
// (no separate RO text segment, matching this port's single-segment
// image format), install a fresh stack, and arrange for the next
// return-to-user to land at the image's entry point.
//
// Close-on-exec descriptors are dropped, keeping POSIX dup3/O_CLOEXEC
// semantics rather than Biscuit's original close-everything-on-exec
// behaviour.
func Exec(p *Proc_t, image []uint8, entry uintptr, argv []string) defs.Err_t {
	p.Vm.Lock_pmap()
	vm.FreeUserSpace(p.Vm.Pagetable, vm.SplitVpn2)
	p.Vm.Unlock_pmap()

	textLen := roundUp(len(image), mem.PGSIZE)
	if err := p.Vm.Vmadd_anon(UserTextBase, textLen, vm.PTE_R|vm.PTE_W|vm.PTE_X); err != 0 {
		return err
	}
	if err := p.Vm.K2user(image, UserTextBase); err != 0 {
		return err
	}

	stackBase := UserStackTop - StackSize
	if err := p.Vm.Vmadd_anon(stackBase, StackSize, vm.PTE_R|vm.PTE_W); err != 0 {
		return err
	}

	sp := UserStackTop
	var argvVa []int
	for i := len(argv) - 1; i >= 0; i-- {
		s := append([]byte(argv[i]), 0)
		sp -= roundUp(len(s), 8)
		if err := p.Vm.K2user(s, sp); err != 0 {
			return err
		}
		argvVa = append([]int{sp}, argvVa...)
	}
	sp -= (len(argvVa) + 1) * 8
	argvTbl := sp
	for i, va := range argvVa {
		if err := p.Vm.Userwriten(argvTbl+i*8, 8, va); err != 0 {
			return err
		}
	}
	if err := p.Vm.Userwriten(argvTbl+len(argvVa)*8, 8, 0); err != 0 {
		return err
	}

	tf := &trapframe.TrapFrame_t{
		Sepc: entry,
		Sp:   uintptr(sp),
		A0:   uintptr(len(argvVa)),
		A1:   uintptr(argvTbl),
	}
	p.UserFrame = tf
	p.Ftbl.CloseCloexec()
	return 0
}

func roundUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
