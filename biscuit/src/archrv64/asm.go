// Package archrv64 holds the register-exact riscv64 assembly this kernel
// needs and cannot express in Go: the trap vector, the kernel-to-kernel
// context switch, and the supervisor/user privilege transition. Every
// function here is a thin Go declaration backed by a .s file; the Go
// side never reimplements what the assembly already guarantees
// register-exactly.
package archrv64

import "trapframe"

// ContextSwitch saves the callee-saved registers and satp of the running
// computation into old, loads them from new, and returns into the caller
// at new's saved ra -- i.e. it returns from whatever earlier ContextSwitch
// call suspended new. The
// caller must already hold whatever lock protects the two Context_t
// structures; ContextSwitch disturbs no other state.
//
//go:noescape
func ContextSwitch(old, new *trapframe.Context_t)

// Trapret consumes a saved TrapFrame_t and performs the single atomic
// privilege-mode transition back to user mode: write sepc, clear
// sstatus.SPP, set
// sstatus.SPIE, stash the kernel stack pointer in sscratch, zero gp, load
// every general register from tf, and sret. Trapret never returns to its
// Go caller.
//
//go:noescape
func Trapret(tf *trapframe.TrapFrame_t)

// SetKstack records the per-hart kernel stack pointer in sscratch so the
// next trap from user mode can swap to it.
//
//go:noescape
func SetKstack(kstack uintptr)

// SetSatp installs a page-table root (already shifted and OR'd with the
// Sv39 mode bits by the caller) into satp and issues sfence.vma so the
// new translation is visible to subsequent memory references.
//
//go:noescape
func SetSatp(satp uintptr)

// SfenceVMA issues a global TLB fence. Called after any map/unmap that
// targets the currently-installed root.
//
//go:noescape
func SfenceVMA()

// IntrOn sets sstatus.SIE, enabling supervisor interrupts, and returns
// whether they were already enabled -- the nested-safe save/restore
// primitive this kernel requires around every critical section.
//
//go:noescape
func IntrOn() bool

// IntrOff clears sstatus.SIE and returns whether interrupts were enabled
// beforehand, so the caller can restore the prior state exactly.
//
//go:noescape
func IntrOff() bool

// IntrRestore sets sstatus.SIE to the value returned by an earlier
// IntrOn/IntrOff, completing the nested-safe critical-section pattern.
//
//go:noescape
func IntrRestore(wasEnabled bool)

// Wfi parks the hart until the next interrupt.
//
//go:noescape
func Wfi()

// InstallTrapvec writes the address of the trap entry symbol into stvec.
// Called once during boot.
//
//go:noescape
func InstallTrapvec()

// TrapHandler is invoked by the assembly trap entry with a pointer to the
// frame it just built on the current kernel stack.
// kernel.Kmain installs this during boot; archrv64 cannot import the
// packages that classify and dispatch traps without an import cycle, so
// the indirection is a package-level function variable rather than a
// direct call.
var TrapHandler func(tf *trapframe.TrapFrame_t)

// goTrapHandler is the Go-callable trampoline the assembly trap entry
// invokes; it exists only so a .s file can CALL into Go code without
// reaching through a func variable itself.
func goTrapHandler(tf *trapframe.TrapFrame_t) {
	if TrapHandler == nil {
		panic("archrv64: trap before TrapHandler installed")
	}
	TrapHandler(tf)
}
