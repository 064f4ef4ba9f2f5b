// Package trapframe defines the two register-layout structures that the
// hand-written riscv64 assembly in package archrv64 saves to and restores
// from: TrapFrame_t (kernel entry from a trap) and Context_t (a cooperative
// kernel-to-kernel context switch). Both layouts are part of the assembly
// contract — reordering a field here requires reordering
// the matching offset in archrv64's trap.s/swtch.s.
package trapframe

// TrapFrame_t is the register set saved on trap entry and restored on trap
// return. The layout mirrors RISC-V's x1..x31
// register order so the assembly trap vector can save/restore it with a
// single run of sd/ld instructions at fixed offsets; x0 (hardwired zero) is
// never saved.
type TrapFrame_t struct {
	Ra  uintptr // x1
	Sp  uintptr // x2 -- the trapped sp; kernel stack ptr lives in sscratch
	Gp  uintptr // x3
	Tp  uintptr // x4
	T0  uintptr // x5
	T1  uintptr // x6
	T2  uintptr // x7
	S0  uintptr // x8 / fp
	S1  uintptr // x9
	A0  uintptr // x10
	A1  uintptr // x11
	A2  uintptr // x12
	A3  uintptr // x13
	A4  uintptr // x14
	A5  uintptr // x15
	A6  uintptr // x16
	A7  uintptr // x17 -- syscall number on an ecall trap
	S2  uintptr // x18
	S3  uintptr // x19
	S4  uintptr // x20
	S5  uintptr // x21
	S6  uintptr // x22
	S7  uintptr // x23
	S8  uintptr // x24
	S9  uintptr // x25
	S10 uintptr // x26
	S11 uintptr // x27
	T3  uintptr // x28
	T4  uintptr // x29
	T5  uintptr // x30
	T6  uintptr // x31

	// CSRs captured at trap entry.
	Sepc    uintptr
	Sstatus uintptr
	Scause  uintptr
	Stval   uintptr
}

// Scause cause codes this kernel recognises. Only the
// interrupt bit and the low cause bits the handler actually switches on are
// named; anything else falls through to the "unrecoverable" case.
const (
	ScauseInterruptBit    uintptr = 1 << 63
	ScauseEcallFromUmode  uintptr = 8
	ScauseSupervisorTimer uintptr = 5 | ScauseInterruptBit
	ScauseSupervisorExt   uintptr = 9 | ScauseInterruptBit
	ScauseLoadPageFault   uintptr = 13
	ScauseStorePageFault  uintptr = 15
	ScauseInstrPageFault  uintptr = 12
)

// Syscallno returns the syscall number an ecall-from-U-mode trap carries in
// a7, per the Linux riscv64 syscall ABI.
func (tf *TrapFrame_t) Syscallno() int {
	return int(tf.A7)
}

// Arg returns argument slot i (0..5, a0..a5) per the syscall ABI.
func (tf *TrapFrame_t) Arg(i int) uintptr {
	switch i {
	case 0:
		return tf.A0
	case 1:
		return tf.A1
	case 2:
		return tf.A2
	case 3:
		return tf.A3
	case 4:
		return tf.A4
	case 5:
		return tf.A5
	default:
		panic("trapframe: bad arg index")
	}
}

// SetReturn stores a syscall's return value into a0.
func (tf *TrapFrame_t) SetReturn(v int) {
	tf.A0 = uintptr(v)
}

// AdvancePastEcall advances sepc by 4 (the width of ecall) so sret resumes
// at the instruction following the trap, rather than re-executing it.
func (tf *TrapFrame_t) AdvancePastEcall() {
	tf.Sepc += 4
}

// IsInterrupt reports whether scause's top bit (the interrupt flag) is set.
func (tf *TrapFrame_t) IsInterrupt() bool {
	return tf.Scause&ScauseInterruptBit != 0
}

// Context_t is the callee-saved register set plus the CSRs this kernel
// treats as part of a suspended kernel computation:
// ra, sp, s0..s11, and satp (the currently-installed page-table root).
// ContextSwitch in archrv64 saves the old set and loads the new one in a
// single atomic-from-software's-view routine.
type Context_t struct {
	Ra   uintptr
	Sp   uintptr
	S0   uintptr
	S1   uintptr
	S2   uintptr
	S3   uintptr
	S4   uintptr
	S5   uintptr
	S6   uintptr
	S7   uintptr
	S8   uintptr
	S9   uintptr
	S10  uintptr
	S11  uintptr
	Satp uintptr
}
