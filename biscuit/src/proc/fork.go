package proc

import (
	"reflect"

	"archrv64"
	"defs"
	"fd"
	"mem"
	"trapframe"
	"vm"
)

// Alloc reserves a fresh EMBRYO slot: a page table with kernel globals
// installed, an empty file table, a kernel stack, and no user mapping yet.
func Alloc(name string, parent *Proc_t) (*Proc_t, defs.Err_t) {
	T.Lock()
	p := T.allocLocked()
	T.Unlock()
	if p == nil {
		return nil, -defs.EAGAIN
	}

	root, ok := vm.New()
	if !ok {
		T.Lock()
		T.freeLocked(p)
		T.Unlock()
		return nil, -defs.ENOMEM
	}
	vm.InstallKernelGlobals(root, KernelPagetable, vm.SplitVpn2)

	p.Vm = &vm.Vm_t{Pagetable: root}
	p.Name = name

	// A freshly Alloc'd process starts with an empty file table; Fork
	// replaces this with a copy of the parent's right after Alloc
	// returns, since the child's file table is a snapshot taken at fork
	// time. The first process (parent == nil) keeps this empty table and
	// has its stdio bound in by kernel.Kmain instead.
	p.Ftbl = fd.MkFileTable()

	kstack, ok := mem.Physmem.AllocZeroed()
	if !ok {
		p.Vm.Uvmfree()
		T.Lock()
		T.freeLocked(p)
		T.Unlock()
		return nil, -defs.ENOMEM
	}
	// The kernel stack's frame, like all of RAM, appears in every page
	// table's kernel window at KernBase+offset; Kstack records the top of
	// that frame as its physical (flat-arena) address.
	p.Kstack = uintptr(kstack) + uintptr(mem.PGSIZE)

	if parent != nil {
		p.Ppid = parent.Pid
		p.Cwd = parent.Cwd
	} else {
		p.Cwd = fd.MkRootCwd(nil)
	}
	return p, 0
}

// KernelPagetable is the boot-time page table whose VPN2-and-above
// entries every process's table shares, the source of truth
// InstallKernelGlobals copies from. kernel.Kmain sets this during early
// boot, before any process exists.
var KernelPagetable vm.Pagetable_t

// forkretAddr resolves forkret's entry PC. Go does not expose a portable
// way to take a bare function pointer; reflect.Value.Pointer is the same
// trick xv6-style teaching kernels use for "first dispatch runs a small
// trampoline" context setup.
func forkretAddr() uintptr {
	return reflect.ValueOf(forkret).Pointer()
}

// forkret is where a freshly forked or newly created process's context
// switch "returns" the first time it is ever scheduled. It exists only to
// hand off into the user-mode-return assembly via the saved trap frame.
func forkret() {
	p := Current()
	archrv64.Trapret(p.UserFrame)
}

// Start arms a freshly Alloc'd process (one with a UserFrame already
// installed, e.g. by Exec) for its first-ever scheduling and makes it
// runnable. kernel.Kmain uses this for the initial process, which has no
// parent frame for Fork's tail to clone from.
func Start(p *Proc_t) {
	p.Kctx = trapframe.Context_t{
		Ra: forkretAddr(),
		Sp: p.Kstack,
	}
	MakeRunnable(p)
}

// Fork implements clone/fork.
func Fork(parent *Proc_t, ptf *trapframe.TrapFrame_t) (defs.Pid_t, defs.Err_t) {
	child, err := Alloc(parent.Name, parent)
	if err != 0 {
		return 0, err
	}

	if !vm.CloneUserSpace(child.Vm.Pagetable, parent.Vm.Pagetable, vm.SplitVpn2) {
		child.Vm.Uvmfree()
		T.Lock()
		T.freeLocked(child)
		T.Unlock()
		return 0, -defs.ENOMEM
	}

	ftbl, err := parent.Ftbl.Copy()
	if err != 0 {
		child.Vm.Uvmfree()
		T.Lock()
		T.freeLocked(child)
		T.Unlock()
		return 0, err
	}
	child.Ftbl = ftbl

	ctf := *ptf
	ctf.A0 = 0 // child sees return value 0
	ctf.AdvancePastEcall()
	child.UserFrame = &ctf

	child.Kctx = trapframe.Context_t{
		Ra: forkretAddr(),
		Sp: child.Kstack,
	}

	MakeRunnable(child)
	return child.Pid, 0
}

// Exit implements the exit/zombie transition. It never returns.
func Exit(p *Proc_t, code int) {
	was := archrv64.IntrOff()
	T.Lock()
	p.State = ZOMBIE
	p.ExitCode = code
	T.Unlock()
	archrv64.IntrRestore(was)

	Wakeup(uintptr(p.Ppid))
	Schedule(false)
	panic("proc: exited process rescheduled")
}

// Wait4 implements wait4. It scans for any
// zombie child, reaps the first one found, or sleeps until one appears.
func Wait4(parent *Proc_t) (defs.Pid_t, int, defs.Err_t) {
	for {
		T.Lock()
		haveChild := false
		for i := range T.slots {
			c := &T.slots[i]
			if c.Ppid != parent.Pid || c.Pid == nilPid {
				continue
			}
			haveChild = true
			if c.State == ZOMBIE {
				pid, code := c.Pid, c.ExitCode
				T.freeLocked(c)
				T.Unlock()
				return pid, code, 0
			}
		}
		T.Unlock()
		if !haveChild {
			return 0, 0, -defs.ECHILD
		}
		SleepOn(uintptr(parent.Pid), &parent.waitq)
	}
}
