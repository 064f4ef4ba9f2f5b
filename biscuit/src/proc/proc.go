// Package proc implements the process table and the preemptive
// round-robin scheduler. Self-referential structures -- the ready queue,
// wait queues, and the free list -- are intrusive index links into the
// fixed Proc_t array rather than owning references, the same style
// Biscuit's own process table uses.
package proc

import (
	"sync"

	"accnt"
	"archrv64"
	"defs"
	"fd"
	"stats"
	"trapframe"
	"vm"
)

// State_t is a process's position in the lifecycle.
type State_t int

const (
	UNUSED State_t = iota
	EMBRYO
	SLEEPING
	RUNNABLE
	RUNNING
	ZOMBIE
)

// badSlot marks a link field as "no next/prev process".
const badSlot = -1

// Proc_t is one process-table slot. Slots never
// move; every reference elsewhere into the table is the integer index
// badSlot-terminated singly-linked lists thread through ready/wait queues
// and the free list use, not a pointer.
type Proc_t struct {
	Pid    defs.Pid_t
	Ppid   defs.Pid_t
	State  State_t
	Name   string

	Vm    *vm.Vm_t
	Ftbl  *fd.FileTable_t
	Cwd   *fd.Cwd_t

	Kstack      uintptr // top of this process's kernel stack (its initial sp)
	UserFrame   *trapframe.TrapFrame_t
	Kctx        trapframe.Context_t

	HeapStart int
	HeapEnd   int

	ExitCode  int
	Accounting accnt.Accnt_t

	// waitq is where this process's children accumulate while it sleeps
	// in Wait4.
	waitq WaitQueue_t

	// Wait-queue linkage: channel identifies what
	// this process is sleeping on; next/prev thread it through whichever
	// queue currently owns it (ready queue or a wait queue).
	Channel uintptr
	queued  bool
	next    int
	prev    int

	idx int // this slot's own index into Table_t.slots
}

const nilPid = defs.Pid_t(-1)

// Table_t is the fixed-size process table and the scheduler state
// threaded through it: the table is the sole owner of process storage.
type Table_t struct {
	sync.Mutex
	slots   [defs.MaxProcesses]Proc_t
	freeHd  int

	readyHd int
	readyTl int

	current int // index of the running process; -1 before boot finishes
	idle    int

	nextPid defs.Pid_t // monotonically increasing PID source, next Alloc
}

// T is the single global process table: a process-wide singleton,
// initialised once, never torn down.
var T Table_t

// Ctxswitches counts every call to Schedule that actually changes which
// slot is running; a no-op when
// stats.Stats is compiled false, same as every other stats.Counter_t.
var Ctxswitches stats.Counter_t

// Init builds the free list and reserves slot 0 for the idle process.
func Init() {
	T.Lock()
	defer T.Unlock()
	for i := range T.slots {
		T.slots[i] = Proc_t{Pid: nilPid, next: badSlot, prev: badSlot, idx: i}
	}
	for i := 0; i < len(T.slots)-1; i++ {
		T.slots[i].next = i + 1
	}
	T.slots[len(T.slots)-1].next = badSlot
	T.freeHd = 0
	T.readyHd, T.readyTl = badSlot, badSlot
	T.current = badSlot

	idle := T.allocLocked()
	idle.Pid = defs.IdlePid // idle reuses the reserved PID 0, not the counter
	T.nextPid = defs.InitPid
	idle.State = RUNNABLE
	idle.Name = "idle"
	T.idle = idle.Pid2idx()
	T.current = T.idle
}

// Pid2idx returns a slot's own index into Table_t.slots.
func (p *Proc_t) Pid2idx() int {
	return p.idx
}

// allocLocked pops the head of the free list and assigns it the next PID
// off the table's monotonic counter. PIDs are never reused while any
// reference to them -- a zombie awaiting reap, say -- survives.
// Callers that need a reserved PID (idle) overwrite p.Pid afterward.
// Caller holds T.Lock.
func (t *Table_t) allocLocked() *Proc_t {
	if t.freeHd == badSlot {
		return nil
	}
	idx := t.freeHd
	p := &t.slots[idx]
	t.freeHd = p.next
	p.next, p.prev = badSlot, badSlot
	p.State = EMBRYO
	p.Pid = t.nextPid
	t.nextPid++
	return p
}

// freeLocked returns a slot to the free list (ZOMBIE -> UNUSED). Caller
// holds T.Lock.
func (t *Table_t) freeLocked(p *Proc_t) {
	idx := p.idx
	*p = Proc_t{Pid: nilPid, next: t.freeHd, prev: badSlot, State: UNUSED, idx: idx}
	t.freeHd = idx
}

// Current returns the running process.
func Current() *Proc_t {
	T.Lock()
	defer T.Unlock()
	return &T.slots[T.current]
}

// enqueueReadyLocked appends p to the ready queue's tail. Re-enqueuing an
// already-queued process is a bug.
func (t *Table_t) enqueueReadyLocked(p *Proc_t) {
	if p.queued {
		panic("proc: double enqueue")
	}
	p.queued = true
	p.next, p.prev = badSlot, badSlot
	idx := p.Pid2idx()
	if t.readyTl == badSlot {
		t.readyHd, t.readyTl = idx, idx
		return
	}
	t.slots[t.readyTl].next = idx
	p.prev = t.readyTl
	t.readyTl = idx
}

// dequeueReadyLocked pops the ready queue's head, or returns nil.
func (t *Table_t) dequeueReadyLocked() *Proc_t {
	if t.readyHd == badSlot {
		return nil
	}
	idx := t.readyHd
	p := &t.slots[idx]
	t.readyHd = p.next
	if t.readyHd == badSlot {
		t.readyTl = badSlot
	} else {
		t.slots[t.readyHd].prev = badSlot
	}
	p.next, p.prev = badSlot, badSlot
	p.queued = false
	return p
}

// MakeRunnable transitions p to RUNNABLE and appends it to the ready
// queue.
func MakeRunnable(p *Proc_t) {
	T.Lock()
	defer T.Unlock()
	p.State = RUNNABLE
	T.enqueueReadyLocked(p)
}

// Schedule is the sole scheduling primitive. It must run
// with interrupts already disabled by the caller (the timer ISR or a
// blocking syscall path) and returns only once this hart is running some
// other, or the same, process again.
func Schedule(makeCurrentRunnable bool) {
	T.Lock()

	cur := &T.slots[T.current]
	if T.current == T.idle && T.readyHd == badSlot {
		T.Unlock()
		return
	}
	if makeCurrentRunnable && cur.State == RUNNING && T.current != T.idle {
		cur.State = RUNNABLE
		T.enqueueReadyLocked(cur)
	}

	next := T.dequeueReadyLocked()
	var nidx int
	if next == nil {
		nidx = T.idle
		next = &T.slots[T.idle]
	} else {
		nidx = next.Pid2idx()
	}

	next.State = RUNNING
	oldIdx := T.current
	T.current = nidx
	if oldIdx != nidx {
		Ctxswitches.Inc()
	}

	// idle (slot 0, PID 0) never gets a user address space of its own --
	// it is never exec'd into -- so it runs with the shared kernel page
	// table instead of crashing on a nil Vm.
	root := KernelPagetable
	if next.Vm != nil {
		root = next.Vm.Pagetable
	}
	satp := uintptr(1<<63) | uintptr(root)>>12
	T.Unlock()

	archrv64.SetSatp(satp)
	archrv64.ContextSwitch(&T.slots[oldIdx].Kctx, &next.Kctx)
}

// SleepOn parks the current process on queue/channel. The
// disable-interrupts/enqueue/re-enable/Schedule ordering is the
// lost-wakeup-avoidance discipline this kernel requires: SleepOn disables
// interrupts itself, sets state then links onto the wait list, restores
// the caller's interrupt state, then reschedules -- so any
// wakeup committed after the state flip is guaranteed to observe this
// process as SLEEPING-and-queued rather than missing it entirely.
func SleepOn(channel uintptr, wq *WaitQueue_t) {
	was := archrv64.IntrOff()
	T.Lock()
	cur := &T.slots[T.current]
	cur.State = SLEEPING
	cur.Channel = channel
	wq.addLocked(cur)
	T.Unlock()
	archrv64.IntrRestore(was)
	Schedule(false)
}

// WaitQueue_t anchors SLEEPING processes on some owning object (a TTY, a
// parent, a timer).
type WaitQueue_t struct {
	hd int
}

func (wq *WaitQueue_t) addLocked(p *Proc_t) {
	idx := p.Pid2idx()
	p.next = wq.hd
	p.prev = badSlot
	if wq.hd != badSlot {
		T.slots[wq.hd].prev = idx
	}
	wq.hd = idx
}

// WakeAll detaches every process on wq, marks each RUNNABLE, and appends
// it to the ready queue. Caller must already hold
// interrupts disabled for the duration of the queue mutation.
func WakeAll(wq *WaitQueue_t) {
	T.Lock()
	defer T.Unlock()
	idx := wq.hd
	wq.hd = badSlot
	for idx != badSlot {
		p := &T.slots[idx]
		next := p.next
		p.next, p.prev = badSlot, badSlot
		p.State = RUNNABLE
		p.Channel = 0
		T.enqueueReadyLocked(p)
		idx = next
	}
}

// Wakeup scans the whole table for SLEEPING processes whose channel
// matches, for the cases (exit/wait4) where the sleeper
// isn't necessarily linked on a single well-known WaitQueue_t.
func Wakeup(channel uintptr) {
	T.Lock()
	defer T.Unlock()
	for i := range T.slots {
		p := &T.slots[i]
		if p.State == SLEEPING && p.Channel == channel {
			p.State = RUNNABLE
			p.Channel = 0
			T.enqueueReadyLocked(p)
		}
	}
}

// Yield voluntarily gives up the remainder of the current time slice.
func Yield() {
	was := archrv64.IntrOff()
	Schedule(true)
	archrv64.IntrRestore(was)
}

// TickHz is the timer interrupt rate this kernel targets: 10ms @ 100Hz.
const TickHz = 100

// Ticks counts timer interrupts since boot. Nanosleep's kernel-tracked
// wake time compares against this rather than a wall clock, since the
// only notion of time this kernel has is its own tick count.
var ticksMu sync.Mutex
var ticks uint64

// Now returns the current tick count.
func Now() uint64 {
	ticksMu.Lock()
	defer ticksMu.Unlock()
	return ticks
}

// OnTick is called from the supervisor timer interrupt handler once per
// 100Hz tick; it forces a reschedule so no process holds the hart past
// its slice.
func OnTick() {
	ticksMu.Lock()
	ticks++
	ticksMu.Unlock()
	Schedule(true)
}

// IdleLoop is PID 0's body. It never returns and is
// never itself enqueued on the ready list.
func IdleLoop() {
	for {
		archrv64.IntrOn()
		archrv64.Wfi()
		T.Lock()
		nonempty := T.readyHd != badSlot
		T.Unlock()
		if nonempty {
			Yield()
		}
	}
}
