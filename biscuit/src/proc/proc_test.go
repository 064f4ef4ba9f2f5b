package proc

import (
	"testing"

	"defs"
)

// Schedule, SleepOn, Yield, OnTick, and IdleLoop all eventually call into
// package archrv64's assembly (SetSatp, ContextSwitch, IntrOff/IntrOn,
// Wfi), which only runs on real riscv64 supervisor-mode hardware. These
// tests exercise everything around the scheduler -- the process table,
// the ready queue, and wait queues -- without crossing into that
// assembly boundary.

func TestInitReservesIdleAtPidZero(t *testing.T) {
	Init()
	idle := &T.slots[T.idle]
	if idle.Pid != defs.IdlePid {
		t.Fatalf("idle.Pid = %d, want %d", idle.Pid, defs.IdlePid)
	}
	if idle.State != RUNNABLE {
		t.Fatalf("idle.State = %v, want RUNNABLE", idle.State)
	}
	if T.current != T.idle {
		t.Fatalf("T.current = %d, want idle slot %d", T.current, T.idle)
	}
}

func TestAllocLockedAssignsIncreasingPids(t *testing.T) {
	Init()
	T.Lock()
	p1 := T.allocLocked()
	p2 := T.allocLocked()
	T.Unlock()
	if p1 == nil || p2 == nil {
		t.Fatal("allocLocked returned nil with free slots available")
	}
	if p2.Pid <= p1.Pid {
		t.Fatalf("pids not increasing: %d then %d", p1.Pid, p2.Pid)
	}
	if p1.State != EMBRYO || p2.State != EMBRYO {
		t.Fatal("allocLocked did not set EMBRYO")
	}
}

func TestAllocLockedExhaustion(t *testing.T) {
	Init()
	T.Lock()
	n := 0
	for T.allocLocked() != nil {
		n++
		if n > len(T.slots)+1 {
			t.Fatal("allocLocked never exhausted the free list")
		}
	}
	T.Unlock()
}

func TestFreeLockedReturnsSlotToFreeList(t *testing.T) {
	Init()
	T.Lock()
	p := T.allocLocked()
	idx := p.idx
	T.freeLocked(p)
	got := T.allocLocked()
	T.Unlock()
	if got.idx != idx {
		t.Fatalf("freed slot %d was not reused, got slot %d instead", idx, got.idx)
	}
	if got.State != EMBRYO {
		t.Fatal("reused slot did not transition back to EMBRYO")
	}
}

func TestMakeRunnableEnqueuesInFIFOOrder(t *testing.T) {
	Init()
	T.Lock()
	p1 := T.allocLocked()
	p2 := T.allocLocked()
	T.Unlock()

	MakeRunnable(p1)
	MakeRunnable(p2)

	T.Lock()
	first := T.dequeueReadyLocked()
	second := T.dequeueReadyLocked()
	third := T.dequeueReadyLocked()
	T.Unlock()

	if first != p1 || second != p2 {
		t.Fatalf("ready queue order = %v, %v; want p1, p2", first, second)
	}
	if third != nil {
		t.Fatal("ready queue had a third entry")
	}
}

func TestDoubleEnqueuePanics(t *testing.T) {
	Init()
	T.Lock()
	p := T.allocLocked()
	T.Unlock()
	MakeRunnable(p)
	defer func() {
		if recover() == nil {
			t.Fatal("double enqueue did not panic")
		}
	}()
	T.Lock()
	defer T.Unlock()
	T.enqueueReadyLocked(p)
}

func TestWaitQueueWakeAll(t *testing.T) {
	Init()
	T.Lock()
	p1 := T.allocLocked()
	p2 := T.allocLocked()
	T.Unlock()

	var wq WaitQueue_t
	wq.hd = badSlot
	p1.State, p2.State = SLEEPING, SLEEPING

	T.Lock()
	wq.addLocked(p1)
	wq.addLocked(p2)
	T.Unlock()

	WakeAll(&wq)

	if p1.State != RUNNABLE || p2.State != RUNNABLE {
		t.Fatal("WakeAll did not mark both processes RUNNABLE")
	}
	if wq.hd != badSlot {
		t.Fatal("WakeAll did not drain the wait queue")
	}

	T.Lock()
	n := 0
	for T.dequeueReadyLocked() != nil {
		n++
	}
	T.Unlock()
	if n != 2 {
		t.Fatalf("ready queue got %d entries from WakeAll, want 2", n)
	}
}

func TestWakeupMatchesOnChannel(t *testing.T) {
	Init()
	T.Lock()
	p1 := T.allocLocked()
	p2 := T.allocLocked()
	T.Unlock()

	p1.State, p1.Channel = SLEEPING, 0x1000
	p2.State, p2.Channel = SLEEPING, 0x2000

	Wakeup(0x1000)

	if p1.State != RUNNABLE {
		t.Fatal("Wakeup did not wake the matching channel")
	}
	if p2.State != SLEEPING {
		t.Fatal("Wakeup woke a non-matching channel")
	}
}

func TestNowStartsAtZero(t *testing.T) {
	ticksMu.Lock()
	ticks = 0
	ticksMu.Unlock()
	if Now() != 0 {
		t.Fatalf("Now() = %d, want 0", Now())
	}
}
