package fd

import (
	"testing"

	"defs"
	"fdops"
	"limits"
)

// fakeFops is a hand-written Fdops_i stand-in: it tracks how many times
// Close and Reopen were called rather than doing real I/O, which is all
// these tests need to check FileTable_t's bookkeeping.
type fakeFops struct {
	closed    int
	reopened  int
	reopenErr defs.Err_t
}

func (f *fakeFops) Close() defs.Err_t {
	f.closed++
	return 0
}
func (f *fakeFops) Fstat(st fdops.Stat_i) defs.Err_t                  { return 0 }
func (f *fakeFops) Lseek(off int, whence int) (int, defs.Err_t)       { return off, 0 }
func (f *fakeFops) Mmapi(off, l int, h bool) ([]fdops.MmapInfo_t, defs.Err_t) {
	return nil, -defs.ENODEV
}
func (f *fakeFops) Pathi() interface{} { return nil }
func (f *fakeFops) Read(dst fdops.Userio_i) (int, defs.Err_t)  { return 0, 0 }
func (f *fakeFops) Write(src fdops.Userio_i) (int, defs.Err_t) { return 0, 0 }
func (f *fakeFops) Reopen() defs.Err_t {
	f.reopened++
	return f.reopenErr
}

func withFilesLimit(t *testing.T, n int64) func() {
	t.Helper()
	orig := limits.Syslimit.Files
	limits.Syslimit.Files = limits.Sysatomic_t(n)
	return func() { limits.Syslimit.Files = orig }
}

func newFd() *Fd_t {
	return &Fd_t{Fops: &fakeFops{}}
}

func TestAllocFdLowestFreeSlot(t *testing.T) {
	defer withFilesLimit(t, 1000)()
	ft := MkFileTable()

	n1, err := ft.Alloc_fd(newFd())
	if err != 0 || n1 != FirstUserFd {
		t.Fatalf("first Alloc_fd = %d, %d, want %d, 0", n1, err, FirstUserFd)
	}
	n2, err := ft.Alloc_fd(newFd())
	if err != 0 || n2 != FirstUserFd+1 {
		t.Fatalf("second Alloc_fd = %d, %d, want %d, 0", n2, err, FirstUserFd+1)
	}

	ft.Close_fd(n1)
	n3, err := ft.Alloc_fd(newFd())
	if err != 0 || n3 != n1 {
		t.Fatalf("Alloc_fd after close = %d, %d, want reused slot %d", n3, err, n1)
	}
}

func TestAllocFdExhaustionIsENFILE(t *testing.T) {
	defer withFilesLimit(t, 0)()
	ft := MkFileTable()
	if _, err := ft.Alloc_fd(newFd()); err != -defs.ENFILE {
		t.Fatalf("Alloc_fd at limit err = %d, want ENFILE", err)
	}
}

func TestCloseFdRejectsStandardStreams(t *testing.T) {
	defer withFilesLimit(t, 1000)()
	ft := MkFileTable()
	for n := 0; n < FirstUserFd; n++ {
		if err := ft.Close_fd(n); err != -defs.EBUSY {
			t.Fatalf("Close_fd(%d) err = %d, want EBUSY", n, err)
		}
	}
}

func TestCloseFdUnknownIsEBADF(t *testing.T) {
	defer withFilesLimit(t, 1000)()
	ft := MkFileTable()
	if err := ft.Close_fd(FirstUserFd); err != -defs.EBADF {
		t.Fatalf("Close_fd on an unbound slot err = %d, want EBADF", err)
	}
}

func TestCloseFdInvokesFopsClose(t *testing.T) {
	defer withFilesLimit(t, 1000)()
	ft := MkFileTable()
	ff := &fakeFops{}
	n, _ := ft.Alloc_fd(&Fd_t{Fops: ff})
	if err := ft.Close_fd(n); err != 0 {
		t.Fatalf("Close_fd failed: %d", err)
	}
	if ff.closed != 1 {
		t.Fatalf("Fops.Close called %d times, want 1", ff.closed)
	}
}

func TestDup3SameFdIsNoop(t *testing.T) {
	defer withFilesLimit(t, 1000)()
	ft := MkFileTable()
	n, _ := ft.Alloc_fd(newFd())
	if err := ft.Dup3(n, n, false); err != 0 {
		t.Fatalf("Dup3(n, n) err = %d, want 0", err)
	}
}

func TestDup3ClosesPriorOccupant(t *testing.T) {
	defer withFilesLimit(t, 1000)()
	ft := MkFileTable()
	srcN, _ := ft.Alloc_fd(newFd())
	oldFf := &fakeFops{}
	dstN, _ := ft.Alloc_fd(&Fd_t{Fops: oldFf})

	if err := ft.Dup3(srcN, dstN, false); err != 0 {
		t.Fatalf("Dup3 failed: %d", err)
	}
	if oldFf.closed != 1 {
		t.Fatalf("old occupant closed %d times, want 1", oldFf.closed)
	}
	if ft.Getfd(dstN).Fops.(*fakeFops) == oldFf {
		t.Fatal("newfd still points at the old fops after Dup3")
	}
}

func TestDup3SetsCloexec(t *testing.T) {
	defer withFilesLimit(t, 1000)()
	ft := MkFileTable()
	srcN, _ := ft.Alloc_fd(newFd())
	dstN := srcN + 1
	if err := ft.Dup3(srcN, dstN, true); err != 0 {
		t.Fatalf("Dup3 failed: %d", err)
	}
	if ft.Getfd(dstN).Perms&FD_CLOEXEC == 0 {
		t.Fatal("Dup3 with cloexec=true did not set FD_CLOEXEC")
	}
}

func TestDup3ExhaustionIsENFILE(t *testing.T) {
	defer withFilesLimit(t, 1)()
	ft := MkFileTable()
	srcN, err := ft.Alloc_fd(newFd())
	if err != 0 {
		t.Fatalf("setup Alloc_fd failed: %d", err)
	}
	if err := ft.Dup3(srcN, srcN+1, false); err != -defs.ENFILE {
		t.Fatalf("Dup3 at the limit err = %d, want ENFILE", err)
	}
}

func TestCopyDuplicatesEveryDescriptor(t *testing.T) {
	defer withFilesLimit(t, 1000)()
	ft := MkFileTable()
	ff1, ff2 := &fakeFops{}, &fakeFops{}
	n1, _ := ft.Alloc_fd(&Fd_t{Fops: ff1})
	n2, _ := ft.Alloc_fd(&Fd_t{Fops: ff2})

	nt, err := ft.Copy()
	if err != 0 {
		t.Fatalf("Copy failed: %d", err)
	}
	if nt.Getfd(n1) == nil || nt.Getfd(n2) == nil {
		t.Fatal("Copy dropped a descriptor")
	}
	if ff1.reopened != 1 || ff2.reopened != 1 {
		t.Fatalf("Reopen called ff1=%d ff2=%d, want 1 each", ff1.reopened, ff2.reopened)
	}
}

func TestCopyRollsBackOnExhaustion(t *testing.T) {
	restore := withFilesLimit(t, 1000)
	ft := MkFileTable()
	ff1, ff2 := &fakeFops{}, &fakeFops{}
	ft.Alloc_fd(&Fd_t{Fops: ff1})
	ft.Alloc_fd(&Fd_t{Fops: ff2})
	restore()

	// Enough budget for exactly one of the two descriptors Copy is about
	// to duplicate: the first Take succeeds, the second fails, and Copy
	// must give back and close the one it already copied rather than
	// leaking it.
	defer withFilesLimit(t, 1)()

	if _, err := ft.Copy(); err != -defs.ENFILE {
		t.Fatalf("Copy past the limit err = %d, want ENFILE", err)
	}
	if int64(limits.Syslimit.Files) != 1 {
		t.Fatalf("Files limit after failed Copy = %d, want 1 (fully rolled back)", limits.Syslimit.Files)
	}
	if ff1.closed != 1 {
		t.Fatalf("the descriptor Copy had already duplicated was not rolled back: ff1.closed=%d", ff1.closed)
	}
	if ff2.closed != 0 {
		t.Fatalf("the descriptor Copy never reached was closed anyway: ff2.closed=%d", ff2.closed)
	}
}

func TestCloseCloexecOnlyClosesMarked(t *testing.T) {
	defer withFilesLimit(t, 1000)()
	ft := MkFileTable()
	keepFf, dropFf := &fakeFops{}, &fakeFops{}
	keepN, _ := ft.Alloc_fd(&Fd_t{Fops: keepFf})
	dropN, _ := ft.Alloc_fd(&Fd_t{Fops: dropFf, Perms: FD_CLOEXEC})

	ft.CloseCloexec()

	if dropFf.closed != 1 {
		t.Fatalf("cloexec descriptor closed %d times, want 1", dropFf.closed)
	}
	if keepFf.closed != 0 {
		t.Fatal("non-cloexec descriptor was closed")
	}
	if ft.Getfd(dropN) != nil {
		t.Fatal("cloexec descriptor still bound after CloseCloexec")
	}
	if ft.Getfd(keepN) == nil {
		t.Fatal("non-cloexec descriptor was unbound")
	}
}

func TestCloseAllClosesEverything(t *testing.T) {
	defer withFilesLimit(t, 1000)()
	ft := MkFileTable()
	ffs := []*fakeFops{{}, {}, {}}
	for _, ff := range ffs {
		ft.Alloc_fd(&Fd_t{Fops: ff})
	}
	ft.CloseAll()
	for i, ff := range ffs {
		if ff.closed != 1 {
			t.Fatalf("descriptor %d closed %d times, want 1", i, ff.closed)
		}
	}
}
