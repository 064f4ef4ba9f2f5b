package scall

import (
	"testing"

	"defs"
	"fd"
	"fdops"
	"mem"
	"proc"
	"trapframe"
	"vfs"
	"vm"
)

// fakeFops is a hand-written fdops.Fdops_i: sysRead/sysWrite/sysClose/
// sysLseek/sysDup/sysDup3 only need something that moves bytes and reports
// success, not a full console or ramdisk implementation.
type fakeFops struct {
	buf    []byte
	off    int
	closed int
}

func (f *fakeFops) Close() defs.Err_t { f.closed++; return 0 }
func (f *fakeFops) Fstat(st fdops.Stat_i) defs.Err_t { return 0 }
func (f *fakeFops) Lseek(off int, whence int) (int, defs.Err_t) {
	f.off = off
	return f.off, 0
}
func (f *fakeFops) Mmapi(o, l int, h bool) ([]fdops.MmapInfo_t, defs.Err_t) {
	return nil, -defs.ENODEV
}
func (f *fakeFops) Pathi() interface{} { return nil }
func (f *fakeFops) Reopen() defs.Err_t { return 0 }
func (f *fakeFops) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	n, err := dst.Uiowrite(f.buf[f.off:])
	f.off += n
	return n, err
}
func (f *fakeFops) Write(src fdops.Userio_i) (int, defs.Err_t) {
	tmp := make([]byte, src.Remain())
	n, err := src.Uioread(tmp)
	if err != 0 {
		return 0, err
	}
	f.buf = append(f.buf[:f.off], tmp[:n]...)
	f.off += n
	return n, 0
}

func freshVm(t *testing.T) *vm.Vm_t {
	t.Helper()
	mem.Phys_init()
	root, ok := vm.New()
	if !ok {
		t.Fatal("vm.New failed")
	}
	return &vm.Vm_t{Pagetable: root}
}

func freshProc(t *testing.T) *proc.Proc_t {
	t.Helper()
	return &proc.Proc_t{
		Pid:  42,
		Ppid: 1,
		Vm:   freshVm(t),
		Ftbl: fd.MkFileTable(),
		Cwd:  fd.MkRootCwd(nil),
	}
}

func mkTf(a0, a1, a2 uintptr) *trapframe.TrapFrame_t {
	return &trapframe.TrapFrame_t{A0: a0, A1: a1, A2: a2}
}

func TestDispatchUnknownSyscallIsENOSYS(t *testing.T) {
	tf := &trapframe.TrapFrame_t{A7: 0xffff}
	Dispatch(&proc.Proc_t{}, tf)
	if int(tf.A0) != int(-defs.ENOSYS) {
		t.Fatalf("A0 = %d, want %d", int(tf.A0), int(-defs.ENOSYS))
	}
}

func TestSplitLast(t *testing.T) {
	cases := []struct{ in, dir, name string }{
		{"/a/b/c", "/a/b", "c"},
		{"/c", "/", "c"},
		{"c", ".", "c"},
	}
	for _, c := range cases {
		got := splitLast(c.in)
		if got.dir != c.dir || got.name != c.name {
			t.Fatalf("splitLast(%q) = %q, %q; want %q, %q", c.in, got.dir, got.name, c.dir, c.name)
		}
	}
}

func TestMarshalDirent(t *testing.T) {
	rec := marshalDirent(fd.Dirent_t{Type: 7, Name: "hi"}, 0)
	// 19-byte header (d_ino 0, d_off 0, d_reclen, d_type), then "hi\x00",
	// padded to a multiple of 8: 24 bytes in all.
	want := make([]byte, 24)
	want[16] = 24 // d_reclen, little-endian
	want[18] = 7  // d_type
	copy(want[19:], "hi")
	if len(rec) != len(want) {
		t.Fatalf("marshalDirent len = %d, want %d", len(rec), len(want))
	}
	for i := range want {
		if rec[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, rec[i], want[i])
		}
	}
}

func TestBindDeviceUnknownMinorIsNil(t *testing.T) {
	if bindDevice(999) != nil {
		t.Fatal("bindDevice(unknown minor) returned non-nil")
	}
}

func TestBindDeviceUsesRegisteredConstructors(t *testing.T) {
	called := false
	RegisterDeviceBindings(
		func() fdops.Fdops_i { called = true; return &fakeFops{} },
		func() fdops.Fdops_i { return &fakeFops{} },
	)
	defer RegisterDeviceBindings(nil, nil)

	if bindDevice(vfs.DevConsole) == nil {
		t.Fatal("bindDevice(DevConsole) returned nil with bindings registered")
	}
	if !called {
		t.Fatal("bindDevice(DevConsole) did not invoke the registered console constructor")
	}
	if bindDevice(vfs.DevRamdisk) == nil {
		t.Fatal("bindDevice(DevRamdisk) returned nil with bindings registered")
	}
}

func TestSysGetpidGetppid(t *testing.T) {
	p := &proc.Proc_t{Pid: 7, Ppid: 3}
	if got := sysGetpid(p, nil); got != 7 {
		t.Fatalf("sysGetpid = %d, want 7", got)
	}
	if got := sysGetppid(p, nil); got != 3 {
		t.Fatalf("sysGetppid = %d, want 3", got)
	}
}

func TestSysZeroAndKill(t *testing.T) {
	if got := sysZero(nil, nil); got != 0 {
		t.Fatalf("sysZero = %d, want 0", got)
	}
	if got := sysKill(nil, nil); got != int(-defs.ESRCH) {
		t.Fatalf("sysKill = %d, want -ESRCH", got)
	}
}

func TestSysCloseRejectsStandardStreams(t *testing.T) {
	p := freshProc(t)
	tf := mkTf(0, 0, 0)
	if got := sysClose(p, tf); got != int(-defs.EBUSY) {
		t.Fatalf("sysClose(0) = %d, want -EBUSY", got)
	}
}

func TestSysDupAndClose(t *testing.T) {
	p := freshProc(t)
	ff := &fakeFops{}
	n, err := p.Ftbl.Alloc_fd(&fd.Fd_t{Fops: ff})
	if err != 0 {
		t.Fatalf("setup Alloc_fd failed: %d", err)
	}

	dupTf := mkTf(uintptr(n), 0, 0)
	newfd := sysDup(p, dupTf)
	if newfd < 0 {
		t.Fatalf("sysDup failed: %d", newfd)
	}
	if newfd == n {
		t.Fatal("sysDup returned the same descriptor number")
	}

	closeTf := mkTf(uintptr(newfd), 0, 0)
	if got := sysClose(p, closeTf); got != 0 {
		t.Fatalf("sysClose(newfd) = %d, want 0", got)
	}
}

func TestSysDup3RejectsSameFd(t *testing.T) {
	p := freshProc(t)
	n, _ := p.Ftbl.Alloc_fd(&fd.Fd_t{Fops: &fakeFops{}})
	tf := mkTf(uintptr(n), uintptr(n), 0)
	if got := sysDup3(p, tf); got != int(-defs.EINVAL) {
		t.Fatalf("sysDup3(n, n) = %d, want -EINVAL", got)
	}
}

func TestSysLseekUnknownFdIsEBADF(t *testing.T) {
	p := freshProc(t)
	tf := mkTf(99, 0, uintptr(defs.SEEK_SET))
	if got := sysLseek(p, tf); got != int(-defs.EBADF) {
		t.Fatalf("sysLseek(unbound) = %d, want -EBADF", got)
	}
}

func TestSysWriteThenReadRoundtrip(t *testing.T) {
	p := freshProc(t)
	ff := &fakeFops{}
	n, err := p.Ftbl.Alloc_fd(&fd.Fd_t{Fops: ff, Perms: fd.FD_READ | fd.FD_WRITE})
	if err != 0 {
		t.Fatalf("Alloc_fd failed: %d", err)
	}

	const uva = 0x2000
	const size = mem.PGSIZE
	if err := p.Vm.Vmadd_anon(uva, size, vm.PTE_R|vm.PTE_W|vm.PTE_U); err != 0 {
		t.Fatalf("Vmadd_anon failed: %d", err)
	}
	msg := []byte("hello from userspace")
	if err := p.Vm.K2user(msg, uva); err != 0 {
		t.Fatalf("K2user failed: %d", err)
	}

	writeTf := mkTf(uintptr(n), uintptr(uva), uintptr(len(msg)))
	wn := sysWrite(p, writeTf)
	if wn != len(msg) {
		t.Fatalf("sysWrite = %d, want %d", wn, len(msg))
	}
	if string(ff.buf) != string(msg) {
		t.Fatalf("fakeFops.buf = %q, want %q", ff.buf, msg)
	}

	ff.off = 0
	const readUva = 0x3000
	if err := p.Vm.Vmadd_anon(readUva, size, vm.PTE_R|vm.PTE_W|vm.PTE_U); err != 0 {
		t.Fatalf("Vmadd_anon failed: %d", err)
	}
	readTf := mkTf(uintptr(n), uintptr(readUva), uintptr(len(msg)))
	rn := sysRead(p, readTf)
	if rn != len(msg) {
		t.Fatalf("sysRead = %d, want %d", rn, len(msg))
	}
	got, err := p.Vm.Userdmap8r(readUva)
	if err != 0 {
		t.Fatalf("Userdmap8r failed: %d", err)
	}
	if string(got[:len(msg)]) != string(msg) {
		t.Fatalf("read-back data = %q, want %q", got[:len(msg)], msg)
	}
}

func TestSysTime(t *testing.T) {
	got := sysTime(nil, nil)
	if got < 0 {
		t.Fatalf("sysTime = %d, want >= 0", got)
	}
}
