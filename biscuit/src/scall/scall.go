// Package scall is the system-call dispatcher: a fixed table keyed by
// syscall number, exactly the shape Biscuit's own syscall.go uses,
// renamed from "syscall" to avoid colliding with the Go standard
// library package of that name under module-mode import resolution.
package scall

import (
	"defs"
	"fd"
	"fdops"
	"mem"
	"proc"
	"stat"
	"trapframe"
	"ustr"
	"util"
	"vfs"
	"vm"
)

// Dispatch is called from archrv64's trap handler on a syscall-from-user
// trap (scause == ScauseEcallFromUmode). It reads the call number and up
// to six arguments from tf per the riscv64 syscall ABI, runs the matching
// handler, and writes the result back into tf.A0.
func Dispatch(p *proc.Proc_t, tf *trapframe.TrapFrame_t) {
	tf.AdvancePastEcall()
	h, ok := table[tf.Syscallno()]
	if !ok {
		tf.SetReturn(int(-defs.ENOSYS))
		return
	}
	ret := h(p, tf)
	tf.SetReturn(ret)
}

type handler func(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int

var table = map[int]handler{
	defs.SYS_READ:         sysRead,
	defs.SYS_WRITE:        sysWrite,
	defs.SYS_CLOSE:        sysClose,
	defs.SYS_LSEEK:        sysLseek,
	defs.SYS_DUP:          sysDup,
	defs.SYS_DUP3:         sysDup3,
	defs.SYS_OPENAT:       sysOpenat,
	defs.SYS_MKDIRAT:      sysMkdirat,
	defs.SYS_UNLINKAT:     sysUnlinkat,
	defs.SYS_FSTAT:        sysFstat,
	defs.SYS_FSTATAT:      sysFstatat,
	defs.SYS_GETCWD:       sysGetcwd,
	defs.SYS_CHDIR:        sysChdir,
	defs.SYS_GETDENTS64:   sysGetdents64,
	defs.SYS_EXIT:         sysExit,
	defs.SYS_GETPID:       sysGetpid,
	defs.SYS_GETPPID:      sysGetppid,
	defs.SYS_GETUID:       sysZero,
	defs.SYS_GETEUID:      sysZero,
	defs.SYS_GETGID:       sysZero,
	defs.SYS_GETEGID:      sysZero,
	defs.SYS_SETUID:       sysZero,
	defs.SYS_SETGID:       sysZero,
	defs.SYS_SCHEDYIELD:   sysSchedYield,
	defs.SYS_NANOSLEEP:    sysNanosleep,
	defs.SYS_CLOCKGETTIME: sysClockGettime,
	defs.SYS_BRK:          sysBrk,
	defs.SYS_CLONE:        sysClone,
	defs.SYS_EXECVE:       sysExecve,
	defs.SYS_WAIT4:        sysWait4,
	defs.SYS_KILL:         sysKill,
	defs.SYS_RTSIGACTION:  sysRtSigaction,
	defs.SYS_TIME:         sysTime,
}

func sysZero(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int { return 0 }

func sysRead(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	fdn, uva, sz := int(tf.Arg(0)), int(tf.Arg(1)), int(tf.Arg(2))
	f := p.Ftbl.Getfd(fdn)
	if f == nil {
		return int(-defs.EBADF)
	}
	ub := p.Vm.Mkuserbuf(uva, sz)
	n, err := f.Fops.Read(ub)
	if err != 0 {
		return int(err)
	}
	return n
}

func sysWrite(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	fdn, uva, sz := int(tf.Arg(0)), int(tf.Arg(1)), int(tf.Arg(2))
	f := p.Ftbl.Getfd(fdn)
	if f == nil {
		return int(-defs.EBADF)
	}
	ub := p.Vm.Mkuserbuf(uva, sz)
	n, err := f.Fops.Write(ub)
	if err != 0 {
		return int(err)
	}
	return n
}

func sysClose(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	return int(p.Ftbl.Close_fd(int(tf.Arg(0))))
}

func sysLseek(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	f := p.Ftbl.Getfd(int(tf.Arg(0)))
	if f == nil {
		return int(-defs.EBADF)
	}
	n, err := f.Fops.Lseek(int(tf.Arg(1)), int(tf.Arg(2)))
	if err != 0 {
		return int(err)
	}
	return n
}

func sysDup(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	oldfd := int(tf.Arg(0))
	src := p.Ftbl.Getfd(oldfd)
	if src == nil {
		return int(-defs.EBADF)
	}
	nfd, err := fd.Copyfd(src)
	if err != 0 {
		return int(err)
	}
	n, err := p.Ftbl.Alloc_fd(nfd)
	if err != 0 {
		return int(err)
	}
	return n
}

func sysDup3(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	oldfd, newfd, flags := int(tf.Arg(0)), int(tf.Arg(1)), int(tf.Arg(2))
	if oldfd == newfd {
		return int(-defs.EINVAL)
	}
	return int(p.Ftbl.Dup3(oldfd, newfd, flags&defs.O_CLOEXEC != 0))
}

// bindDevice returns the Fdops_i for a device VNode_t's minor number.
func bindDevice(minor int) fdops.Fdops_i {
	switch minor {
	case vfs.DevConsole, vfs.DevTty:
		return consoleFdops()
	case vfs.DevNull:
		return fd.NewNullFile()
	case vfs.DevRamdisk:
		return ramdiskFdops()
	default:
		return nil
	}
}

// consoleFdops and ramdiskFdops are package vars installed by kernel.Kmain
// once the real console/ramdisk devices exist, so scall itself imports
// neither package console nor package ramdisk.
var consoleFdops func() fdops.Fdops_i
var ramdiskFdops func() fdops.Fdops_i

// RegisterDeviceBindings wires the real device constructors in; called
// once during boot after console.Init/ramdisk are ready.
func RegisterDeviceBindings(console, ramdisk func() fdops.Fdops_i) {
	consoleFdops = console
	ramdiskFdops = ramdisk
}

func sysOpenat(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	dirfd, uva, flags := int(tf.Arg(0)), int(tf.Arg(1)), int(tf.Arg(2))
	path, err := p.Vm.Userstr(uva, 256)
	if err != 0 {
		return int(err)
	}

	cwd := p.Cwd.Dir
	if dirfd != defs.AT_FDCWD {
		dfd := p.Ftbl.Getfd(dirfd)
		if dfd == nil {
			return int(-defs.EBADF)
		}
		if vn, ok := dfd.Fops.Pathi().(*vfs.VNode_t); ok {
			cwd = vn
		}
	}

	node, rerr := vfs.Resolve(cwd, path)
	if rerr != 0 {
		if rerr != -defs.ENOENT || flags&defs.O_CREAT == 0 {
			return int(rerr)
		}
		parts := splitLast(path.String())
		parent, perr := vfs.Resolve(cwd, ustr.Ustr(parts.dir))
		if perr != 0 {
			return int(perr)
		}
		n, cerr := vfs.CreateFile(parent, parts.name)
		if cerr != 0 {
			return int(cerr)
		}
		node = n
	}

	var ops fdops.Fdops_i
	switch node.Type {
	case vfs.FileType:
		ops = fd.NewMemFile(node)
	case vfs.DirType:
		if flags&(defs.O_WRONLY|defs.O_RDWR) != 0 {
			return int(-defs.EISDIR)
		}
		ops = fd.NewDirFile(node)
	case vfs.DeviceType:
		ops = bindDevice(node.DevMinor)
	}
	if ops == nil {
		return int(-defs.ENODEV)
	}

	perms := fd.FD_READ
	if flags&defs.O_WRONLY != 0 || flags&defs.O_RDWR != 0 {
		perms |= fd.FD_WRITE
	}
	if flags&defs.O_CLOEXEC != 0 {
		perms |= fd.FD_CLOEXEC
	}
	n, aerr := p.Ftbl.Alloc_fd(&fd.Fd_t{Fops: ops, Perms: perms})
	if aerr != 0 {
		return int(aerr)
	}
	return n
}

func splitLast(s string) struct{ dir, name string } {
	i := len(s) - 1
	for i >= 0 && s[i] != '/' {
		i--
	}
	if i < 0 {
		return struct{ dir, name string }{".", s}
	}
	if i == 0 {
		return struct{ dir, name string }{"/", s[1:]}
	}
	return struct{ dir, name string }{s[:i], s[i+1:]}
}

func sysMkdirat(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	uva := int(tf.Arg(1))
	path, err := p.Vm.Userstr(uva, 256)
	if err != 0 {
		return int(err)
	}
	parts := splitLast(path.String())
	parent, perr := vfs.Resolve(p.Cwd.Dir, ustr.Ustr(parts.dir))
	if perr != 0 {
		return int(perr)
	}
	_, cerr := vfs.CreateDirectory(parent, parts.name)
	return int(cerr)
}

func sysUnlinkat(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	uva := int(tf.Arg(1))
	path, err := p.Vm.Userstr(uva, 256)
	if err != 0 {
		return int(err)
	}
	return int(vfs.Unlink(p.Cwd.Dir, path))
}

func sysFstat(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	f := p.Ftbl.Getfd(int(tf.Arg(0)))
	if f == nil {
		return int(-defs.EBADF)
	}
	uva := int(tf.Arg(1))
	var st stat.Stat_t
	if err := f.Fops.Fstat(&st); err != 0 {
		return int(err)
	}
	if err := p.Vm.K2user(st.Bytes(), uva); err != 0 {
		return int(err)
	}
	return 0
}

// sysFstatat is sysFstat against a resolved path instead of an open fd,
// reusing sysOpenat's dirfd/AT_FDCWD resolution and the same
// type-to-Fdops_i dispatch so Fstat runs against a fresh, throwaway
// descriptor over the resolved VNode_t.
func sysFstatat(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	dirfd, pathva, uva := int(tf.Arg(0)), int(tf.Arg(1)), int(tf.Arg(2))
	path, err := p.Vm.Userstr(pathva, 256)
	if err != 0 {
		return int(err)
	}

	cwd := p.Cwd.Dir
	if dirfd != defs.AT_FDCWD {
		dfd := p.Ftbl.Getfd(dirfd)
		if dfd == nil {
			return int(-defs.EBADF)
		}
		if vn, ok := dfd.Fops.Pathi().(*vfs.VNode_t); ok {
			cwd = vn
		}
	}

	node, rerr := vfs.Resolve(cwd, path)
	if rerr != 0 {
		return int(rerr)
	}

	var ops fdops.Fdops_i
	switch node.Type {
	case vfs.FileType:
		ops = fd.NewMemFile(node)
	case vfs.DirType:
		ops = fd.NewDirFile(node)
	case vfs.DeviceType:
		ops = bindDevice(node.DevMinor)
	}
	if ops == nil {
		return int(-defs.ENODEV)
	}
	defer ops.Close()

	var st stat.Stat_t
	if err := ops.Fstat(&st); err != 0 {
		return int(err)
	}
	if err := p.Vm.K2user(st.Bytes(), uva); err != 0 {
		return int(err)
	}
	return 0
}

func sysGetcwd(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	uva, sz := int(tf.Arg(0)), int(tf.Arg(1))
	s := p.Cwd.Path.String() + "\x00"
	if len(s) > sz {
		return int(-defs.ERANGE)
	}
	if err := p.Vm.K2user([]byte(s), uva); err != 0 {
		return int(err)
	}
	return len(s)
}

func sysChdir(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	uva := int(tf.Arg(0))
	path, err := p.Vm.Userstr(uva, 256)
	if err != 0 {
		return int(err)
	}
	node, rerr := vfs.Resolve(p.Cwd.Dir, path)
	if rerr != 0 {
		return int(rerr)
	}
	if node.Type != vfs.DirType {
		return int(-defs.ENOTDIR)
	}
	p.Cwd.Lock()
	p.Cwd.Dir = node
	p.Cwd.Path = p.Cwd.Canonicalpath(path)
	p.Cwd.Unlock()
	return 0
}

func sysGetdents64(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	fdn, uva, sz := int(tf.Arg(0)), int(tf.Arg(1)), int(tf.Arg(2))
	f := p.Ftbl.Getfd(fdn)
	if f == nil {
		return int(-defs.EBADF)
	}
	df, ok := f.Fops.(*fd.DirFile_t)
	if !ok {
		return int(-defs.ENOTDIR)
	}
	var buf []byte
	for {
		ent, more := df.ReadDirent()
		if !more {
			break
		}
		rec := marshalDirent(ent, int64(len(buf)))
		if len(buf)+len(rec) > sz {
			break
		}
		buf = append(buf, rec...)
	}
	if len(buf) == 0 {
		return 0
	}
	if err := p.Vm.K2user(buf, uva); err != 0 {
		return int(err)
	}
	return len(buf)
}

// dirent header layout: u64 d_ino, i64 d_off, u16 d_reclen, u8 d_type,
// immediately followed by the NUL-terminated name.
const direntHdrSz = 8 + 8 + 2 + 1

// marshalDirent encodes one entry in the getdents64 wire record a libc
// readdir expects: {u64 d_ino; i64 d_off; u16 d_reclen; u8 d_type; u8
// name[]}. d_reclen is rounded up to a multiple of 8 so every record
// after the first starts aligned and a reader can always find the next
// one by adding d_reclen to the current offset.
func marshalDirent(d fd.Dirent_t, off int64) []byte {
	reclen := util.Roundup(direntHdrSz+len(d.Name)+1, 8)
	rec := make([]byte, reclen)
	util.Writen(rec, 8, 0, int(d.Ino))
	util.Writen(rec, 8, 8, int(off))
	util.Writen(rec, 2, 16, reclen)
	rec[18] = byte(d.Type)
	copy(rec[19:], d.Name)
	return rec
}

func sysExit(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	p.Ftbl.CloseAll()
	proc.Exit(p, int(tf.Arg(0)))
	return 0
}

func sysGetpid(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int  { return int(p.Pid) }
func sysGetppid(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int { return int(p.Ppid) }

func sysSchedYield(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	proc.Yield()
	return 0
}

func sysNanosleep(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	d, _, err := p.Vm.Usertimespec(int(tf.Arg(0)))
	if err != 0 {
		return int(err)
	}
	proc.Nanosleep(d)
	return 0
}

// sysClockGettime writes a {tv_sec, tv_nsec} pair derived from proc.Now's
// tick count to user memory, ignoring which clockid was asked for: this
// kernel has exactly one clock, ticking at proc.TickHz since boot.
func sysClockGettime(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	uva := int(tf.Arg(1))
	ticks := proc.Now()
	secs := int(ticks / proc.TickHz)
	nsecs := int(ticks%proc.TickHz) * (1000000000 / proc.TickHz)
	if err := p.Vm.Userwriten(uva, 8, secs); err != 0 {
		return int(err)
	}
	if err := p.Vm.Userwriten(uva+8, 8, nsecs); err != 0 {
		return int(err)
	}
	return 0
}

// sysBrk grows the heap in whole pages, eagerly mapped: this kernel has
// no demand-paging model, so brk has no lazy path to take. p.HeapEnd is
// always kept page-aligned so each grow's Vmadd_anon call starts on a
// page boundary.
func sysBrk(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	newbrk := int(tf.Arg(0))
	if newbrk == 0 {
		return p.HeapEnd
	}
	if newbrk < p.HeapStart {
		return p.HeapEnd
	}
	if newbrk > p.HeapEnd {
		grow := (newbrk - p.HeapEnd + mem.PGSIZE - 1) &^ (mem.PGSIZE - 1)
		if err := p.Vm.Vmadd_anon(p.HeapEnd, grow, vm.PTE_R|vm.PTE_W); err != 0 {
			return p.HeapEnd
		}
		p.HeapEnd += grow
	}
	return p.HeapEnd
}

func sysClone(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	pid, err := proc.Fork(p, tf)
	if err != 0 {
		return int(err)
	}
	return int(pid)
}

// sysExecve loads a named file's bytes as a flat image and hands them to
// proc.Exec. argv is a NULL-terminated array of user
// pointers, in the usual execve ABI; envp is accepted in the register
// convention but ignored, matching proc.Exec's argv-only signature (an
// environment block is not part of this port's process model).
func sysExecve(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	pathva, argvva := int(tf.Arg(0)), int(tf.Arg(1))
	path, err := p.Vm.Userstr(pathva, 256)
	if err != 0 {
		return int(err)
	}
	node, rerr := vfs.Resolve(p.Cwd.Dir, path)
	if rerr != 0 {
		return int(rerr)
	}
	if node.Type != vfs.FileType {
		return int(-defs.EINVAL)
	}

	var argv []string
	for i := 0; ; i++ {
		ptr, err := p.Vm.Userreadn(argvva+i*8, 8)
		if err != 0 {
			return int(err)
		}
		if ptr == 0 {
			break
		}
		s, err := p.Vm.Userstr(ptr, 4096)
		if err != 0 {
			return int(err)
		}
		argv = append(argv, s.String())
	}
	if len(argv) == 0 {
		argv = []string{path.String()}
	}

	if eerr := proc.Exec(p, node.Data, proc.UserTextBase, argv); eerr != 0 {
		return int(eerr)
	}
	return 0
}

func sysWait4(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	pid, code, err := proc.Wait4(p)
	if err != 0 {
		return int(err)
	}
	uva := int(tf.Arg(1))
	if uva != 0 {
		p.Vm.Userwriten(uva, 4, code)
	}
	return int(pid)
}

func sysKill(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	return int(-defs.ESRCH) // no cross-process signal delivery in this port
}

// sysRtSigaction accepts any handler registration and silently ignores
// it: there is no signal delivery to reach the handler. Accepting rather
// than rejecting the call matches what Biscuit's init process expects on
// boot, which installs handlers a real signal stack would need but Claudia
// never drives.
func sysRtSigaction(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	return 0
}

func sysTime(p *proc.Proc_t, tf *trapframe.TrapFrame_t) int {
	return int(proc.Now() / proc.TickHz)
}
