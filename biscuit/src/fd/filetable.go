package fd

import "sync"

import "defs"
import "limits"

/// FirstUserFd is the lowest descriptor number alloc_fd ever hands out;
/// slots 0, 1, and 2 are reserved for stdin/stdout/stderr and bound to the
/// console at process creation, never recycled by alloc_fd.
const FirstUserFd = 3

/// FileTable_t is a process's open-file-descriptor table: a slice of slots
/// that grows on demand, each either empty or holding one open Fd_t, guarded by a mutex
/// since dup/dup2/close/fork all mutate it from syscall context.
type FileTable_t struct {
	sync.Mutex
	tbl []*Fd_t
}

/// MkFileTable allocates an empty file table sized for at least
/// FirstUserFd reserved slots.
func MkFileTable() *FileTable_t {
	return &FileTable_t{tbl: make([]*Fd_t, FirstUserFd)}
}

/// SetStdfd binds one of the three reserved descriptor numbers (0, 1, 2)
/// directly, bypassing alloc_fd's lowest-free-slot search -- used once at
/// process creation to wire stdin/stdout/stderr to the console.
func (ft *FileTable_t) SetStdfd(n int, nfd *Fd_t) {
	limits.Syslimit.Files.Take()
	ft.Lock()
	defer ft.Unlock()
	ft.tbl[n] = nfd
}

/// Alloc_fd installs nfd in the lowest free slot at or above FirstUserFd
/// and returns that descriptor number. When every slot is taken the table
/// grows by one slot, so there is no per-process descriptor cap and EMFILE
/// is never returned; the only failure is -defs.ENFILE once the
/// system-wide limits.Syslimit.Files budget is exhausted.
func (ft *FileTable_t) Alloc_fd(nfd *Fd_t) (int, defs.Err_t) {
	if !limits.Syslimit.Files.Take() {
		return 0, -defs.ENFILE
	}
	ft.Lock()
	defer ft.Unlock()
	for i := FirstUserFd; i < len(ft.tbl); i++ {
		if ft.tbl[i] == nil {
			ft.tbl[i] = nfd
			return i, 0
		}
	}
	ft.tbl = append(ft.tbl, nfd)
	return len(ft.tbl) - 1, 0
}

/// Getfd returns the Fd_t bound to n, or nil if n is unbound or
/// out-of-range.
func (ft *FileTable_t) Getfd(n int) *Fd_t {
	ft.Lock()
	defer ft.Unlock()
	if n < 0 || n >= len(ft.tbl) {
		return nil
	}
	return ft.tbl[n]
}

/// Close_fd closes and unbinds descriptor n. Closing 0, 1, or 2 is
/// rejected with EBUSY: a process's standard streams are not meant to be
/// torn down out from under it.
func (ft *FileTable_t) Close_fd(n int) defs.Err_t {
	if n >= 0 && n < FirstUserFd {
		return -defs.EBUSY
	}
	ft.Lock()
	if n < 0 || n >= len(ft.tbl) || ft.tbl[n] == nil {
		ft.Unlock()
		return -defs.EBADF
	}
	f := ft.tbl[n]
	ft.tbl[n] = nil
	ft.Unlock()
	limits.Syslimit.Files.Give()
	return f.Fops.Close()
}

/// Dup3 duplicates oldfd onto newfd (closing whatever newfd previously
/// held first), reopening the underlying file description so both
/// descriptors share state the way POSIX dup requires. With cloexec set
/// the new descriptor is marked FD_CLOEXEC, so exec closes it.
func (ft *FileTable_t) Dup3(oldfd, newfd int, cloexec bool) defs.Err_t {
	src := ft.Getfd(oldfd)
	if src == nil {
		return -defs.EBADF
	}
	if oldfd == newfd {
		return 0
	}
	if !limits.Syslimit.Files.Take() {
		return -defs.ENFILE
	}
	nfd, err := Copyfd(src)
	if err != 0 {
		limits.Syslimit.Files.Give()
		return err
	}
	if cloexec {
		nfd.Perms |= FD_CLOEXEC
	}

	ft.Lock()
	for newfd >= len(ft.tbl) {
		ft.tbl = append(ft.tbl, nil)
	}
	old := ft.tbl[newfd]
	ft.tbl[newfd] = nfd
	ft.Unlock()

	if old != nil {
		limits.Syslimit.Files.Give()
		old.Fops.Close()
	}
	return 0
}

/// Copy duplicates every open descriptor into a fresh table for a forked
/// child: the child's file table is a snapshot, each entry reopened.
/// Descriptors marked FD_CLOEXEC are still copied here -- exec is what
/// drops them, not fork.
func (ft *FileTable_t) Copy() (*FileTable_t, defs.Err_t) {
	ft.Lock()
	defer ft.Unlock()
	nt := &FileTable_t{tbl: make([]*Fd_t, len(ft.tbl))}
	for i, f := range ft.tbl {
		if f == nil {
			continue
		}
		if !limits.Syslimit.Files.Take() {
			for _, done := range nt.tbl {
				if done != nil {
					limits.Syslimit.Files.Give()
					done.Fops.Close()
				}
			}
			return nil, -defs.ENFILE
		}
		nf, err := Copyfd(f)
		if err != 0 {
			limits.Syslimit.Files.Give()
			for _, done := range nt.tbl {
				if done != nil {
					limits.Syslimit.Files.Give()
					done.Fops.Close()
				}
			}
			return nil, err
		}
		nt.tbl[i] = nf
	}
	return nt, 0
}

/// CloseCloexec closes every descriptor with FD_CLOEXEC set -- called on a
/// successful exec. Unlike Biscuit's original close-everything-
/// unconditionally exec, only CLOEXEC-marked descriptors are dropped.
func (ft *FileTable_t) CloseCloexec() {
	ft.Lock()
	var closing []*Fd_t
	for i, f := range ft.tbl {
		if f == nil || f.Perms&FD_CLOEXEC == 0 {
			continue
		}
		closing = append(closing, f)
		ft.tbl[i] = nil
	}
	ft.Unlock()
	for _, f := range closing {
		limits.Syslimit.Files.Give()
		f.Fops.Close()
	}
}

/// CloseAll closes every open descriptor -- called once a process becomes
/// a zombie.
func (ft *FileTable_t) CloseAll() {
	ft.Lock()
	tbl := ft.tbl
	ft.tbl = nil
	ft.Unlock()
	for _, f := range tbl {
		if f != nil {
			limits.Syslimit.Files.Give()
			f.Fops.Close()
		}
	}
}
