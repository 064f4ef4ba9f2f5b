// Package fdops defines the vtable every open file description implements
// and the user/kernel I/O buffer abstraction that read and
// write operations move bytes through. It exists as its own package, the
// way Biscuit keeps the fd vtable, the file implementations, and the
// user-buffer plumbing in separate packages, so that fd/fs/vm/console/
// ramdisk can all depend on the interface without importing one another.
package fdops

import "defs"

// Userio_i abstracts a source or sink for bytes that may live in user
// virtual memory, the kernel, or a fixed in-kernel buffer. vm.Userbuf_t is
// the canonical implementation backing syscall read/write; circbuf and the
// console line buffer also read and write through it directly so that a
// line of console input can be copied straight into a user buffer without
// an intermediate kernel copy.
type Userio_i interface {
	// Uioread copies from the source into dst, returning the number of
	// bytes copied.
	Uioread(dst []uint8) (int, defs.Err_t)
	// Uiowrite copies from src into the destination, returning the
	// number of bytes copied.
	Uiowrite(src []uint8) (int, defs.Err_t)
	// Remain reports how many bytes are left to transfer.
	Remain() int
	// Totalsz reports the full size of the transfer this Userio_i was
	// constructed for.
	Totalsz() int
}

// Fdops_i is the operation set every open file description (console, null
// device, ramdisk, in-memory file, directory) implements. A *fd.Fd_t holds
// one of these, not a concrete type, so the syscall dispatcher's read,
// write, close and lseek handlers never need to know what kind of file
// they are operating on.
type Fdops_i interface {
	// Close releases any resources held by this file description.
	// Called once per Fd_t, including each copy made by dup/dup3/fork.
	Close() defs.Err_t

	// Fstat fills in st with this file's metadata.
	Fstat(st Stat_i) defs.Err_t

	// Lseek repositions the file offset per whence (defs.SEEK_*) and
	// returns the new offset.
	Lseek(off int, whence int) (int, defs.Err_t)

	// Mmapi returns the physical pages backing [offset, offset+len) for
	// a memory-mapped file. No implementation in this kernel supports
	// mapping: console, null, ramdisk and in-memory files return ENODEV,
	// directories return EISDIR.
	Mmapi(offset, len int, inhibited bool) ([]MmapInfo_t, defs.Err_t)

	// Pathi returns the vnode this descriptor resolves to, for
	// operations (fchdir, fstat-by-fd) that need path identity rather
	// than byte access. Returns nil for descriptors with no path
	// identity (console, null, ramdisk).
	Pathi() interface{}

	// Read copies up to dst's remaining capacity from the file into
	// dst, returning the number of bytes read.
	Read(dst Userio_i) (int, defs.Err_t)

	// Reopen is called when a descriptor is duplicated (dup, dup3,
	// fork); most implementations just increment a reference count.
	Reopen() defs.Err_t

	// Write copies all of src into the file, returning the number of
	// bytes written.
	Write(src Userio_i) (int, defs.Err_t)
}

// Stat_i is the subset of stat.Stat_t's setters Fstat needs; kept as an
// interface here (rather than importing stat directly) to avoid a import
// cycle between fdops and the packages stat depends on.
type Stat_i interface {
	Wdev(uint)
	Wino(uint)
	Wmode(uint)
	Wsize(uint)
	Wrdev(uint)
}

// MmapInfo_t describes one physical page backing a memory-mapped region.
type MmapInfo_t struct {
	Pg   []uint8
	Phys uintptr
}
