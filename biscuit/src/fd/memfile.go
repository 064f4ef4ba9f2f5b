package fd

import (
	"sync"
	"unsafe"

	"defs"
	"fdops"
	"stat"
	"vfs"
)

// MaxInlineData bounds a regular file's inline byte buffer. There is no
// backing store behind a VNode_t, so without a cap a single file could
// grow to consume all of physical memory; writes past this limit fail
// with ENOSPC instead of growing further.
const MaxInlineData = 1 << 20

/// MemFile_t couples an open file description to a regular VNode_t's
/// inline byte buffer and gives this particular descriptor its own
/// independent read/write offset.
type MemFile_t struct {
	sync.Mutex
	node *vfs.VNode_t
	off  int
}

/// NewMemFile opens node (a File-type VNode_t) as a fresh descriptor
/// positioned at offset 0.
func NewMemFile(node *vfs.VNode_t) *MemFile_t {
	node.Lock()
	node.RefCount++
	node.Unlock()
	return &MemFile_t{node: node}
}

func (f *MemFile_t) Close() defs.Err_t {
	f.node.Lock()
	f.node.RefCount--
	f.node.Unlock()
	return 0
}

func (f *MemFile_t) Fstat(st fdops.Stat_i) defs.Err_t {
	f.node.Lock()
	defer f.node.Unlock()
	st.Wmode(uint(stat.S_IFREG) | 0644)
	st.Wsize(uint(len(f.node.Data)))
	return 0
}

func (f *MemFile_t) Lseek(off int, whence int) (int, defs.Err_t) {
	f.Lock()
	defer f.Unlock()
	f.node.Lock()
	sz := len(f.node.Data)
	f.node.Unlock()
	switch whence {
	case defs.SEEK_SET:
		f.off = off
	case defs.SEEK_CUR:
		f.off += off
	case defs.SEEK_END:
		f.off = sz + off
	default:
		return 0, -defs.EINVAL
	}
	if f.off < 0 {
		f.off = 0
		return 0, -defs.EINVAL
	}
	return f.off, 0
}

func (f *MemFile_t) Mmapi(offset, length int, inhibited bool) ([]fdops.MmapInfo_t, defs.Err_t) {
	return nil, -defs.ENODEV
}

func (f *MemFile_t) Pathi() interface{} {
	return f.node
}

/// Read copies up to dst's capacity from the node's data starting at this
/// descriptor's offset; reading past the end of the data returns 0 (EOF).
func (f *MemFile_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	f.Lock()
	defer f.Unlock()
	f.node.Lock()
	defer f.node.Unlock()
	if f.off >= len(f.node.Data) {
		return 0, 0
	}
	n, err := dst.Uiowrite(f.node.Data[f.off:])
	if err != 0 {
		return 0, err
	}
	f.off += n
	return n, 0
}

/// Write copies all of src into the node's data, growing it (and the
/// backing slice) as needed; writes past the current end zero-fill the
/// gap, matching POSIX sparse-write semantics. A write that would push
/// the node past MaxInlineData fails with ENOSPC and leaves the node
/// untouched -- no partial write.
func (f *MemFile_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	f.Lock()
	defer f.Unlock()
	f.node.Lock()
	defer f.node.Unlock()

	if f.off >= MaxInlineData || f.off+src.Remain() > MaxInlineData {
		return 0, -defs.ENOSPC
	}

	total := 0
	var buf [512]uint8
	for {
		n, err := src.Uioread(buf[:])
		if err != 0 {
			return total, err
		}
		if n == 0 {
			return total, 0
		}
		end := f.off + n
		if end > MaxInlineData {
			return total, -defs.ENOSPC
		}
		if end > len(f.node.Data) {
			grown := make([]uint8, end)
			copy(grown, f.node.Data)
			f.node.Data = grown
		}
		copy(f.node.Data[f.off:end], buf[:n])
		f.off = end
		total += n
	}
}

func (f *MemFile_t) Reopen() defs.Err_t {
	f.node.Lock()
	f.node.RefCount++
	f.node.Unlock()
	return 0
}

/// DirFile_t serves a directory opened for read, enumerating its children
/// in getdents64 order.
type DirFile_t struct {
	sync.Mutex
	node *vfs.VNode_t
	pos  int // entries emitted so far: 0="." pending, 1=".." pending, 2+=node.Children[pos-2:]
}

/// NewDirFile opens node (a Dir-type VNode_t) for getdents64 iteration.
func NewDirFile(node *vfs.VNode_t) *DirFile_t {
	node.Lock()
	node.RefCount++
	node.Unlock()
	return &DirFile_t{node: node}
}

func (f *DirFile_t) Close() defs.Err_t {
	f.node.Lock()
	f.node.RefCount--
	f.node.Unlock()
	return 0
}

func (f *DirFile_t) Fstat(st fdops.Stat_i) defs.Err_t {
	st.Wmode(uint(stat.S_IFDIR) | 0755)
	return 0
}

func (f *DirFile_t) Lseek(off int, whence int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}

func (f *DirFile_t) Mmapi(offset, length int, inhibited bool) ([]fdops.MmapInfo_t, defs.Err_t) {
	return nil, -defs.EISDIR
}

func (f *DirFile_t) Pathi() interface{} {
	return f.node
}

/// Dirent_t is one getdents64-style directory entry: name, type tag, and
/// an inode number derived from the backing VNode_t's identity (there is
/// no disk, so no real on-disk inode table to number against).
type Dirent_t struct {
	Name string
	Type int
	Ino  uint64
}

/// ReadDirent is getdents64's underlying iterator: each call returns the
/// next not-yet-emitted entry and true, or false once the directory is
/// exhausted. The first two entries are always "." and ".." -- even an
/// empty directory's listing has them -- before node.Children is walked.
/// The FD-layer getdents64 handler marshals Dirent_t values returned here
/// into the user buffer's wire format.
func (f *DirFile_t) ReadDirent() (Dirent_t, bool) {
	f.Lock()
	defer f.Unlock()
	f.node.Lock()
	defer f.node.Unlock()

	if f.pos == 0 {
		f.pos++
		return Dirent_t{Name: ".", Type: defs.DT_DIR, Ino: uint64(nodeIno(f.node))}, true
	}
	if f.pos == 1 {
		f.pos++
		parent := f.node.Parent
		if parent == nil {
			parent = f.node
		}
		return Dirent_t{Name: "..", Type: defs.DT_DIR, Ino: uint64(nodeIno(parent))}, true
	}

	idx := f.pos - 2
	if idx >= len(f.node.Children) {
		return Dirent_t{}, false
	}
	c := f.node.Children[idx]
	f.pos++
	typ := defs.DT_FILE
	switch c.Type {
	case vfs.DirType:
		typ = defs.DT_DIR
	case vfs.DeviceType:
		typ = defs.DT_DEVICE
	}
	return Dirent_t{Name: c.Name, Type: typ, Ino: uint64(nodeIno(c))}, true
}

// nodeIno derives a stable inode number for a VNode_t from its own
// address, since this filesystem keeps nodes alive for as long as the
// kernel runs and never reuses a node's storage while referenced.
func nodeIno(n *vfs.VNode_t) uintptr {
	return uintptr(unsafe.Pointer(n))
}

// Read exists to satisfy fdops.Fdops_i; getdents64 is the real entry point
// for directories, so a raw Read is rejected the way Linux
// rejects read(2) on a directory fd.
func (f *DirFile_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.EISDIR
}

func (f *DirFile_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.EISDIR
}

func (f *DirFile_t) Reopen() defs.Err_t {
	f.node.Lock()
	f.node.RefCount++
	f.node.Unlock()
	return 0
}
