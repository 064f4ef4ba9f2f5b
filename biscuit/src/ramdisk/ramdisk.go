// Package ramdisk implements the single in-memory block device exposed as
// the "ramdisk file", plus a small command-protocol shim compatible with
// Biscuit's original SimpleFS ramdisk ioctl interface. The shim is
// explicitly a compatibility layer, not core kernel behaviour: Claudia's
// VFS (package vfs) is an in-memory node pool, not SimpleFS's journaled
// on-disk format, so this package's job is only to expose fixed-size
// blocks of backing storage and answer the handful of legacy
// block-count/geometry queries a SimpleFS-aware userland tool might
// still issue.
package ramdisk

import (
	"sync"

	"defs"
	"fdops"
	"limits"
	"stat"
)

// BlockSize matches Biscuit's own on-disk block size so block numbers stay
// meaningful to any SimpleFS-speaking userland left over from Biscuit.
const BlockSize = 512

// BlockDevice_i abstracts a fixed-size, fixed-block-count backing store so
// tests can substitute a fake or a go.uber.org/mock-generated mock instead
// of a full Ramdisk_t.
type BlockDevice_i interface {
	ReadBlock(n int, dst []uint8) defs.Err_t
	WriteBlock(n int, src []uint8) defs.Err_t
	NumBlocks() int
}

// Ramdisk_t is BlockDevice_i backed by a single flat byte slice held
// entirely in Go-managed memory -- there is no physical disk underneath a
// QEMU `virt` ramdisk, so unlike Biscuit's own Bdev_block_t, a block here
// is never evicted or paged out.
type Ramdisk_t struct {
	mu   sync.Mutex
	data []uint8
}

// New allocates a ramdisk of nblocks BlockSize-byte blocks, zero-filled,
// capped at limits.Syslimit.Blocks -- the ramdisk is the one consumer of
// the Blocks budget, since SimpleFS's own per-file block accounting was
// dropped along with the rest of package fs.
func New(nblocks int) *Ramdisk_t {
	if nblocks > limits.Syslimit.Blocks {
		nblocks = limits.Syslimit.Blocks
	}
	return &Ramdisk_t{data: make([]uint8, nblocks*BlockSize)}
}

// NumBlocks reports the device's fixed block count.
func (rd *Ramdisk_t) NumBlocks() int {
	return len(rd.data) / BlockSize
}

func (rd *Ramdisk_t) bounds(n int) ([]uint8, defs.Err_t) {
	if n < 0 || n >= rd.NumBlocks() {
		return nil, -defs.EINVAL
	}
	off := n * BlockSize
	return rd.data[off : off+BlockSize], 0
}

// ReadBlock copies block n's contents into dst (dst must be ≥ BlockSize).
func (rd *Ramdisk_t) ReadBlock(n int, dst []uint8) defs.Err_t {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	blk, err := rd.bounds(n)
	if err != 0 {
		return err
	}
	copy(dst, blk)
	return 0
}

// WriteBlock overwrites block n with src (src must be ≥ BlockSize).
func (rd *Ramdisk_t) WriteBlock(n int, src []uint8) defs.Err_t {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	blk, err := rd.bounds(n)
	if err != 0 {
		return err
	}
	copy(blk, src)
	return 0
}

// File_t adapts a BlockDevice_i to fdops.Fdops_i so /dev/ramdisk can be
// opened and read/written like any other file, with the byte offset
// translated into (block, in-block-offset) pairs under the hood.
type File_t struct {
	dev BlockDevice_i
	off int
}

// NewFdops wraps dev as an openable file description positioned at
// offset 0.
func NewFdops(dev BlockDevice_i) *File_t {
	return &File_t{dev: dev}
}

func (f *File_t) size() int { return f.dev.NumBlocks() * BlockSize }

func (f *File_t) Close() defs.Err_t { return 0 }

func (f *File_t) Fstat(st fdops.Stat_i) defs.Err_t {
	st.Wmode(uint(stat.S_IFCHR) | 0660)
	st.Wsize(uint(f.size()))
	return 0
}

func (f *File_t) Lseek(off int, whence int) (int, defs.Err_t) {
	switch whence {
	case defs.SEEK_SET:
		f.off = off
	case defs.SEEK_CUR:
		f.off += off
	case defs.SEEK_END:
		f.off = f.size() + off
	default:
		return 0, -defs.EINVAL
	}
	if f.off < 0 {
		f.off = 0
		return 0, -defs.EINVAL
	}
	return f.off, 0
}

func (f *File_t) Mmapi(offset, len int, inhibited bool) ([]fdops.MmapInfo_t, defs.Err_t) {
	return nil, -defs.ENODEV
}

func (f *File_t) Pathi() interface{} { return nil }

// Read copies up to dst's capacity starting at the file's current offset,
// crossing block boundaries transparently.
func (f *File_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	var blk [BlockSize]uint8
	total := 0
	for {
		if f.off >= f.size() {
			return total, 0
		}
		bn := f.off / BlockSize
		bo := f.off % BlockSize
		if err := f.dev.ReadBlock(bn, blk[:]); err != 0 {
			return total, err
		}
		n, err := dst.Uiowrite(blk[bo:])
		if err != 0 {
			return total, err
		}
		f.off += n
		total += n
		if n == 0 || n < BlockSize-bo {
			return total, 0
		}
	}
}

// Write copies src to the device starting at the file's current offset,
// read-modify-writing a block when the write doesn't start or end on a
// block boundary. A write that reaches the end of the device stops there
// and returns the bytes written so far; one that starts at or past the
// end fails with ENOSPC.
func (f *File_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	var blk [BlockSize]uint8
	total := 0
	for {
		if f.off >= f.size() {
			if total == 0 && src.Remain() > 0 {
				return 0, -defs.ENOSPC
			}
			return total, 0
		}
		bn := f.off / BlockSize
		bo := f.off % BlockSize
		if bo != 0 || src.Remain() < BlockSize {
			if err := f.dev.ReadBlock(bn, blk[:]); err != 0 {
				return total, err
			}
		}
		n, err := src.Uioread(blk[bo:])
		if err != 0 {
			return total, err
		}
		if n == 0 {
			return total, 0
		}
		if err := f.dev.WriteBlock(bn, blk[:]); err != 0 {
			return total, err
		}
		f.off += n
		total += n
	}
}

func (f *File_t) Reopen() defs.Err_t { return 0 }

// Legacy SimpleFS command-protocol extension IDs, kept only for userland
// that still probes a ramdisk the way Biscuit's original fs tools did.
const (
	CmdBlockSize  = 1 // query BlockSize
	CmdNumBlocks  = 2 // query NumBlocks()
)

// Ioctl answers the handful of SimpleFS-era geometry queries. Anything
// else is ENOTSUP: this is a narrow compatibility shim, not a protocol
// implementation.
func (f *File_t) Ioctl(cmd int) (int, defs.Err_t) {
	switch cmd {
	case CmdBlockSize:
		return BlockSize, 0
	case CmdNumBlocks:
		return f.dev.NumBlocks(), 0
	default:
		return 0, -defs.ENOTSUP
	}
}
