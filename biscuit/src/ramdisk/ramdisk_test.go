package ramdisk

import (
	"testing"

	"defs"
	"limits"
)

// memUio is a hand-written fdops.Userio_i backed by a plain byte slice --
// the ramdisk tests only need a buffer that can play either endpoint of a
// read or write, not a real user-virtual-memory mapping.
type memUio struct {
	buf []byte
	pos int
}

func (u *memUio) Uioread(dst []byte) (int, defs.Err_t) {
	n := copy(dst, u.buf[u.pos:])
	u.pos += n
	return n, 0
}

func (u *memUio) Uiowrite(src []byte) (int, defs.Err_t) {
	n := copy(u.buf[u.pos:], src)
	u.pos += n
	return n, 0
}

func (u *memUio) Remain() int  { return len(u.buf) - u.pos }
func (u *memUio) Totalsz() int { return len(u.buf) }

func withBlocksLimit(t *testing.T, n int) func() {
	t.Helper()
	orig := limits.Syslimit.Blocks
	limits.Syslimit.Blocks = n
	return func() { limits.Syslimit.Blocks = orig }
}

func TestNewClampsToSyslimit(t *testing.T) {
	defer withBlocksLimit(t, 4)()
	rd := New(100)
	if rd.NumBlocks() != 4 {
		t.Fatalf("NumBlocks = %d, want clamped to 4", rd.NumBlocks())
	}
}

func TestNewUnderLimitIsUnclamped(t *testing.T) {
	defer withBlocksLimit(t, 100)()
	rd := New(4)
	if rd.NumBlocks() != 4 {
		t.Fatalf("NumBlocks = %d, want 4", rd.NumBlocks())
	}
}

func TestReadWriteBlockRoundtrip(t *testing.T) {
	defer withBlocksLimit(t, 100)()
	rd := New(4)
	var src [BlockSize]byte
	for i := range src {
		src[i] = byte(i)
	}
	if err := rd.WriteBlock(2, src[:]); err != 0 {
		t.Fatalf("WriteBlock failed: %d", err)
	}
	var dst [BlockSize]byte
	if err := rd.ReadBlock(2, dst[:]); err != 0 {
		t.Fatalf("ReadBlock failed: %d", err)
	}
	if dst != src {
		t.Fatal("ReadBlock did not return what WriteBlock wrote")
	}
}

func TestReadWriteBlockRejectsOutOfRange(t *testing.T) {
	defer withBlocksLimit(t, 100)()
	rd := New(4)
	var buf [BlockSize]byte
	if err := rd.ReadBlock(-1, buf[:]); err != -defs.EINVAL {
		t.Fatalf("ReadBlock(-1) err = %d, want EINVAL", err)
	}
	if err := rd.ReadBlock(4, buf[:]); err != -defs.EINVAL {
		t.Fatalf("ReadBlock(4) on a 4-block device err = %d, want EINVAL", err)
	}
	if err := rd.WriteBlock(4, buf[:]); err != -defs.EINVAL {
		t.Fatalf("WriteBlock(4) on a 4-block device err = %d, want EINVAL", err)
	}
}

func TestFileReadWriteCrossesBlockBoundary(t *testing.T) {
	defer withBlocksLimit(t, 100)()
	rd := New(2)
	f := NewFdops(rd)

	data := make([]byte, BlockSize+BlockSize/2)
	for i := range data {
		data[i] = byte(i % 251)
	}

	wsrc := &memUio{buf: data}
	n, err := f.Write(wsrc)
	if err != 0 {
		t.Fatalf("Write failed: %d", err)
	}
	if n != len(data) {
		t.Fatalf("Write wrote %d bytes, want %d", n, len(data))
	}

	f2 := NewFdops(rd)
	rdst := &memUio{buf: make([]byte, len(data))}
	n, err = f2.Read(rdst)
	if err != 0 {
		t.Fatalf("Read failed: %d", err)
	}
	if n != len(data) {
		t.Fatalf("Read read %d bytes, want %d", n, len(data))
	}
	for i := range data {
		if rdst.buf[i] != data[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, rdst.buf[i], data[i])
		}
	}
}

func TestFileWritePreservesUntouchedTail(t *testing.T) {
	// A write that starts mid-block must read-modify-write rather than
	// zeroing the rest of the block.
	defer withBlocksLimit(t, 100)()
	rd := New(1)
	var full [BlockSize]byte
	for i := range full {
		full[i] = 0xAA
	}
	rd.WriteBlock(0, full[:])

	f := NewFdops(rd)
	f.Lseek(BlockSize-4, defs.SEEK_SET)
	wsrc := &memUio{buf: []byte{1, 2}}
	if n, err := f.Write(wsrc); err != 0 || n != 2 {
		t.Fatalf("partial Write = %d, %d, want 2, 0", n, err)
	}

	var got [BlockSize]byte
	rd.ReadBlock(0, got[:])
	if got[BlockSize-4] != 1 || got[BlockSize-3] != 2 {
		t.Fatal("Write did not land at the expected offset")
	}
	if got[BlockSize-2] != 0xAA || got[BlockSize-1] != 0xAA {
		t.Fatal("Write clobbered bytes past what it was asked to write")
	}
}

func TestLseekModes(t *testing.T) {
	defer withBlocksLimit(t, 100)()
	rd := New(2)
	f := NewFdops(rd)

	if off, err := f.Lseek(100, defs.SEEK_SET); err != 0 || off != 100 {
		t.Fatalf("SEEK_SET = %d, %d, want 100, 0", off, err)
	}
	if off, err := f.Lseek(10, defs.SEEK_CUR); err != 0 || off != 110 {
		t.Fatalf("SEEK_CUR = %d, %d, want 110, 0", off, err)
	}
	if off, err := f.Lseek(0, defs.SEEK_END); err != 0 || off != f.size() {
		t.Fatalf("SEEK_END = %d, %d, want %d, 0", off, err, f.size())
	}
	if _, err := f.Lseek(0, 99); err != -defs.EINVAL {
		t.Fatalf("bad whence err = %d, want EINVAL", err)
	}
}

func TestIoctlLegacyQueries(t *testing.T) {
	defer withBlocksLimit(t, 100)()
	rd := New(8)
	f := NewFdops(rd)

	if v, err := f.Ioctl(CmdBlockSize); err != 0 || v != BlockSize {
		t.Fatalf("Ioctl(CmdBlockSize) = %d, %d, want %d, 0", v, err, BlockSize)
	}
	if v, err := f.Ioctl(CmdNumBlocks); err != 0 || v != 8 {
		t.Fatalf("Ioctl(CmdNumBlocks) = %d, %d, want 8, 0", v, err)
	}
	if _, err := f.Ioctl(999); err != -defs.ENOTSUP {
		t.Fatalf("Ioctl(unknown) err = %d, want ENOTSUP", err)
	}
}

// fakeBlockDevice is a minimal hand-written BlockDevice_i, demonstrating
// that File_t only depends on the interface and not on Ramdisk_t itself.
type fakeBlockDevice struct {
	blocks [][BlockSize]byte
}

func (d *fakeBlockDevice) NumBlocks() int { return len(d.blocks) }

func (d *fakeBlockDevice) ReadBlock(n int, dst []byte) defs.Err_t {
	if n < 0 || n >= len(d.blocks) {
		return -defs.EINVAL
	}
	copy(dst, d.blocks[n][:])
	return 0
}

func (d *fakeBlockDevice) WriteBlock(n int, src []byte) defs.Err_t {
	if n < 0 || n >= len(d.blocks) {
		return -defs.EINVAL
	}
	copy(d.blocks[n][:], src)
	return 0
}

func TestFileWorksAgainstFakeBlockDevice(t *testing.T) {
	dev := &fakeBlockDevice{blocks: make([][BlockSize]byte, 2)}
	f := NewFdops(dev)

	wsrc := &memUio{buf: []byte("hello")}
	if _, err := f.Write(wsrc); err != 0 {
		t.Fatalf("Write against fake device failed: %d", err)
	}
	if string(dev.blocks[0][:5]) != "hello" {
		t.Fatal("fake device did not receive the written bytes")
	}
}
