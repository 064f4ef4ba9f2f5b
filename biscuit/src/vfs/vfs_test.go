package vfs

import (
	"testing"

	"defs"
	"limits"
	"ustr"
)

func setup(t *testing.T) {
	t.Helper()
	T = Tree_t{}
	nodeCount = 0
	Init()
}

func TestInitCreatesDeviceTree(t *testing.T) {
	setup(t)
	for _, name := range []string{"console", "tty", "null", "ramdisk"} {
		n, err := Resolve(T.Root, ustr.Ustr("/dev/"+name))
		if err != 0 {
			t.Fatalf("resolving /dev/%s: %d", name, err)
		}
		if n.Type != DeviceType {
			t.Fatalf("/dev/%s is not a device node", name)
		}
	}
}

func TestResolveDotAndDotDot(t *testing.T) {
	setup(t)
	dev, err := Resolve(T.Root, ustr.Ustr("/dev"))
	if err != 0 {
		t.Fatalf("resolving /dev: %d", err)
	}
	if n, err := Resolve(dev, ustr.Ustr(".")); err != 0 || n != dev {
		t.Fatalf("'.' did not resolve to dev itself: n=%v err=%d", n, err)
	}
	if n, err := Resolve(dev, ustr.Ustr("..")); err != 0 || n != T.Root {
		t.Fatalf("'..' did not resolve to root: n=%v err=%d", n, err)
	}
}

func TestResolveMissingIsENOENT(t *testing.T) {
	setup(t)
	if _, err := Resolve(T.Root, ustr.Ustr("/nope")); err != -defs.ENOENT {
		t.Fatalf("Resolve(/nope) err = %d, want ENOENT", err)
	}
}

func TestResolveThroughFileIsENOTDIR(t *testing.T) {
	setup(t)
	if _, err := CreateFile(T.Root, "f"); err != 0 {
		t.Fatalf("CreateFile failed: %d", err)
	}
	if _, err := Resolve(T.Root, ustr.Ustr("/f/x")); err != -defs.ENOTDIR {
		t.Fatalf("Resolve(/f/x) err = %d, want ENOTDIR", err)
	}
}

func TestCreateFileRejectsDuplicate(t *testing.T) {
	setup(t)
	if _, err := CreateFile(T.Root, "dup"); err != 0 {
		t.Fatalf("first create failed: %d", err)
	}
	if _, err := CreateFile(T.Root, "dup"); err != -defs.EEXIST {
		t.Fatalf("second create err = %d, want EEXIST", err)
	}
}

func TestCreateFileRejectsNonDirParent(t *testing.T) {
	setup(t)
	f, _ := CreateFile(T.Root, "notadir")
	if _, err := CreateFile(f, "x"); err != -defs.ENOTDIR {
		t.Fatalf("create under a file err = %d, want ENOTDIR", err)
	}
}

func TestVnodeLimitEnforced(t *testing.T) {
	setup(t)
	orig := limits.Syslimit.Vnodes
	limits.Syslimit.Vnodes = nodeCount // no room for anything new
	defer func() { limits.Syslimit.Vnodes = orig }()

	if _, err := CreateFile(T.Root, "overflow"); err != -defs.ENOSPC {
		t.Fatalf("CreateFile at the limit err = %d, want ENOSPC", err)
	}
}

func TestUnlinkRemovesFile(t *testing.T) {
	setup(t)
	CreateFile(T.Root, "gone")
	before := nodeCount
	if err := Unlink(T.Root, ustr.Ustr("/gone")); err != 0 {
		t.Fatalf("Unlink failed: %d", err)
	}
	if nodeCount != before-1 {
		t.Fatalf("nodeCount after unlink = %d, want %d", nodeCount, before-1)
	}
	if _, err := Resolve(T.Root, ustr.Ustr("/gone")); err != -defs.ENOENT {
		t.Fatal("unlinked file is still resolvable")
	}
}

func TestUnlinkRejectsRoot(t *testing.T) {
	setup(t)
	if err := Unlink(T.Root, ustr.Ustr("/")); err != -defs.EBUSY {
		t.Fatalf("Unlink(/) err = %d, want EBUSY", err)
	}
}

func TestUnlinkRejectsDevice(t *testing.T) {
	setup(t)
	if err := Unlink(T.Root, ustr.Ustr("/dev/null")); err != -defs.EBUSY {
		t.Fatalf("Unlink(/dev/null) err = %d, want EBUSY", err)
	}
}

func TestUnlinkRejectsNonEmptyDir(t *testing.T) {
	setup(t)
	if err := Unlink(T.Root, ustr.Ustr("/dev")); err != -defs.ENOTEMPTY {
		t.Fatalf("Unlink(/dev) err = %d, want ENOTEMPTY", err)
	}
}

func TestUnlinkRejectsOpenRef(t *testing.T) {
	setup(t)
	f, _ := CreateFile(T.Root, "busy")
	f.RefCount = 2
	if err := Unlink(T.Root, ustr.Ustr("/busy")); err != -defs.EBUSY {
		t.Fatalf("Unlink with RefCount>1 err = %d, want EBUSY", err)
	}
}

func TestCreateDirectoryThenNestedFile(t *testing.T) {
	setup(t)
	if _, err := CreateDirectory(T.Root, "home"); err != 0 {
		t.Fatalf("CreateDirectory failed: %d", err)
	}
	home, err := Resolve(T.Root, ustr.Ustr("/home"))
	if err != 0 {
		t.Fatalf("resolving /home: %d", err)
	}
	if _, err := CreateFile(home, "init"); err != 0 {
		t.Fatalf("CreateFile under /home failed: %d", err)
	}
	if _, err := Resolve(T.Root, ustr.Ustr("/home/init")); err != 0 {
		t.Fatalf("resolving /home/init: %d", err)
	}
}
