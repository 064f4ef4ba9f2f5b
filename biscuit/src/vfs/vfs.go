// Package vfs implements the static, in-memory virtual filesystem tree:
// a pool of VNode_t rooted at "/", resolved by component-at-a-time
// lookup against a per-process current working directory. Unlike
// Biscuit's own SimpleFS (package fs, a journaled on-disk filesystem
// with a block cache and write-ahead log) there is no backing store for
// regular files or directories here -- everything lives in the node
// pool for as long as the kernel runs, dropping SimpleFS's persistence
// machinery entirely rather than porting it partway.
package vfs

import (
	"sync"

	"defs"
	"limits"
	"ustr"
)

// Type_t is a VNode's kind.
type Type_t int

const (
	FileType Type_t = iota
	DirType
	DeviceType
)

// VNode_t is one node in the tree. Regular
// files hold their bytes inline in Data; directories hold their entries in
// Children; device nodes carry no data of their own and are resolved to a
// fixed fdops.Fdops_i by the FD layer's openat handler using DevMinor.
type VNode_t struct {
	sync.Mutex
	Name     string
	Type     Type_t
	Parent   *VNode_t
	Children []*VNode_t
	Data     []uint8
	DevMinor int
	RefCount int
}

// Tree_t is the whole filesystem: a root VNode_t and the mutex guarding
// structural mutation (child-list inserts/removes) tree-wide. Biscuit's
// own VFS disables supervisor interrupts around these mutations instead;
// Claudia maps that onto ordinary mutual exclusion since the VFS is
// never touched from interrupt context here.
type Tree_t struct {
	sync.Mutex
	Root *VNode_t
}

// T is the single global filesystem tree.
var T Tree_t

// nodeCount tracks live VNode_t allocations against limits.Syslimit.Vnodes,
// guarded by T's own lock, per limits.Syslimit_t's field comment.
var nodeCount int

// Device minor numbers for the four devices init pre-creates.
const (
	DevConsole = iota
	DevTty
	DevNull
	DevRamdisk
)

// Init builds the root directory and the four device nodes /dev/console,
// /dev/tty, /dev/null, /dev/ramdisk.
func Init() {
	T.Root = &VNode_t{Name: "", Type: DirType, RefCount: 1}
	nodeCount = 1
	dev := mkdirLocked(T.Root, "dev")
	mkdevLocked(dev, "console", DevConsole)
	mkdevLocked(dev, "tty", DevTty)
	mkdevLocked(dev, "null", DevNull)
	mkdevLocked(dev, "ramdisk", DevRamdisk)
}

func mkdirLocked(parent *VNode_t, name string) *VNode_t {
	n := &VNode_t{Name: name, Type: DirType, Parent: parent, RefCount: 1}
	parent.Children = append(parent.Children, n)
	nodeCount++
	return n
}

func mkdevLocked(parent *VNode_t, name string, minor int) *VNode_t {
	n := &VNode_t{Name: name, Type: DeviceType, Parent: parent, DevMinor: minor, RefCount: 1}
	parent.Children = append(parent.Children, n)
	nodeCount++
	return n
}

// childLocked returns name's direct child of dir, or nil. "." resolves to
// dir itself (never surfaced as an actual Children entry); ".." resolves
// to dir's parent, or dir itself at the root.
func childLocked(dir *VNode_t, name string) *VNode_t {
	if name == "." {
		return dir
	}
	if name == ".." {
		if dir.Parent == nil {
			return dir
		}
		return dir.Parent
	}
	for _, c := range dir.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// splitPath breaks a ustr path into its non-empty "/"-separated
// components.
func splitPath(p ustr.Ustr) []string {
	s := p.String()
	var parts []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '/' {
			if i > start {
				parts = append(parts, s[start:i])
			}
			start = i + 1
		}
	}
	return parts
}

// Resolve walks path component-at-a-time starting from root (if path is
// absolute) or from cwd, returning the named VNode_t or ENOENT/ENOTDIR.
func Resolve(cwd *VNode_t, path ustr.Ustr) (*VNode_t, defs.Err_t) {
	T.Lock()
	defer T.Unlock()

	cur := cwd
	if path.IsAbsolute() || cwd == nil {
		cur = T.Root
	}
	for _, comp := range splitPath(path) {
		if cur.Type != DirType {
			return nil, -defs.ENOTDIR
		}
		next := childLocked(cur, comp)
		if next == nil {
			return nil, -defs.ENOENT
		}
		cur = next
	}
	return cur, 0
}

// resolveParent resolves all but the last path component, returning the
// parent directory and the final component's name.
func resolveParent(cwd *VNode_t, path ustr.Ustr) (*VNode_t, string, defs.Err_t) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, "", -defs.EINVAL
	}
	last := parts[len(parts)-1]
	dirpath := ustr.Ustr(joinAllButLast(path, parts))
	parent, err := Resolve(cwd, dirpath)
	if err != 0 {
		return nil, "", err
	}
	return parent, last, 0
}

func joinAllButLast(path ustr.Ustr, parts []string) string {
	prefix := ""
	if path.IsAbsolute() {
		prefix = "/"
	}
	if len(parts) <= 1 {
		return prefix
	}
	s := prefix
	for _, p := range parts[:len(parts)-1] {
		s += p + "/"
	}
	return s
}

// CreateFile allocates a fresh zero-length File node under parent/name;
// EEXIST if name is already taken.
func CreateFile(parent *VNode_t, name string) (*VNode_t, defs.Err_t) {
	return createLocked(parent, name, FileType)
}

// CreateDirectory allocates a fresh empty directory under parent/name.
func CreateDirectory(parent *VNode_t, name string) (*VNode_t, defs.Err_t) {
	return createLocked(parent, name, DirType)
}

func createLocked(parent *VNode_t, name string, typ Type_t) (*VNode_t, defs.Err_t) {
	T.Lock()
	defer T.Unlock()
	if parent.Type != DirType {
		return nil, -defs.ENOTDIR
	}
	if childLocked(parent, name) != nil {
		return nil, -defs.EEXIST
	}
	if nodeCount >= limits.Syslimit.Vnodes {
		return nil, -defs.ENOSPC
	}
	n := &VNode_t{Name: name, Type: typ, Parent: parent, RefCount: 1}
	parent.Children = append(parent.Children, n)
	nodeCount++
	return n, 0
}

// Unlink removes path from its parent's child list. Forbidden on root,
// on device nodes, on non-empty directories,
// and on any node whose RefCount is still > 1 (an open descriptor, or a
// second hard-link if this port ever grows them).
func Unlink(cwd *VNode_t, path ustr.Ustr) defs.Err_t {
	if n, rerr := Resolve(cwd, path); rerr == 0 && n == T.Root {
		return -defs.EBUSY
	}
	parent, name, err := resolveParent(cwd, path)
	if err != 0 {
		return err
	}

	T.Lock()
	defer T.Unlock()
	target := childLocked(parent, name)
	if target == nil {
		return -defs.ENOENT
	}
	if target == T.Root {
		return -defs.EBUSY
	}
	if target.Type == DeviceType {
		return -defs.EBUSY
	}
	if target.Type == DirType && len(target.Children) != 0 {
		return -defs.ENOTEMPTY
	}
	if target.RefCount > 1 {
		return -defs.EBUSY
	}
	for i, c := range parent.Children {
		if c == target {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			nodeCount--
			break
		}
	}
	return 0
}
