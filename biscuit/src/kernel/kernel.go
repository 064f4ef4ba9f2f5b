// Package kernel wires every other package together into a bootable
// image: Kmain runs the boot sequence in order (frame allocator, page
// tables, trap vector, devices, VFS, process table, first process, idle
// loop), the same top-to-bottom sequencing Biscuit's own kernel.go
// performs for its x86_64 target.
package kernel

import (
	"archrv64"
	"console"
	"fd"
	"fdops"
	"klog"
	"mem"
	"proc"
	"ramdisk"
	"scall"
	"trapframe"
	"vfs"
	"vm"
)

// RamdiskBlocks sizes the single /dev/ramdisk device.
const RamdiskBlocks = 4096 // 2MB of 512-byte blocks

var theRamdisk *ramdisk.Ramdisk_t

// Kmain is the kernel's entry point, called by cmd/claudia's bootstrap
// once the firmware has handed off. hartid and dtb
// are accepted but unused: SMP and device-tree parsing are
// both Non-goals for this single-hart, fixed-memory-map
// target.
func Kmain(hartid uintptr, dtb uintptr, initrd []byte) {
	klog.Early("claudia: booting\n")

	mem.Phys_init()
	klog.Infof("physical memory ready")

	root, ok := vm.New()
	if !ok {
		klog.Panicf("kernel: out of memory building the kernel page table")
	}
	proc.KernelPagetable = root
	identityMapRAM(root)

	archrv64.TrapHandler = trapHandler
	archrv64.InstallTrapvec()
	klog.Infof("trap vector installed")

	console.Init()
	theRamdisk = ramdisk.New(RamdiskBlocks)
	scall.RegisterDeviceBindings(consoleFdopsCtor, ramdiskFdopsCtor)

	vfs.Init()
	klog.Infof("vfs mounted, devices: /dev/console /dev/tty /dev/null /dev/ramdisk")

	proc.Init()
	klog.Infof("process table ready")

	if len(initrd) > 0 {
		unpackInitrd(initrd)
	}

	initp, err := proc.Alloc("init", nil)
	if err != 0 {
		klog.Panicf("kernel: could not create init process: %d", err)
	}
	bindStdio(initp)

	entry := uintptr(proc.UserTextBase)
	if len(initrd) > 0 {
		var image []byte
		for _, c := range vfs.T.Root.Children {
			if c.Name == "init" && c.Type == vfs.FileType {
				image = c.Data
			}
		}
		if image == nil {
			klog.Panicf("kernel: initrd has no /init")
		}
		if eerr := proc.Exec(initp, image, entry, []string{"init"}); eerr != 0 {
			klog.Panicf("kernel: exec of init failed: %d", eerr)
		}
	}
	proc.Start(initp)

	archrv64.SetKstack(initp.Kstack)
	klog.Infof("entering scheduler")
	proc.IdleLoop()
}

// KernBase is the lowest virtual address in the kernel half of the Sv39
// split (vm.SplitVpn2's VPN2 index 256, i.e. 256<<30): the kernel's own RAM
// window lives up here rather than at RAM's physical load address, so it
// can never collide with a user mapping below vm.SplitVpn2.
const KernBase = uintptr(256) << 30

// identityMapRAM maps the whole RAM arena into root's kernel half at
// KernBase+offset, the one-time setup that makes KernelPagetable the
// "source of truth" InstallKernelGlobals copies from into every process
// table Alloc builds afterward.
// Console and ramdisk I/O both go through SBI calls or the flat arena
// directly rather than memory-mapped device registers -- there is no
// PLIC/MMIO device model here -- so RAM is the only region the kernel
// window needs.
func identityMapRAM(root vm.Pagetable_t) {
	for pa := mem.RAMBase; pa < mem.RAMBase+mem.RAMSize; pa += mem.Pa_t(mem.PGSIZE) {
		va := KernBase + uintptr(pa-mem.RAMBase)
		if !vm.Map(root, mem.Va_t(va), pa, vm.PTE_R|vm.PTE_W) {
			klog.Panicf("kernel: out of memory identity-mapping RAM")
		}
	}
}

func consoleFdopsCtor() fdops.Fdops_i { return console.NewFdops() }
func ramdiskFdopsCtor() fdops.Fdops_i { return ramdisk.NewFdops(theRamdisk) }

// bindStdio wires fds 0, 1, and 2 of a freshly allocated process to the
// console device: slots 0/1/2 are always pre-bound to the console.
func bindStdio(p *proc.Proc_t) {
	for i := 0; i < fd.FirstUserFd; i++ {
		p.Ftbl.SetStdfd(i, &fd.Fd_t{Fops: console.NewFdops(), Perms: fd.FD_READ | fd.FD_WRITE})
	}
}

// unpackInitrd loads every embedded file named in the initrd manifest
// into the VFS node pool, from the embedded base/length boot argument;
// the manifest format itself is produced host-side by cmd/mkinitrd.
// Parsing is intentionally minimal:
// a sequence of {path-length, path, data-length, data} records, enough to
// seed /init's own binary and any files it immediately needs.
func unpackInitrd(data []byte) {
	off := 0
	for off+8 <= len(data) {
		pathLen := int(beUint32(data[off:]))
		off += 4
		if off+pathLen > len(data) {
			return
		}
		path := string(data[off : off+pathLen])
		off += pathLen
		if off+4 > len(data) {
			return
		}
		dataLen := int(beUint32(data[off:]))
		off += 4
		if off+dataLen > len(data) {
			return
		}
		contents := data[off : off+dataLen]
		off += dataLen
		installFile(path, contents)
	}
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func installFile(path string, contents []byte) {
	parent := vfs.T.Root
	name := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			name = path[i+1:]
			break
		}
	}
	node, err := vfs.CreateFile(parent, name)
	if err != 0 {
		return
	}
	node.Data = append(node.Data[:0], contents...)
}

// trapHandler classifies an incoming trap and
// dispatches to the syscall table, the scheduler's timer tick, or a
// kernel panic for anything unrecognised.
func trapHandler(tf *trapframe.TrapFrame_t) {
	switch {
	case tf.Scause == trapframe.ScauseEcallFromUmode:
		scall.Dispatch(proc.Current(), tf)
	case tf.Scause == trapframe.ScauseSupervisorTimer:
		console.Default().Poll()
		proc.OnTick()
	case tf.Scause == trapframe.ScauseSupervisorExt:
		console.Default().Poll()
	case tf.IsInterrupt():
		klog.Warnf("unhandled interrupt, scause=%#x", tf.Scause)
	default:
		klog.Panicf("unrecoverable trap: scause=%#x sepc=%#x stval=%#x", tf.Scause, tf.Sepc, tf.Stval)
	}
}
