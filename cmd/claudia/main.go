// Command claudia is the kernel's link-time entry point: a thin trampoline
// that hands off to kernel.Kmain once the boot firmware has transferred
// control here.
package main

import (
	"unsafe"

	"kernel"
)

// hartid and dtb would come from OpenSBI's a0/a1 handoff registers on a
// real boot; capturing them needs a custom _rt0 stub ahead of Go's own
// runtime init, which this port doesn't build (SMP and device-tree parsing
// are both out of scope for this single-hart port, so neither value is ever read past this
// point).
const (
	hartid uintptr = 0
	dtb    uintptr = 0
)

// initrdBase and initrdLen are patched by the build's link step (as
// cmd/chentry patches the ELF header's entry address after linking) to
// point at the embedded initrd image baked into the kernel
// binary. Both are zero in a build with no initrd linked in.
var (
	initrdBase uintptr
	initrdLen  uintptr
)

func main() {
	var image []byte
	if initrdLen != 0 {
		image = unsafe.Slice((*byte)(unsafe.Pointer(initrdBase)), initrdLen)
	}
	kernel.Kmain(hartid, dtb, image)
}
