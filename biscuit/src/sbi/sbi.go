// Package sbi wraps the handful of OpenSBI ecall extensions this kernel
// actually calls into from S-mode: OpenSBI itself runs underneath as
// firmware, and this package is the narrow interface the kernel consumes
// rather than a firmware implementation. Two extensions are used: the
// legacy console putchar/getchar calls, and the legacy timer extension
// used to arm the next supervisor timer interrupt.
package sbi

// Legacy SBI extension IDs (SBI v0.1, still implemented by OpenSBI for
// compatibility and simple enough for an educational kernel to use
// directly rather than the newer extension-probing SBI v0.2+ ABI).
const (
	extSetTimer      = 0x00
	extConsolePutchar = 0x01
	extConsoleGetchar = 0x02
	extShutdown      = 0x08
)

// ecall performs an SBI call: a7 selects the extension, a0 carries the
// single legacy argument, return value comes back in a0 (ecall.s).
//
//go:noescape
func ecall(ext, arg uintptr) uintptr

// ecallFn is a package variable so tests can substitute a fake without an
// actual ecall instruction (there is no SBI firmware under `go test`).
var ecallFn = ecall

// PutChar writes one byte to the UART via the console putchar call.
func PutChar(c byte) {
	ecallFn(extConsolePutchar, uintptr(c))
}

// GetChar reads one byte from the UART, or returns ok=false if none is
// pending (the legacy getchar call returns -1 on no input).
func GetChar() (c byte, ok bool) {
	r := ecallFn(extConsoleGetchar, 0)
	if int(r) < 0 {
		return 0, false
	}
	return byte(r), true
}

// SetTimer arms the next supervisor timer interrupt to fire when the
// CLINT's mtime counter reaches deadline.
func SetTimer(deadline uint64) {
	ecallFn(extSetTimer, uintptr(deadline))
}

// Shutdown powers off the machine. No kernel code calls it.
func Shutdown() {
	ecallFn(extShutdown, 0)
}
