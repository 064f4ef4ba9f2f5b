package limits

import "unsafe"
import "sync/atomic"

/// Lhits counts limit hits.
var Lhits int

/// Sysatomic_t is a numeric limit that can be atomically updated.
type Sysatomic_t int64

/// Syslimit_t tracks system wide resource limits.
//
// Biscuit's original struct also tracked ARP/route-table entries, TCP
// segment reassembly budgets, and socket/pipe counts; networking and pipes
// are both out of scope for this kernel so those fields are gone rather
// than carried dead.
type Syslimit_t struct {
	// protected by the process table lock
	Sysprocs int
	// protected by the vfs node-pool lock
	Vnodes int
	// additional memory filesystem per-page objects; each memfile gets one
	// freebie.
	Mfspgs Sysatomic_t
	// bdev blocks available to the ramdisk/SimpleFS shim
	Blocks int
	// open file-description slots, system wide
	Files Sysatomic_t
}

/// Syslimit describes the configured system wide limits.
var Syslimit *Syslimit_t = MkSysLimit()

/// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Sysprocs: 64, // MAX_PROCESSES
		Vnodes:   4096,
		Mfspgs:   4096,
		Blocks:   16384,
		Files:    16384,
	}
}

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	atomic.AddInt64(s._aptr(), n)
}

/// Taken tries to decrement the limit by the provided amount.
/// It returns true on success.
func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	return false
}

/// Take decrements the limit and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}
