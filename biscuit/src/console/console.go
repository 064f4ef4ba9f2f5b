// Package console implements the single canonical-mode TTY device. It is
// Biscuit's own console driver rewritten for an SBI-backed UART instead
// of a PC keyboard/VGA pair: line discipline, echo, and the read-wait
// queue follow the same shape.
package console

import (
	"sync"

	"circbuf"
	"defs"
	"fdops"
	"proc"
	"sbi"
	"stat"
)

// LineBufSize and InputBufSize are both comfortably above the 256-byte
// floor for the line buffer and the raw input ring.
const (
	LineBufSize  = 512
	InputBufSize = 512
)

// Tty_t is the kernel's one console device: a line-discipline buffer that
// accumulates characters until a newline, a queue of completed lines, and
// a queue of readers blocked waiting for a complete line. The raw circbuf
// ring is sized by Init but the receive path does not use it: Interrupt
// applies the line discipline to each byte directly.
type Tty_t struct {
	sync.Mutex
	raw     circbuf.Circbuf_t
	line    [LineBufSize]uint8
	lineLen int
	readyq  []uint8 // completed lines waiting to be consumed by Read
	waiters proc.WaitQueue_t
}

// console is the single global instance; this kernel's device model has
// exactly one console, pre-mounted at /dev/console and /dev/tty.
var console Tty_t

// Init prepares the console's backing ring buffer. Must run after the
// frame allocator but before any process can open /dev/console.
func Init() {
	console.raw.Cb_init(InputBufSize)
}

// Default returns the single console device.
func Default() *Tty_t {
	return &console
}

// Echo policy: every received byte is echoed back out
// immediately, including the newline, backspace erasing the last buffered
// character's on-screen glyph too.
const (
	bs  = 0x08
	del = 0x7f
	nl  = '\n'
	cr  = '\r'
)

// Interrupt is called from the UART receive path (polled from the trap
// handler on timer and external interrupts, since this target has no PLIC
// wired in) with one newly arrived byte. It
// implements the line discipline: ordinary characters accumulate in the
// line buffer and are echoed; backspace/delete erases the last buffered
// character; a newline closes the line out to readyq and wakes any reader
// blocked in Read.
func (tty *Tty_t) Interrupt(c uint8) {
	tty.Lock()
	defer tty.Unlock()

	switch c {
	case bs, del:
		if tty.lineLen > 0 {
			tty.lineLen--
			sbi.PutChar(bs)
			sbi.PutChar(' ')
			sbi.PutChar(bs)
		}
		return
	case cr:
		c = nl
	}

	sbi.PutChar(c)
	if tty.lineLen < len(tty.line) {
		tty.line[tty.lineLen] = c
		tty.lineLen++
	}
	if c == nl {
		tty.readyq = append(tty.readyq, tty.line[:tty.lineLen]...)
		tty.lineLen = 0
		proc.WakeAll(&tty.waiters)
	}
}

// Poll drains whatever bytes are currently pending from the SBI console
// and feeds them through Interrupt -- the substitute for a PLIC-delivered
// UART RX interrupt. This port implements no PLIC; polling from the trap
// handler on each timer or external interrupt plays the same role for a
// single-hart, no-PLIC target.
func (tty *Tty_t) Poll() {
	for {
		c, ok := sbi.GetChar()
		if !ok {
			return
		}
		tty.Interrupt(c)
	}
}

// Read blocks until at least one complete line is available, then copies
// as many queued bytes as dst has room for, which can span more than one
// line. A short read leaves the remainder queued for the next Read.
func (tty *Tty_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	tty.Lock()
	for len(tty.readyq) == 0 {
		tty.Unlock()
		proc.SleepOn(0, &tty.waiters)
		tty.Lock()
	}
	n := len(tty.readyq)
	wrote, err := func() (int, defs.Err_t) {
		defer tty.Unlock()
		return dst.Uiowrite(tty.readyq)
	}()
	if err != 0 {
		return 0, err
	}
	tty.Lock()
	tty.readyq = tty.readyq[wrote:]
	tty.Unlock()
	_ = n
	return wrote, 0
}

// Write echoes every byte of src straight to the UART: console output
// is unbuffered from the kernel's point of view.
func (tty *Tty_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	var buf [64]uint8
	total := 0
	for {
		n, err := src.Uioread(buf[:])
		if err != 0 {
			return total, err
		}
		if n == 0 {
			return total, 0
		}
		for i := 0; i < n; i++ {
			sbi.PutChar(buf[i])
		}
		total += n
	}
}

// Fdops_t adapts Tty_t to fdops.Fdops_i: the FD layer never knows it is
// talking to a TTY rather than a file.
type Fdops_t struct {
	tty *Tty_t
}

// NewFdops returns an fdops.Fdops_i bound to the single console device.
func NewFdops() *Fdops_t {
	return &Fdops_t{tty: &console}
}

func (f *Fdops_t) Close() defs.Err_t { return 0 }

func (f *Fdops_t) Fstat(st fdops.Stat_i) defs.Err_t {
	st.Wmode(uint(stat.S_IFCHR) | 0666)
	st.Wrdev(0)
	return 0
}

func (f *Fdops_t) Lseek(off int, whence int) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}

func (f *Fdops_t) Mmapi(offset, len int, inhibited bool) ([]fdops.MmapInfo_t, defs.Err_t) {
	return nil, -defs.ENODEV
}

func (f *Fdops_t) Pathi() interface{} { return nil }

func (f *Fdops_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	return f.tty.Read(dst)
}

func (f *Fdops_t) Reopen() defs.Err_t { return 0 }

func (f *Fdops_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	return f.tty.Write(src)
}
