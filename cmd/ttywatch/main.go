// Command ttywatch is a host-side terminal viewer that attaches to the
// QEMU UART pty and renders the canonical-mode console session exactly as
// the in-kernel TTY line discipline produces it: raw bytes pass straight
// through to the operator's real terminal (which already knows how to
// render VT100/ANSI control sequences). A charmbracelet/x/vt emulator is
// fed the same byte stream and resized on SIGWINCH; nothing reads its
// screen state back.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/charmbracelet/x/term"
	"github.com/charmbracelet/x/vt"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Printf("%s <path to QEMU's UART pty>\n", os.Args[0])
		os.Exit(1)
	}
	ptyPath := os.Args[1]

	pty, err := os.OpenFile(ptyPath, os.O_RDWR, 0)
	if err != nil {
		fmt.Printf("ttywatch: opening %s: %v\n", ptyPath, err)
		os.Exit(1)
	}
	defer pty.Close()

	stdinFd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(stdinFd)
	if err != nil {
		fmt.Printf("ttywatch: putting local terminal into raw mode: %v\n", err)
		os.Exit(1)
	}
	defer term.Restore(stdinFd, state)

	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		cols, rows = 80, 24
	}
	emu := vt.NewEmulator(cols, rows)

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		for range winch {
			if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				emu.Resize(w, h)
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)

	// kernel console -> operator terminal, mirrored into emu.
	go func() {
		defer wg.Done()
		buf := make([]byte, 4096)
		for {
			n, rerr := pty.Read(buf)
			if n > 0 {
				os.Stdout.Write(buf[:n])
				_, _ = emu.Write(buf[:n])
			}
			if rerr != nil {
				return
			}
		}
	}()

	// operator keystrokes -> kernel console.
	go func() {
		defer wg.Done()
		io.Copy(pty, os.Stdin)
	}()

	wg.Wait()
}
