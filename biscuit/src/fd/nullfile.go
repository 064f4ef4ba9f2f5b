package fd

import (
	"defs"
	"fdops"
	"stat"
)

/// NullFile_t implements /dev/null: reads always return EOF, writes always
/// report every byte consumed.
type NullFile_t struct{}

/// NewNullFile returns the null device's Fdops_i. Stateless, so every open
/// can share one value.
func NewNullFile() *NullFile_t { return &NullFile_t{} }

func (f *NullFile_t) Close() defs.Err_t { return 0 }

func (f *NullFile_t) Fstat(st fdops.Stat_i) defs.Err_t {
	st.Wmode(uint(stat.S_IFCHR) | 0666)
	return 0
}

func (f *NullFile_t) Lseek(off int, whence int) (int, defs.Err_t) { return 0, 0 }

func (f *NullFile_t) Mmapi(offset, len int, inhibited bool) ([]fdops.MmapInfo_t, defs.Err_t) {
	return nil, -defs.ENODEV
}

func (f *NullFile_t) Pathi() interface{} { return nil }

func (f *NullFile_t) Read(dst fdops.Userio_i) (int, defs.Err_t) { return 0, 0 }

func (f *NullFile_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	return src.Remain(), 0
}

func (f *NullFile_t) Reopen() defs.Err_t { return 0 }
