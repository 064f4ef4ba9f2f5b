// Package defs holds the types and constants shared across every kernel
// package: the error code convention, process/thread identifiers, and the
// syscall numbers that make up the user/kernel ABI.
package defs

// Err_t is a negated errno. Zero means success; a syscall's return value
// is always either a non-negative result or -Err_t, matching the Linux
// riscv64 ABI convention ("negative = -errno").
type Err_t int

// Pid_t identifies a process. Tid_t is reserved for a future thread id;
// Claudia has one thread per process, so Tid_t(p.Pid) is always valid.
type (
	Pid_t int
	Tid_t int
)

// Errno vocabulary.
const (
	EPERM        Err_t = 1
	ENOENT       Err_t = 2
	ESRCH        Err_t = 3
	EINTR        Err_t = 4
	EIO          Err_t = 5
	E2BIG        Err_t = 7
	EBADF        Err_t = 9
	ECHILD       Err_t = 10
	EAGAIN       Err_t = 11
	ENOMEM       Err_t = 12
	EFAULT       Err_t = 14
	EBUSY        Err_t = 16
	EEXIST       Err_t = 17
	ENOTDIR      Err_t = 20
	EISDIR       Err_t = 21
	EINVAL       Err_t = 22
	ENFILE       Err_t = 23
	EMFILE       Err_t = 24
	ENOTTY       Err_t = 25
	ESPIPE       Err_t = 29
	ENOSPC       Err_t = 28
	ENAMETOOLONG Err_t = 36
	ENOSYS       Err_t = 38
	ENOTEMPTY    Err_t = 39
	EDOM         Err_t = 33
	ENOTSUP      Err_t = 95
	ENODEV       Err_t = 19
	ERANGE       Err_t = 34
	ENOHEAP      Err_t = 100 // kernel-internal: syscall aborted, resource budget exhausted
)

// Recognised syscall numbers, matching the Linux riscv64 ABI.
const (
	SYS_GETCWD       = 17
	SYS_DUP          = 23
	SYS_DUP3         = 24
	SYS_FCHDIR       = 49 // alias slot; chdir below is the one Claudia dispatches
	SYS_CHDIR        = 49
	SYS_GETDENTS64   = 61
	SYS_READ         = 63
	SYS_WRITE        = 64
	SYS_LSEEK        = 62
	SYS_CLOSE        = 57
	SYS_OPENAT       = 56
	SYS_MKDIRAT      = 34
	SYS_UNLINKAT     = 35
	SYS_FSTATAT      = 79
	SYS_FSTAT        = 80
	SYS_EXIT         = 93
	SYS_NANOSLEEP    = 101
	SYS_CLOCKGETTIME = 113
	SYS_SCHEDYIELD   = 124
	SYS_KILL         = 129
	SYS_RTSIGACTION  = 134
	SYS_SETGID       = 144
	SYS_SETUID       = 146
	SYS_GETPPID      = 110
	SYS_GETPID       = 172
	SYS_GETUID       = 174
	SYS_GETEUID      = 175
	SYS_GETGID       = 176
	SYS_GETEGID      = 177
	SYS_BRK          = 214
	SYS_CLONE        = 220
	SYS_EXECVE       = 221
	SYS_WAIT4        = 260
	SYS_TIME         = 1062
)

// openat/fcntl flags used by the FD layer.
const (
	O_RDONLY   = 0x0
	O_WRONLY   = 0x1
	O_RDWR     = 0x2
	O_CREAT    = 0x40
	O_DIRECTORY = 0x10000
	O_CLOEXEC  = 0x80000
)

// lseek whence values.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// AT_FDCWD is the dirfd sentinel meaning "resolve against the caller's cwd".
const AT_FDCWD = -100

// VNode/dirent type tags, matching the getdents64 record format.
const (
	DT_FILE   = 1
	DT_DIR    = 2
	DT_DEVICE = 3
)

// MaxProcesses is the fixed process-table size.
const MaxProcesses = 64

// IdlePid and InitPid are the two reserved process ids.
const (
	IdlePid Pid_t = 0
	InitPid Pid_t = 1
)
