package probe

import "fmt"

// syscallNames maps x86-64 syscall numbers to names. The probe records raw
// numbers; unlisted ones render as syscall_<nr>.
var syscallNames = map[uint64]string{
	0: "read", 1: "write", 2: "open", 3: "close", 4: "stat", 5: "fstat",
	6: "lstat", 7: "poll", 8: "lseek", 9: "mmap", 10: "mprotect", 11: "munmap",
	12: "brk", 13: "rt_sigaction", 14: "rt_sigprocmask", 16: "ioctl",
	17: "pread64", 18: "pwrite64", 19: "readv", 20: "writev", 21: "access",
	22: "pipe", 23: "select", 24: "sched_yield", 25: "mremap", 26: "msync",
	28: "madvise", 32: "dup", 33: "dup2", 35: "nanosleep", 39: "getpid",
	40: "sendfile", 41: "socket", 42: "connect", 43: "accept", 44: "sendto",
	45: "recvfrom", 46: "sendmsg", 47: "recvmsg", 48: "shutdown", 49: "bind",
	50: "listen", 51: "getsockname", 52: "getpeername", 53: "socketpair",
	54: "setsockopt", 55: "getsockopt", 56: "clone", 57: "fork", 58: "vfork",
	59: "execve", 60: "exit", 61: "wait4", 62: "kill", 63: "uname",
	72: "fcntl", 73: "flock", 74: "fsync", 75: "fdatasync", 76: "truncate",
	77: "ftruncate", 78: "getdents", 79: "getcwd", 80: "chdir", 81: "fchdir",
	82: "rename", 83: "mkdir", 84: "rmdir", 85: "creat", 86: "link",
	87: "unlink", 88: "symlink", 89: "readlink", 90: "chmod", 91: "fchmod",
	92: "chown", 93: "fchown", 95: "umask", 96: "gettimeofday",
	97: "getrlimit", 98: "getrusage", 99: "sysinfo", 101: "ptrace",
	102: "getuid", 104: "getgid", 105: "setuid", 106: "setgid",
	107: "geteuid", 108: "getegid", 109: "setpgid", 110: "getppid",
	157: "prctl", 158: "arch_prctl", 186: "gettid", 200: "tkill",
	202: "futex", 217: "getdents64", 218: "set_tid_address",
	228: "clock_gettime", 230: "clock_nanosleep", 231: "exit_group",
	232: "epoll_wait", 233: "epoll_ctl", 234: "tgkill", 257: "openat",
	258: "mkdirat", 262: "newfstatat", 263: "unlinkat", 264: "renameat",
	266: "symlinkat", 267: "readlinkat", 268: "fchmodat", 270: "pselect6",
	271: "ppoll", 281: "epoll_pwait", 288: "accept4", 290: "eventfd2",
	291: "epoll_create1", 292: "dup3", 293: "pipe2", 302: "prlimit64",
	310: "process_vm_readv", 311: "process_vm_writev", 316: "renameat2",
	318: "getrandom", 319: "memfd_create", 322: "execveat", 332: "statx",
	435: "clone3", 439: "faccessat2",
}

// errnoNames maps Linux errno values to names. Unlisted ones render as
// errno_<n>.
var errnoNames = map[int64]string{
	1: "EPERM", 2: "ENOENT", 3: "ESRCH", 4: "EINTR", 5: "EIO", 6: "ENXIO",
	7: "E2BIG", 8: "ENOEXEC", 9: "EBADF", 10: "ECHILD", 11: "EAGAIN",
	12: "ENOMEM", 13: "EACCES", 14: "EFAULT", 16: "EBUSY", 17: "EEXIST",
	18: "EXDEV", 19: "ENODEV", 20: "ENOTDIR", 21: "EISDIR", 22: "EINVAL",
	23: "ENFILE", 24: "EMFILE", 25: "ENOTTY", 26: "ETXTBSY", 27: "EFBIG",
	28: "ENOSPC", 29: "ESPIPE", 30: "EROFS", 31: "EMLINK", 32: "EPIPE",
	33: "EDOM", 34: "ERANGE", 36: "ENAMETOOLONG", 38: "ENOSYS",
	39: "ENOTEMPTY", 40: "ELOOP", 88: "ENOTSOCK", 90: "EMSGSIZE",
	93: "EPROTONOSUPPORT", 95: "EOPNOTSUPP", 97: "EAFNOSUPPORT",
	98: "EADDRINUSE", 99: "EADDRNOTAVAIL", 100: "ENETDOWN",
	101: "ENETUNREACH", 104: "ECONNRESET", 105: "ENOBUFS", 106: "EISCONN",
	107: "ENOTCONN", 110: "ETIMEDOUT", 111: "ECONNREFUSED",
	113: "EHOSTUNREACH", 114: "EALREADY", 115: "EINPROGRESS",
}

func syscallName(nr uint64) string {
	if name, ok := syscallNames[nr]; ok {
		return name
	}
	return fmt.Sprintf("syscall_%d", nr)
}

func errnoName(n int64) string {
	if name, ok := errnoNames[n]; ok {
		return name
	}
	return fmt.Sprintf("errno_%d", n)
}
