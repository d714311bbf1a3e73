package kerrors

// Kernel errno codes
const (
	EPERM        int64 = 1  // Operation not permitted
	ENOENT       int64 = 2  // No such file or directory
	ESRCH        int64 = 3  // No such process
	EBADF        int64 = 9  // Bad file descriptor
	ENOMEM       int64 = 12 // Out of memory
	EACCES       int64 = 13 // Permission denied
	EBUSY        int64 = 16 // Device or resource busy
	EEXIST       int64 = 17 // File exists
	ENOTDIR      int64 = 20 // Not a directory
	EISDIR       int64 = 21 // Is a directory
	EINVAL       int64 = 22 // Invalid argument
	ENFILE       int64 = 23 // File table overflow
	EMFILE       int64 = 24 // Too many open files
	ENOSPC       int64 = 28 // No space left on device
	ENAMETOOLONG int64 = 36 // File name too long
	ENOTEMPTY    int64 = 39 // Directory not empty

	ENOMEM_NEG int64 = -ENOMEM // Out of memory (negative)
	EINVAL_NEG int64 = -EINVAL // Invalid argument (negative)
)
