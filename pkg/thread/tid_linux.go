//go:build linux

package thread

import "golang.org/x/sys/unix"

// currentThreadID returns the kernel id of the calling OS thread.
func currentThreadID() ID {
	return ID(unix.Gettid())
}

// threadIDsAreNative reports whether currentThreadID identifies OS threads.
const threadIDsAreNative = true
