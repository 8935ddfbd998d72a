//go:build !linux

package thread

// currentThreadID has no portable implementation; threads are given synthetic
// ids at start and lookups by the calling thread are unavailable.
func currentThreadID() ID {
	return 0
}

const threadIDsAreNative = false
