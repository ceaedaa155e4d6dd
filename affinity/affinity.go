// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_stub.go) guarded by build tags.

package affinity

import "runtime"

// SetAffinity pins the current OS thread to a logical CPU. The caller must
// hold runtime.LockOSThread for the pin to stay with its goroutine.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}

// Pin locks the calling goroutine to its OS thread and pins that thread to
// cpuID. A negative cpuID only locks the thread.
func Pin(cpuID int) error {
	runtime.LockOSThread()
	if cpuID < 0 {
		return nil
	}
	return SetAffinity(cpuID)
}

// Unpin releases the thread lock taken by Pin. Threads pinned to a CPU should
// stay locked instead so they exit with their goroutine.
func Unpin() {
	runtime.UnlockOSThread()
}
