//go:build linux

package thread

import (
	"fmt"

	"github.com/jzx17/threadpool/pkg/types"
	"golang.org/x/sys/unix"
)

// setAffinity pins the calling OS thread to cpu. The goroutine must already be
// locked to its thread.
func setAffinity(cpu int) error {
	if cpu < 0 || cpu >= maxCPU {
		return fmt.Errorf("%w: %d", types.ErrInvalidCPU, cpu)
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("sched_setaffinity cpu %d: %w", cpu, err)
	}
	return nil
}
