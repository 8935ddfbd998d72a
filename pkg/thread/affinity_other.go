//go:build !linux

package thread

import (
	"fmt"

	"github.com/jzx17/threadpool/pkg/types"
)

func setAffinity(cpu int) error {
	if cpu < 0 || cpu >= maxCPU {
		return fmt.Errorf("%w: %d", types.ErrInvalidCPU, cpu)
	}
	return types.ErrAffinityUnsupported
}
