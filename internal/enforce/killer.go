package enforce

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/ppiankov/flowgraph/internal/model"
)

// Killer terminates processes.
type Killer interface {
	Kill(pid model.PID) error
}

// SignalKiller sends SIGKILL. A process that is already gone is not an error.
type SignalKiller struct{}

// Kill sends SIGKILL to pid.
func (SignalKiller) Kill(pid model.PID) error {
	if pid <= 0 {
		return fmt.Errorf("refusing to signal pid %d", pid)
	}
	err := syscall.Kill(int(pid), syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// Cmdline reads /proc/<pid>/cmdline as a space-separated string. It returns
// "" when the process is gone or procfs is unavailable.
func Cmdline(pid model.PID) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return ""
	}
	// cmdline uses null bytes as separators
	parts := strings.FieldsFunc(string(data), func(r rune) bool { return r == 0 })
	return strings.Join(parts, " ")
}
