package kernel

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// FaultInfo describes a fatal kernel invariant violation.
type FaultInfo struct {
	Kernel *Kernel
	Reason string
	Stack  []byte
}

var (
	faultActive atomic.Bool
	faultOnce   sync.Once

	faultHandler atomic.Value // func(FaultInfo)
)

// InFaultMode reports whether a kernel invariant violation has occurred.
func InFaultMode() bool {
	return faultActive.Load()
}

// SetFaultHandler installs a process-wide handler for invariant violations.
//
// The handler is invoked at most once (on the first fault), before the
// kernel aborts. It must not panic.
func SetFaultHandler(fn func(FaultInfo)) {
	faultHandler.Store(fn)
}

// fault reports a kernel-level bug or state corruption. These are never
// returned to callers: continuing past one is not safe.
func (k *Kernel) fault(format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	faultOnce.Do(func() {
		faultActive.Store(true)
		info := FaultInfo{Kernel: k, Reason: reason, Stack: captureStack()}
		if v := faultHandler.Load(); v != nil {
			if fn, ok := v.(func(FaultInfo)); ok && fn != nil {
				fn(info)
			}
		}
	})
	panic("kernel: " + reason)
}

func captureStack() []byte {
	buf := make([]byte, 16<<10)
	n := runtime.Stack(buf, false)
	return buf[:n]
}
