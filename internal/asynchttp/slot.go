package asynchttp

import (
	"errors"

	"github.com/gridwatch/energy-monitor/internal/netstat"
)

// MinFreeHeap is the heap headroom required before a request may be created.
const MinFreeHeap = 15000

// Acquire failure reasons. All are environmental transients; callers retry
// with a short backoff.
var (
	ErrOffline = errors.New("asynchttp: network not connected")
	ErrLowHeap = errors.New("asynchttp: heap headroom below floor")
	ErrBusy    = errors.New("asynchttp: no request slot free")
)

// SlotManager guards the process-wide budget of concurrent outbound
// requests. All reporting services share one manager; calls happen only from
// cooperative ticks.
type SlotManager struct {
	free    int
	checker *netstat.Checker
}

// NewSlotManager creates a manager with the given slot count.
func NewSlotManager(slots int, checker *netstat.Checker) *SlotManager {
	if checker == nil {
		checker = &netstat.Checker{}
	}
	return &SlotManager{free: slots, checker: checker}
}

// Acquire claims a slot after checking the environment preconditions.
func (m *SlotManager) Acquire() error {
	if !m.checker.Connected() {
		return ErrOffline
	}
	if m.checker.HeapFree() < MinFreeHeap {
		return ErrLowHeap
	}
	if m.free <= 0 {
		return ErrBusy
	}
	m.free--
	return nil
}

// Release returns a slot. Called on completion and on every abort path.
func (m *SlotManager) Release() {
	m.free++
}

// Free returns the current free slot count.
func (m *SlotManager) Free() int {
	return m.free
}
