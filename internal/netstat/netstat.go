// Package netstat provides the cheap environment preconditions consulted
// before any outbound HTTP request is created.
package netstat

import (
	"net"
	"runtime"
)

// DefaultHeapCeiling bounds the process heap the way the original hardware
// bounded its RAM; headroom is measured against it.
const DefaultHeapCeiling = 64 << 20

// Checker answers "is the network up" and "how much heap headroom is left".
// Both calls are non-blocking and safe from cooperative ticks.
type Checker struct {
	// Probe overrides the connectivity test, for tests.
	Probe func() bool
	// HeapCeiling is the nominal heap budget; zero means DefaultHeapCeiling.
	HeapCeiling uint64
}

// Connected reports whether at least one non-loopback interface is up with
// an address assigned.
func (c *Checker) Connected() bool {
	if c.Probe != nil {
		return c.Probe()
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// HeapFree returns the remaining headroom under the heap ceiling.
func (c *Checker) HeapFree() uint64 {
	ceiling := c.HeapCeiling
	if ceiling == 0 {
		ceiling = DefaultHeapCeiling
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapAlloc >= ceiling {
		return 0
	}
	return ceiling - ms.HeapAlloc
}
