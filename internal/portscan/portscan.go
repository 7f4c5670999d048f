// Package portscan finds a free TCP port. Grounded on
// original_source/crates/oxidepm/src/commands/check.rs's
// is_port_in_use/find_available_port (bind-probe both IPv4 and IPv6
// wildcard addresses; linear scan forward from a starting port).
package portscan

import (
	"fmt"
	"net"
)

// InUse reports whether port is already bound on this host, checking both
// IPv4 and IPv6 wildcard addresses the same way the original check does.
func InUse(port int) bool {
	if l, err := net.Listen("tcp4", fmt.Sprintf("0.0.0.0:%d", port)); err == nil {
		_ = l.Close()
	} else {
		return true
	}
	if l, err := net.Listen("tcp6", fmt.Sprintf("[::]:%d", port)); err == nil {
		_ = l.Close()
	} else {
		return true
	}
	return false
}

// FindAvailable scans forward from start (inclusive) through the top of the
// port range, returning the first free port. Returns 0, false if none is
// free up to 65535.
func FindAvailable(start int) (int, bool) {
	for port := start; port <= 65535; port++ {
		if !InUse(port) {
			return port, true
		}
	}
	return 0, false
}
