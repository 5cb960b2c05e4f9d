// Package ports allocates and validates the TCP ports a project's
// services, containers, and cluster port-forwards bind to. Fixed ports
// are validated by a real bind-then-release probe; auto ports are
// assigned from the ephemeral range and kept sticky across restarts so
// a service's URL does not change every time it's bumped.
package ports

import (
	"fmt"
	"net"
	"sync"
)

// Allocation records which port was ultimately assigned to a resource
// and whether it came from the manifest or was chosen automatically.
type Allocation struct {
	Resource string
	Port     int
	Auto     bool
}

// Allocator hands out and validates ports for one project run. It is
// safe for concurrent use; the orchestrator resolves resources' ports
// one at a time.
type Allocator struct {
	mu       sync.Mutex
	sticky   map[string]int // resource -> last auto-assigned port, carried from the prior run's state file
	assigned map[int]string // port -> resource, to catch a sticky port colliding with a newly-requested fixed port
}

// NewAllocator builds an Allocator. sticky is the auto-port assignment
// table persisted from the project's last run (may be nil).
func NewAllocator(sticky map[string]int) *Allocator {
	if sticky == nil {
		sticky = map[string]int{}
	}
	return &Allocator{sticky: sticky, assigned: map[int]string{}}
}

// CheckAvailable reports whether port is free by actually binding to
// it and releasing it immediately, rather than trusting a stale
// snapshot of listeners.
func CheckAvailable(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// FindFreePort asks the OS for an ephemeral port by binding to port 0.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("allocating ephemeral port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// Resolve assigns a concrete port for resource. If fixed is non-nil the
// fixed value is validated for availability; otherwise a sticky port
// from the prior run is reused if it's still free, falling back to a
// fresh ephemeral allocation.
func (a *Allocator) Resolve(resource string, fixed *int) (Allocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if fixed != nil {
		if owner, ok := a.assigned[*fixed]; ok && owner != resource {
			return Allocation{}, fmt.Errorf("port %d requested by %q is already claimed by %q in this manifest", *fixed, resource, owner)
		}
		if !CheckAvailable(*fixed) {
			pid, cmd := IdentifyOwner(*fixed)
			return Allocation{}, &PortInUseError{Resource: resource, Port: *fixed, OwningPID: pid, OwningCmd: cmd}
		}
		a.assigned[*fixed] = resource
		return Allocation{Resource: resource, Port: *fixed}, nil
	}

	if prior, ok := a.sticky[resource]; ok {
		if owner, taken := a.assigned[prior]; !taken || owner == resource {
			if CheckAvailable(prior) {
				a.assigned[prior] = resource
				return Allocation{Resource: resource, Port: prior, Auto: true}, nil
			}
		}
	}

	port, err := FindFreePort()
	if err != nil {
		return Allocation{}, err
	}
	a.assigned[port] = resource
	a.sticky[resource] = port
	return Allocation{Resource: resource, Port: port, Auto: true}, nil
}

// ResolvePreferred assigns a port for a resource that has a preferred
// default rather than a manifest-fixed requirement — the dashboard and
// OTLP receivers. A sticky port from the prior run wins when still
// free, then the preferred default, then a fresh ephemeral allocation;
// a busy preferred port is a fallback, never a startup failure.
func (a *Allocator) ResolvePreferred(resource string, preferred int) (Allocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if prior, ok := a.sticky[resource]; ok {
		if owner, taken := a.assigned[prior]; !taken || owner == resource {
			if CheckAvailable(prior) {
				a.assigned[prior] = resource
				return Allocation{Resource: resource, Port: prior, Auto: true}, nil
			}
		}
	}
	if _, taken := a.assigned[preferred]; !taken && CheckAvailable(preferred) {
		a.assigned[preferred] = resource
		a.sticky[resource] = preferred
		return Allocation{Resource: resource, Port: preferred, Auto: true}, nil
	}

	port, err := FindFreePort()
	if err != nil {
		return Allocation{}, err
	}
	a.assigned[port] = resource
	a.sticky[resource] = port
	return Allocation{Resource: resource, Port: port, Auto: true}, nil
}

// Sticky returns the current resource->port table, to be persisted into
// the project's state file for the next run.
func (a *Allocator) Sticky() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.sticky))
	for k, v := range a.sticky {
		out[k] = v
	}
	return out
}

// PortInUseError reports a fixed port the manifest requested that is
// already bound by some other process on the host. OwningPID/OwningCmd
// are populated best-effort by IdentifyOwner.
type PortInUseError struct {
	Resource  string
	Port      int
	OwningPID int
	OwningCmd string
}

func (e *PortInUseError) Error() string {
	if e.OwningPID != 0 {
		return fmt.Sprintf("port %d required by %q is already in use by %s (pid %d)", e.Port, e.Resource, e.OwningCmd, e.OwningPID)
	}
	return fmt.Sprintf("port %d required by %q is already in use", e.Port, e.Resource)
}
