package ports

import (
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestResolveFixedPort(t *testing.T) {
	port, err := FindFreePort()
	if err != nil {
		t.Fatalf("FindFreePort: %v", err)
	}
	a := NewAllocator(nil)
	alloc, err := a.Resolve("api", &port)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if alloc.Port != port || alloc.Auto {
		t.Errorf("Resolve() = %+v, want fixed port %d", alloc, port)
	}
}

func TestResolveFixedPortInUse(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer lis.Close()
	busy := lis.Addr().(*net.TCPAddr).Port

	a := NewAllocator(nil)
	_, err = a.Resolve("api", &busy)
	var inUse *PortInUseError
	if !errors.As(err, &inUse) {
		t.Fatalf("expected *PortInUseError, got %T: %v", err, err)
	}
	if inUse.Port != busy || inUse.Resource != "api" {
		t.Errorf("error fields = %+v", inUse)
	}
}

func TestResolveStickyPortReused(t *testing.T) {
	sticky, err := FindFreePort()
	if err != nil {
		t.Fatalf("FindFreePort: %v", err)
	}
	a := NewAllocator(map[string]int{"postgres": sticky})
	alloc, err := a.Resolve("postgres", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if alloc.Port != sticky || !alloc.Auto {
		t.Errorf("Resolve() = %+v, want sticky auto port %d", alloc, sticky)
	}
}

func TestResolveStickyPortBusyFallsBack(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer lis.Close()
	busy := lis.Addr().(*net.TCPAddr).Port

	a := NewAllocator(map[string]int{"postgres": busy})
	alloc, err := a.Resolve("postgres", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if alloc.Port == busy {
		t.Error("a busy sticky port must not be reused")
	}
	if !alloc.Auto {
		t.Error("fallback allocation should still be auto")
	}
	if a.Sticky()["postgres"] != alloc.Port {
		t.Errorf("sticky table should record the new port %d, got %v", alloc.Port, a.Sticky())
	}
}

func TestResolveStickyClaimedBySiblingNotReused(t *testing.T) {
	port, err := FindFreePort()
	if err != nil {
		t.Fatalf("FindFreePort: %v", err)
	}
	a := NewAllocator(map[string]int{"first": port, "second": port})
	first, err := a.Resolve("first", nil)
	if err != nil {
		t.Fatalf("Resolve(first): %v", err)
	}
	second, err := a.Resolve("second", nil)
	if err != nil {
		t.Fatalf("Resolve(second): %v", err)
	}
	if first.Port == second.Port {
		t.Errorf("siblings were handed the same port %d", first.Port)
	}
}

func TestResolveFixedCollidesWithEarlierClaim(t *testing.T) {
	port, err := FindFreePort()
	if err != nil {
		t.Fatalf("FindFreePort: %v", err)
	}
	a := NewAllocator(nil)
	if _, err := a.Resolve("one", &port); err != nil {
		t.Fatalf("Resolve(one): %v", err)
	}
	if _, err := a.Resolve("two", &port); err == nil {
		t.Fatal("expected an in-run claim conflict")
	}
}

func TestResolvePreferred(t *testing.T) {
	preferred, err := FindFreePort()
	if err != nil {
		t.Fatalf("FindFreePort: %v", err)
	}
	a := NewAllocator(nil)
	alloc, err := a.ResolvePreferred("dashboard", preferred)
	if err != nil {
		t.Fatalf("ResolvePreferred: %v", err)
	}
	if alloc.Port != preferred {
		t.Errorf("free preferred port should win, got %d want %d", alloc.Port, preferred)
	}

	// Second run: the sticky assignment takes priority over a changed
	// preferred default.
	other := preferred + 1
	b := NewAllocator(a.Sticky())
	realloc, err := b.ResolvePreferred("dashboard", other)
	if err != nil {
		t.Fatalf("ResolvePreferred: %v", err)
	}
	if realloc.Port != preferred {
		t.Errorf("sticky port should be reused, got %d want %d", realloc.Port, preferred)
	}
}

func TestCheckAvailable(t *testing.T) {
	port, err := FindFreePort()
	if err != nil {
		t.Fatalf("FindFreePort: %v", err)
	}
	if !CheckAvailable(port) {
		t.Errorf("freshly released port %d reported unavailable", port)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Skipf("could not rebind %d: %v", port, err)
	}
	defer lis.Close()
	if CheckAvailable(port) {
		t.Errorf("bound port %d reported available", port)
	}
}
