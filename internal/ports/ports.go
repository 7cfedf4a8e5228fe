// Package ports hands out unused local ports for the loopback bridge between
// the tunnel engine and the edge proxy.
package ports

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	psnet "github.com/shirou/gopsutil/v4/net"
)

// Default allocation range.
const (
	DefaultFirst = 42000
	DefaultLast  = 65535
)

// ErrExhausted is returned when every port in the range is bound or reserved.
var ErrExhausted = errors.New("no free port in range")

// SnapshotFunc returns the set of ports currently bound on this host.
type SnapshotFunc func(ctx context.Context) (map[int]struct{}, error)

// Allocator reserves ports for one configuration generation.
//
// A port is never handed out twice within a generation and is never one that
// showed up in the socket snapshot taken at allocation time. Nothing is
// bound, so another process can still grab the port before the edge proxy
// does.
type Allocator struct {
	First int
	Last  int

	snapshot SnapshotFunc

	mu       sync.Mutex
	reserved map[int]struct{}
}

// New returns an allocator over [first, last] backed by the host socket table.
func New(first, last int) *Allocator {
	return NewWithSnapshot(first, last, BoundPorts)
}

// NewWithSnapshot returns an allocator using the given snapshot source.
func NewWithSnapshot(first, last int, snapshot SnapshotFunc) *Allocator {
	if first <= 0 {
		first = DefaultFirst
	}
	if last <= 0 || last > DefaultLast {
		last = DefaultLast
	}
	if snapshot == nil {
		snapshot = BoundPorts
	}
	return &Allocator{
		First:    first,
		Last:     last,
		snapshot: snapshot,
		reserved: make(map[int]struct{}),
	}
}

// Allocate reserves and returns the lowest port in range that is neither
// bound nor already reserved.
func (a *Allocator) Allocate(ctx context.Context) (int, error) {
	bound, err := a.snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing bound ports: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for port := a.First; port <= a.Last; port++ {
		if _, ok := bound[port]; ok {
			continue
		}
		if _, ok := a.reserved[port]; ok {
			continue
		}
		a.reserved[port] = struct{}{}
		return port, nil
	}
	return 0, fmt.Errorf("allocating %d-%d: %w", a.First, a.Last, ErrExhausted)
}

// Reset clears the reservation set.
func (a *Allocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.reserved)
}

// Fork returns an empty allocator with the same range and snapshot source.
func (a *Allocator) Fork() *Allocator {
	return NewWithSnapshot(a.First, a.Last, a.snapshot)
}

// Adopt replaces the reservation set with the one held by other.
func (a *Allocator) Adopt(other *Allocator) {
	if other == nil || other == a {
		return
	}
	reserved := other.Reserved()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.reserved = make(map[int]struct{}, len(reserved))
	for _, p := range reserved {
		a.reserved[p] = struct{}{}
	}
}

// Reserved returns the reserved ports in ascending order.
func (a *Allocator) Reserved() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int, 0, len(a.reserved))
	for p := range a.reserved {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// BoundPorts lists the local ports of every TCP and UDP socket on the host.
func BoundPorts(ctx context.Context) (map[int]struct{}, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "all")
	if err != nil {
		return nil, err
	}
	out := make(map[int]struct{}, len(conns))
	for _, c := range conns {
		if c.Laddr.Port == 0 {
			continue
		}
		out[int(c.Laddr.Port)] = struct{}{}
	}
	return out, nil
}
