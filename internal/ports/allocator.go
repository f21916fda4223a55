// Package ports hands out and reclaims TCP ports in a fixed half-open
// range for worker processes/containers (spec.md §4.1).
package ports

import (
	"net"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrNoPorts is returned when the range is exhausted.
var ErrNoPorts = errors.New("no free ports in range")

// ErrPortInUse is returned by Reserve when the caller-supplied port is
// already allocated or fails the OS-level probe.
var ErrPortInUse = errors.New("port already in use")

// Allocator hands out ports from [Low, High) and tracks which worker owns
// each one. The zero value is not usable; construct with New.
type Allocator struct {
	low, high int

	mu    sync.Mutex
	owner map[int]string // port -> worker id
}

// New creates an Allocator over the half-open range [low, high).
func New(low, high int) *Allocator {
	return &Allocator{
		low:   low,
		high:  high,
		owner: make(map[int]string),
	}
}

// Allocate returns the lowest port in range not already tracked and not
// bound by a foreign process, and records it as owned by workerID.
func (a *Allocator) Allocate(workerID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for port := a.low; port < a.high; port++ {
		if _, taken := a.owner[port]; taken {
			continue
		}
		if !probeFree(port) {
			continue
		}
		a.owner[port] = workerID
		return port, nil
	}
	return 0, ErrNoPorts
}

// Reserve claims a caller-supplied port (the "port?" field of spawn),
// verifying it is untracked and OS-free.
func (a *Allocator) Reserve(port int, workerID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, taken := a.owner[port]; taken {
		return errors.Wrapf(ErrPortInUse, "port %d", port)
	}
	if !probeFree(port) {
		return errors.Wrapf(ErrPortInUse, "port %d", port)
	}
	a.owner[port] = workerID
	return nil
}

// Release frees port. Idempotent: releasing an untracked port is a no-op.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.owner, port)
}

// OwnerOf returns the worker id holding port, if any.
func (a *Allocator) OwnerOf(port int) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.owner[port]
	return id, ok
}

// Range reports the allocator's configured [low, high) bounds.
func (a *Allocator) Range() (low, high int) {
	return a.low, a.high
}

// probeFree attempts to bind/listen and immediately release the port,
// treating bind failure as "in use by a foreign process" (spec.md §4.1).
// Every bind failure counts as occupancy, whatever its cause: a port whose
// probe fails for another reason (e.g. a permission error) is reported as
// not free; it is not assumed free.
func probeFree(port int) bool {
	ln, err := net.Listen("tcp", addr(port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

func addr(port int) string {
	return "127.0.0.1:" + strconv.Itoa(port)
}
