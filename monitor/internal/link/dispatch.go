package link

import (
	"bytes"
	"net"
	"sync"
)

// StatusFunc is called when the link status of an interface changes.
type StatusFunc func(name string, prev Status, cur Status)

// HardwareAddrFunc is called when the hardware address of an interface
// changes.
type HardwareAddrFunc func(name string, prev net.HardwareAddr, cur net.HardwareAddr)

// Observed is the last observed state of an interface.
type Observed struct {
	Status       Status
	HardwareAddr net.HardwareAddr
}

// Dispatcher tracks the last observed state of every interface and invokes
// the registered callbacks when it changes.
//
// The stores are never evicted, so they grow with the number of distinct
// interface names ever observed.
type Dispatcher struct {
	mu       sync.Mutex
	statusFn StatusFunc
	addrFn   HardwareAddrFunc
	statuses map[string]Status
	addrs    map[string]net.HardwareAddr
}

// NewDispatcher creates a new dispatcher without callbacks.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		statuses: map[string]Status{},
		addrs:    map[string]net.HardwareAddr{},
	}
}

// RegisterStatusFunc registers the link status callback.
//
// It panics if a status callback is already registered.
func (m *Dispatcher) RegisterStatusFunc(fn StatusFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.statusFn != nil {
		panic("link: status callback is already registered")
	}
	m.statusFn = fn
}

// RegisterHardwareAddrFunc registers the hardware address callback.
//
// It panics if a hardware address callback is already registered.
func (m *Dispatcher) RegisterHardwareAddrFunc(fn HardwareAddrFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.addrFn != nil {
		panic("link: hardware address callback is already registered")
	}
	m.addrFn = fn
}

// Observe records a decoded link event.
//
// The hardware address is compared first, then the status. A callback fires
// when the interface was not seen before or the value differs from the
// stored one; the stores are updated either way. Callbacks run on the
// calling goroutine, after the internal lock is released.
func (m *Dispatcher) Observe(ev Event) {
	var notify []func()

	m.mu.Lock()
	prevAddr, ok := m.addrs[ev.Name]
	if fn := m.addrFn; fn != nil && (!ok || !bytes.Equal(prevAddr, ev.HardwareAddr)) {
		notify = append(notify, func() { fn(ev.Name, prevAddr, ev.HardwareAddr) })
	}
	m.addrs[ev.Name] = ev.HardwareAddr

	prevStatus, ok := m.statuses[ev.Name]
	if !ok {
		prevStatus = StatusUnknown
	}
	if fn := m.statusFn; fn != nil && prevStatus != ev.Status {
		notify = append(notify, func() { fn(ev.Name, prevStatus, ev.Status) })
	}
	m.statuses[ev.Name] = ev.Status
	m.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
}

// Status returns the last observed status of the named interface.
func (m *Dispatcher) Status(name string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.statuses[name]
}

// HardwareAddr returns the last observed hardware address of the named
// interface.
func (m *Dispatcher) HardwareAddr(name string) (net.HardwareAddr, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr, ok := m.addrs[name]
	return addr, ok
}

// Snapshot returns a copy of the observed state of every interface.
func (m *Dispatcher) Snapshot() map[string]Observed {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Observed, len(m.statuses))
	for name, status := range m.statuses {
		out[name] = Observed{
			Status:       status,
			HardwareAddr: m.addrs[name],
		}
	}

	return out
}
