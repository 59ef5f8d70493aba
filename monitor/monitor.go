package monitor

import (
	"context"
	"net"

	"go.uber.org/zap"

	"github.com/yanet-platform/nlmon/monitor/internal/link"
	"github.com/yanet-platform/nlmon/monitor/internal/neigh"
)

// NeighbourEntry is a single neighbour table entry.
type NeighbourEntry = neigh.Entry

// NeighbourState is the NUD state of a neighbour entry.
type NeighbourState = neigh.State

// KernelError is an error reported by the kernel in reply to a query.
type KernelError = neigh.KernelError

// ErrTimeout is returned when the neighbour query does not finish in time.
var ErrTimeout = neigh.ErrTimeout

// LinkStatus is the link state of an interface.
type LinkStatus = link.Status

// Link statuses passed to StatusFunc callbacks. An interface that was never
// observed is LinkStatusUnknown.
const (
	LinkStatusUnknown = link.StatusUnknown
	LinkStatusUp      = link.StatusUp
	LinkStatusDown    = link.StatusDown
)

// StatusFunc is called from the monitor goroutine when the link status of
// an interface changes.
type StatusFunc = link.StatusFunc

// HardwareAddrFunc is called from the monitor goroutine when the hardware
// address of an interface changes.
type HardwareAddrFunc = link.HardwareAddrFunc

// LinkState is the last observed state of an interface.
type LinkState = link.Observed

// MonitorStats are the link monitor counters.
type MonitorStats = link.Stats

// Option is a function that configures the netlink client.
type Option func(*options)

// WithLog configures the netlink client with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

type options struct {
	Log *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

// Netlink queries the kernel neighbour table and tracks link state changes.
type Netlink struct {
	resolver   *neigh.Resolver
	dispatcher *link.Dispatcher
	monitor    *link.Monitor
	log        *zap.SugaredLogger
}

// New creates a new netlink client.
//
// No socket is opened here: the neighbour query opens its own socket per
// call, and the link monitor opens one in Run.
func New(cfg *Config, options ...Option) (*Netlink, error) {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	resolver := neigh.NewResolver(
		neigh.WithLog(opts.Log.Named("neigh")),
		neigh.WithFamily(cfg.Neighbours.AddressFamily()),
		neigh.WithBufferSizes(
			int(cfg.Neighbours.SendBufSize.Bytes()),
			int(cfg.Neighbours.RecvBufSize.Bytes()),
		),
		neigh.WithReadBufSize(int(cfg.Neighbours.ReadBufSize.Bytes())),
		neigh.WithTimeout(cfg.Neighbours.Timeout),
	)

	dispatcher := link.NewDispatcher()
	monitor, err := link.NewMonitor(
		dispatcher,
		link.WithLog(opts.Log.Named("link")),
		link.WithGroups(cfg.Links.GroupMask()),
		link.WithReadBufSize(int(cfg.Links.ReadBufSize.Bytes())),
		link.WithInterfaces(cfg.Links.Interfaces...),
	)
	if err != nil {
		return nil, err
	}

	m := &Netlink{
		resolver:   resolver,
		dispatcher: dispatcher,
		monitor:    monitor,
		log:        opts.Log,
	}

	return m, nil
}

// NeighbourTable dumps the kernel neighbour table.
//
// Entries are returned in the order the kernel reported them, deletions
// included. On failure the entries received so far are returned along with
// the error.
func (m *Netlink) NeighbourTable(ctx context.Context) ([]NeighbourEntry, error) {
	return m.resolver.Table(ctx)
}

// RegisterStatusCallback registers the link status callback.
//
// It panics if called twice.
func (m *Netlink) RegisterStatusCallback(fn StatusFunc) {
	m.dispatcher.RegisterStatusFunc(fn)
}

// RegisterHardwareAddrCallback registers the hardware address callback.
//
// It panics if called twice.
func (m *Netlink) RegisterHardwareAddrCallback(fn HardwareAddrFunc) {
	m.dispatcher.RegisterHardwareAddrFunc(fn)
}

// Run runs the link monitor until the specified context is canceled or the
// monitor socket fails.
func (m *Netlink) Run(ctx context.Context) error {
	m.log.Infow("starting link monitor")
	defer m.log.Infow("stopped link monitor")

	return m.monitor.Run(ctx)
}

// LinkStatus returns the last observed status of the named interface.
func (m *Netlink) LinkStatus(name string) LinkStatus {
	return m.dispatcher.Status(name)
}

// LinkHardwareAddr returns the last observed hardware address of the named
// interface.
func (m *Netlink) LinkHardwareAddr(name string) (net.HardwareAddr, bool) {
	return m.dispatcher.HardwareAddr(name)
}

// Links returns the last observed state of every interface.
func (m *Netlink) Links() map[string]LinkState {
	return m.dispatcher.Snapshot()
}

// MonitorStats returns the link monitor counters.
func (m *Netlink) MonitorStats() MonitorStats {
	return m.monitor.Stats()
}
