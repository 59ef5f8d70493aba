package link

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/yanet-platform/nlmon/common/go/xiter"
	"github.com/yanet-platform/nlmon/monitor/internal/nl"
)

// aLongTimeAgo is a non-zero time, far in the past, used to wake up a
// blocked receive.
var aLongTimeAgo = time.Unix(1, 0)

// conn is the part of nl.Conn used by the monitor.
type conn interface {
	Receive(b []byte) (int, uint32, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

func dialNetlink(cfg nl.Config) (conn, error) {
	c, err := nl.Dial(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Option is a function that configures the link monitor.
type Option func(*options)

// WithLog configures the link monitor with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// WithGroups configures the multicast group mask the monitor binds to.
func WithGroups(groups uint32) Option {
	return func(o *options) {
		o.Groups = groups
	}
}

// WithReadBufSize configures the size of the buffer a single notification
// datagram is read into.
func WithReadBufSize(size int) Option {
	return func(o *options) {
		o.ReadBufSize = size
	}
}

// WithInterfaces restricts dispatching to interfaces whose name matches at
// least one of the given glob patterns.
func WithInterfaces(patterns ...string) Option {
	return func(o *options) {
		o.Interfaces = append(o.Interfaces, patterns...)
	}
}

type options struct {
	Groups      uint32
	ReadBufSize int
	Interfaces  []string
	Log         *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		Groups:      unix.RTMGRP_LINK,
		ReadBufSize: 64 * 1024,
		Log:         zap.NewNop().Sugar(),
	}
}

// Stats are the link monitor counters.
type Stats struct {
	// Datagrams is the number of datagrams received.
	Datagrams uint64
	// Messages is the number of framed messages.
	Messages uint64
	// Events is the number of events passed to the dispatcher.
	Events uint64
	// Malformed is the number of link messages too short to decode.
	Malformed uint64
	// Ignored is the number of messages skipped for any other reason.
	Ignored uint64
}

type stats struct {
	datagrams atomic.Uint64
	messages  atomic.Uint64
	events    atomic.Uint64
	malformed atomic.Uint64
	ignored   atomic.Uint64
}

// Monitor listens to link notifications and feeds them to a dispatcher.
type Monitor struct {
	groups      uint32
	readBufSize int
	interfaces  []glob.Glob
	dispatcher  *Dispatcher
	dial        func(cfg nl.Config) (conn, error)
	stats       stats
	log         *zap.SugaredLogger
}

// NewMonitor creates a new link monitor.
func NewMonitor(dispatcher *Dispatcher, options ...Option) (*Monitor, error) {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	interfaces := make([]glob.Glob, 0, len(opts.Interfaces))
	for _, pattern := range opts.Interfaces {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to compile interface pattern %q: %w", pattern, err)
		}
		interfaces = append(interfaces, g)
	}

	m := &Monitor{
		groups:      opts.Groups,
		readBufSize: opts.ReadBufSize,
		interfaces:  interfaces,
		dispatcher:  dispatcher,
		dial:        dialNetlink,
		log:         opts.Log,
	}

	return m, nil
}

// Stats returns a snapshot of the monitor counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		Datagrams: m.stats.datagrams.Load(),
		Messages:  m.stats.messages.Load(),
		Events:    m.stats.events.Load(),
		Malformed: m.stats.malformed.Load(),
		Ignored:   m.stats.ignored.Load(),
	}
}

// Run runs the link monitor until the specified context is canceled or
// the socket fails.
//
// Malformed or uninteresting messages are skipped, only a receive failure
// stops the monitor.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Debugw("starting links monitor", zap.Uint32("groups", m.groups))
	defer m.log.Debugf("stopped links monitor")

	c, err := m.dial(nl.Config{Groups: m.groups})
	if err != nil {
		return fmt.Errorf("failed to subscribe to links updates: %w", err)
	}
	defer c.Close()

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		<-ctx.Done()
		// Wake up the receiver, it is the only one watching the socket.
		if err := c.SetReadDeadline(aLongTimeAgo); err != nil {
			return fmt.Errorf("failed to interrupt links monitor: %w", err)
		}
		return nil
	})
	wg.Go(func() error {
		return m.runReceiver(ctx, c)
	})

	return wg.Wait()
}

func (m *Monitor) runReceiver(ctx context.Context, c conn) error {
	buf := make([]byte, m.readBufSize)
	for {
		n, from, err := c.Receive(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, nl.ErrTruncated) {
				return fmt.Errorf("failed to receive links updates: %w", err)
			}

			// The trailing partial message is dropped by the framer.
			m.log.Warnw("received truncated links update",
				zap.Int("size", n),
				zap.Error(err),
			)
		}

		m.stats.datagrams.Add(1)
		if from != 0 {
			m.log.Debugw("skipping links update not sent by the kernel", zap.Uint32("from", from))
			m.stats.ignored.Add(1)
			continue
		}

		m.handleDatagram(buf[:n])
	}
}

func (m *Monitor) handleDatagram(b []byte) {
	for idx, msg := range xiter.Enumerate(nl.Messages(b)) {
		m.stats.messages.Add(1)

		ev, err := DecodeMessage(msg)
		switch {
		case err == nil:
		case errors.Is(err, ErrMalformed):
			m.log.Warnw("skipping malformed link message", zap.Int("idx", idx), zap.Error(err))
			m.stats.malformed.Add(1)
			continue
		default:
			m.stats.ignored.Add(1)
			continue
		}

		if !m.isTracked(ev.Name) {
			m.log.Debugw("skipping untracked interface", zap.String("name", ev.Name))
			m.stats.ignored.Add(1)
			continue
		}

		m.log.Debugw("received link update",
			zap.Int("idx", idx),
			zap.Int("index", ev.Index),
			zap.String("name", ev.Name),
			zap.Stringer("hardware_addr", ev.HardwareAddr),
			zap.Stringer("status", ev.Status),
		)

		m.stats.events.Add(1)
		m.dispatcher.Observe(ev)
	}
}

func (m *Monitor) isTracked(name string) bool {
	if len(m.interfaces) == 0 {
		return true
	}

	for _, g := range m.interfaces {
		if g.Match(name) {
			return true
		}
	}

	return false
}
