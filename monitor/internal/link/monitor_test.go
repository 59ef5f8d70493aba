package link

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"github.com/yanet-platform/nlmon/monitor/internal/nl"
)

type datagram struct {
	b    []byte
	from uint32
	err  error
}

// fakeConn replays scripted datagrams, then blocks until a deadline in the
// past is set, or returns io.EOF when the script asks to.
type fakeConn struct {
	mu     sync.Mutex
	queue  []datagram
	wake   chan struct{}
	closed bool
}

func newFakeConn(datagrams ...datagram) *fakeConn {
	return &fakeConn{
		queue: datagrams,
		wake:  make(chan struct{}),
	}
}

func (m *fakeConn) Receive(b []byte) (int, uint32, error) {
	m.mu.Lock()
	if len(m.queue) > 0 {
		d := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		n := copy(b, d.b)
		return n, d.from, d.err
	}
	wake := m.wake
	m.mu.Unlock()

	<-wake
	return 0, 0, os.ErrDeadlineExceeded
}

func (m *fakeConn) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.Before(time.Now()) {
		select {
		case <-m.wake:
		default:
			close(m.wake)
		}
	}
	return nil
}

func (m *fakeConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

func newTestMonitor(t *testing.T, d *Dispatcher, c *fakeConn, options ...Option) (*Monitor, *nl.Config) {
	options = append([]Option{WithLog(zaptest.NewLogger(t).Sugar())}, options...)
	m, err := NewMonitor(d, options...)
	require.NoError(t, err)

	cfg := &nl.Config{}
	m.dial = func(dialed nl.Config) (conn, error) {
		*cfg = dialed
		return c, nil
	}
	return m, cfg
}

func concat(msgs ...linkMessage) []byte {
	var b []byte
	for _, msg := range msgs {
		b = append(b, msg.encode()...)
	}
	return b
}

func eth0Up() linkMessage {
	return linkMessage{
		typ:   unix.RTM_NEWLINK,
		index: 2,
		flags: unix.IFF_UP | unix.IFF_LOWER_UP,
		name:  "eth0",
		addr:  []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
	}
}

func TestMonitorReportsStatusOnce(t *testing.T) {
	d, rec := newRecordingDispatcher()
	c := newFakeConn(
		datagram{b: concat(eth0Up())},
		datagram{b: concat(eth0Up())},
		datagram{err: io.EOF},
	)
	m, cfg := newTestMonitor(t, d, c)

	err := m.Run(context.Background())
	require.ErrorIs(t, err, io.EOF)
	require.True(t, c.closed)
	require.Equal(t, uint32(unix.RTMGRP_LINK), cfg.Groups)

	require.Equal(t, []statusChange{{"eth0", StatusUnknown, StatusUp}}, rec.statuses)
	require.Equal(t, StatusUp, d.Status("eth0"))

	stats := m.Stats()
	require.Equal(t, uint64(2), stats.Datagrams)
	require.Equal(t, uint64(2), stats.Events)
}

func TestMonitorSkipsLoopback(t *testing.T) {
	d, rec := newRecordingDispatcher()
	lo := linkMessage{
		typ:   unix.RTM_NEWLINK,
		index: 1,
		flags: unix.IFF_UP | unix.IFF_LOOPBACK | unix.IFF_LOWER_UP,
		name:  "lo",
		addr:  make([]byte, 6),
	}
	c := newFakeConn(datagram{b: concat(lo)}, datagram{err: io.EOF})
	m, _ := newTestMonitor(t, d, c)

	require.Error(t, m.Run(context.Background()))
	require.Empty(t, rec.statuses)
	require.Empty(t, rec.addrs)
	require.Empty(t, d.Snapshot())
	require.Equal(t, uint64(1), m.Stats().Ignored)
}

func TestMonitorContinuesAfterBadMessages(t *testing.T) {
	d, rec := newRecordingDispatcher()

	short := linkMessage{typ: unix.RTM_NEWLINK, payload: make([]byte, 8)}
	del := eth0Up()
	del.typ = unix.RTM_DELLINK
	addr := linkMessage{typ: unix.RTM_NEWADDR, payload: make([]byte, 8)}

	c := newFakeConn(
		datagram{b: concat(short, del, addr, eth0Up())},
		// Not sent by the kernel.
		datagram{b: concat(eth0Up()), from: 1234},
		datagram{err: io.EOF},
	)
	m, _ := newTestMonitor(t, d, c)

	require.ErrorIs(t, m.Run(context.Background()), io.EOF)
	require.Len(t, rec.statuses, 1)

	require.Equal(t, Stats{
		Datagrams: 2,
		Messages:  4,
		Events:    1,
		Malformed: 1,
		Ignored:   3,
	}, m.Stats())
}

func TestMonitorProcessesTruncatedDatagram(t *testing.T) {
	d, rec := newRecordingDispatcher()

	eth1 := eth0Up()
	eth1.name = "eth1"
	b := concat(eth0Up(), eth1)

	c := newFakeConn(
		datagram{b: b[:len(b)-4], err: nl.ErrTruncated},
		datagram{err: io.EOF},
	)
	m, _ := newTestMonitor(t, d, c)

	require.ErrorIs(t, m.Run(context.Background()), io.EOF)
	// The partial trailing message is dropped.
	require.Equal(t, []statusChange{{"eth0", StatusUnknown, StatusUp}}, rec.statuses)
}

func TestMonitorInterfaceFilter(t *testing.T) {
	d, rec := newRecordingDispatcher()

	eth1 := eth0Up()
	eth1.name = "eth1"
	tap := eth0Up()
	tap.name = "tap0"

	c := newFakeConn(datagram{b: concat(eth0Up(), tap, eth1)}, datagram{err: io.EOF})
	m, _ := newTestMonitor(t, d, c, WithInterfaces("eth[1-9]", "tap*"))

	require.ErrorIs(t, m.Run(context.Background()), io.EOF)
	require.Equal(t, []statusChange{
		{"tap0", StatusUnknown, StatusUp},
		{"eth1", StatusUnknown, StatusUp},
	}, rec.statuses)
}

func TestMonitorInvalidInterfacePattern(t *testing.T) {
	_, err := NewMonitor(NewDispatcher(), WithInterfaces("eth[0"))
	require.Error(t, err)
}

func TestMonitorGroups(t *testing.T) {
	c := newFakeConn(datagram{err: io.EOF})
	m, cfg := newTestMonitor(t, NewDispatcher(), c, WithGroups(unix.RTMGRP_LINK|unix.RTMGRP_IPV6_ROUTE))

	require.Error(t, m.Run(context.Background()))
	require.Equal(t, uint32(unix.RTMGRP_LINK|unix.RTMGRP_IPV6_ROUTE), cfg.Groups)
}

func TestMonitorStopsOnCancel(t *testing.T) {
	d, _ := newRecordingDispatcher()
	c := newFakeConn(datagram{b: concat(eth0Up())})
	m, _ := newTestMonitor(t, d, c)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return d.Status("eth0") == StatusUp
	}, 5*time.Second, time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
	require.True(t, c.closed)
}

func TestMonitorDialFailure(t *testing.T) {
	m, err := NewMonitor(NewDispatcher())
	require.NoError(t, err)
	m.dial = func(nl.Config) (conn, error) {
		return nil, unix.EPERM
	}

	err = m.Run(context.Background())
	require.True(t, errors.Is(err, unix.EPERM))
}

func TestMonitorHardwareAddrChange(t *testing.T) {
	d, rec := newRecordingDispatcher()

	changed := eth0Up()
	changed.addr = []byte{0x02, 0, 0, 0, 0, 1}

	c := newFakeConn(datagram{b: concat(eth0Up(), changed)}, datagram{err: io.EOF})
	m, _ := newTestMonitor(t, d, c)

	require.ErrorIs(t, m.Run(context.Background()), io.EOF)
	require.Equal(t, []addrChange{
		{"eth0", nil, net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}},
		{"eth0", net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}, net.HardwareAddr{0x02, 0, 0, 0, 0, 1}},
	}, rec.addrs)
}
