package nl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrTruncated reports a datagram or message that is shorter than what the
// kernel meant to deliver.
var ErrTruncated = errors.New("netlink message truncated")

// Config configures a netlink route socket.
type Config struct {
	// Groups is the multicast group mask to bind to. Zero subscribes to
	// nothing, so the socket only receives unicast replies.
	Groups uint32
	// SendBufSize sets SO_SNDBUF when non-zero.
	SendBufSize int
	// RecvBufSize sets SO_RCVBUF when non-zero.
	RecvBufSize int
}

// Conn is a NETLINK_ROUTE socket.
//
// The descriptor is non-blocking and registered with the runtime poller,
// therefore read deadlines and Close both wake up a blocked Receive.
type Conn struct {
	file *os.File
	raw  syscall.RawConn
	pid  uint32
}

// Dial opens, configures and binds a NETLINK_ROUTE socket.
func Dial(cfg Config) (*Conn, error) {
	fd, err := unix.Socket(
		unix.AF_NETLINK,
		unix.SOCK_RAW|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK,
		unix.NETLINK_ROUTE,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open netlink socket: %w", os.NewSyscallError("socket", err))
	}

	pid, err := setup(fd, cfg)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	return newConn(fd, pid)
}

// newConn registers the non-blocking descriptor with the runtime poller.
func newConn(fd int, pid uint32) (*Conn, error) {
	file := os.NewFile(uintptr(fd), "netlink")
	raw, err := file.SyscallConn()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to access netlink socket: %w", err)
	}

	return &Conn{
		file: file,
		raw:  raw,
		pid:  pid,
	}, nil
}

func setup(fd int, cfg Config) (uint32, error) {
	if cfg.SendBufSize > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.SendBufSize); err != nil {
			return 0, fmt.Errorf("failed to set SO_SNDBUF: %w", os.NewSyscallError("setsockopt", err))
		}
	}
	if cfg.RecvBufSize > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.RecvBufSize); err != nil {
			return 0, fmt.Errorf("failed to set SO_RCVBUF: %w", os.NewSyscallError("setsockopt", err))
		}
	}

	local := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: cfg.Groups,
	}
	if err := unix.Bind(fd, local); err != nil {
		return 0, fmt.Errorf("failed to bind netlink socket: %w", os.NewSyscallError("bind", err))
	}

	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, fmt.Errorf("failed to get netlink socket name: %w", os.NewSyscallError("getsockname", err))
	}

	bound, ok := sa.(*unix.SockaddrNetlink)
	if !ok {
		return 0, fmt.Errorf("unexpected netlink socket address %T", sa)
	}
	if bound.Family != unix.AF_NETLINK {
		return 0, fmt.Errorf("unexpected netlink socket address family %d", bound.Family)
	}

	return bound.Pid, nil
}

// PortID returns the port id the kernel assigned to this socket.
func (m *Conn) PortID() uint32 {
	return m.pid
}

// Send writes a single request to the kernel.
func (m *Conn) Send(b []byte) error {
	kernel := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}

	var operr error
	err := m.raw.Write(func(fd uintptr) bool {
		operr = unix.Sendto(int(fd), b, 0, kernel)
		return operr != unix.EAGAIN
	})
	if err != nil {
		return err
	}
	if operr != nil {
		return os.NewSyscallError("sendto", operr)
	}

	return nil
}

// Receive reads a single datagram into b.
//
// It returns the number of bytes read and the port id of the sender; the
// kernel always sends from port 0. When the datagram did not fit into b the
// returned error is ErrTruncated, while n still counts the valid bytes.
func (m *Conn) Receive(b []byte) (int, uint32, error) {
	var (
		n     int
		flags int
		from  unix.Sockaddr
		operr error
	)
	err := m.raw.Read(func(fd uintptr) bool {
		n, _, flags, from, operr = unix.Recvmsg(int(fd), b, nil, 0)
		return operr != unix.EAGAIN
	})
	if err != nil {
		return 0, 0, err
	}
	if operr != nil {
		return 0, 0, os.NewSyscallError("recvmsg", operr)
	}
	if n == 0 {
		return 0, 0, io.EOF
	}

	// Anything but a netlink peer is reported as a non-kernel sender.
	pid := ^uint32(0)
	if sa, ok := from.(*unix.SockaddrNetlink); ok {
		pid = sa.Pid
	}

	if flags&unix.MSG_TRUNC != 0 {
		return n, pid, fmt.Errorf("%w: datagram exceeds %d bytes buffer", ErrTruncated, len(b))
	}

	return n, pid, nil
}

// SetReadDeadline bounds the next Receive calls.
//
// A deadline in the past wakes up a Receive that is currently blocked.
func (m *Conn) SetReadDeadline(t time.Time) error {
	return m.file.SetReadDeadline(t)
}

// Close closes the socket.
func (m *Conn) Close() error {
	return m.file.Close()
}
