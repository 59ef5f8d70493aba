package neigh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	vnl "github.com/vishvananda/netlink/nl"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/yanet-platform/nlmon/monitor/internal/nl"
)

// ErrTimeout is returned when the kernel does not finish the dump in time.
var ErrTimeout = errors.New("neighbour table dump timed out")

// KernelError is an error reported by the kernel in an NLMSG_ERROR reply.
type KernelError struct {
	Errno syscall.Errno
}

func (m *KernelError) Error() string {
	return fmt.Sprintf("kernel rejected neighbour dump: %v", m.Errno)
}

func (m *KernelError) Unwrap() error {
	return m.Errno
}

// aLongTimeAgo is a non-zero time, far in the past, used for immediate
// deadlines.
var aLongTimeAgo = time.Unix(1, 0)

// conn is the part of nl.Conn used by the resolver.
type conn interface {
	PortID() uint32
	Send(b []byte) error
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

// Option is a function that configures the neighbour resolver.
type Option func(*options)

// WithLog configures the neighbour resolver with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// WithFamily configures the address family of the dumped table.
func WithFamily(family uint8) Option {
	return func(o *options) {
		o.Family = family
	}
}

// WithBufferSizes configures the socket send and receive buffer sizes.
func WithBufferSizes(send int, recv int) Option {
	return func(o *options) {
		o.SendBufSize = send
		o.RecvBufSize = recv
	}
}

// WithReadBufSize configures the size of the buffer a single datagram is
// read into.
func WithReadBufSize(size int) Option {
	return func(o *options) {
		o.ReadBufSize = size
	}
}

// WithTimeout bounds the whole dump. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.Timeout = timeout
	}
}

type options struct {
	Family      uint8
	SendBufSize int
	RecvBufSize int
	ReadBufSize int
	Timeout     time.Duration
	Log         *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		Family:      unix.AF_INET6,
		SendBufSize: 32 * 1024,
		RecvBufSize: 1024 * 1024,
		ReadBufSize: 16 * 1024,
		Timeout:     5 * time.Second,
		Log:         zap.NewNop().Sugar(),
	}
}

// Resolver queries the kernel neighbour table.
//
// Every query runs on its own socket, so a Resolver can be used from
// multiple goroutines.
type Resolver struct {
	family      uint8
	sendBufSize int
	recvBufSize int
	readBufSize int
	timeout     time.Duration
	dial        func(cfg nl.Config) (conn, error)
	seq         atomic.Uint32
	log         *zap.SugaredLogger
}

// NewResolver creates a new neighbour resolver.
func NewResolver(options ...Option) *Resolver {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	m := &Resolver{
		family:      opts.Family,
		sendBufSize: opts.SendBufSize,
		recvBufSize: opts.RecvBufSize,
		readBufSize: opts.ReadBufSize,
		timeout:     opts.Timeout,
		dial:        dialNetlink,
		log:         opts.Log,
	}
	m.seq.Store(uint32(time.Now().Unix()))

	return m
}

// Table dumps the neighbour table.
//
// Entries are returned in the order the kernel reported them, without
// deduplication. On failure the entries received before the failure are
// returned together with the error, so callers must not assume the result
// is complete unless the error is nil.
func (m *Resolver) Table(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := m.dial(nl.Config{
		SendBufSize: m.sendBufSize,
		RecvBufSize: m.recvBufSize,
	})
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if m.timeout > 0 {
		if err := c.SetReadDeadline(time.Now().Add(m.timeout)); err != nil {
			return nil, fmt.Errorf("failed to set netlink read deadline: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		c.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	seq := m.seq.Add(1)
	req := nl.NewDumpRequest(unix.RTM_GETNEIGH, m.family, seq)
	if err := c.Send(req); err != nil {
		return nil, fmt.Errorf("failed to send neighbour dump request: %w", err)
	}

	m.log.Debugw("sent neighbour dump request",
		zap.Uint32("seq", seq),
		zap.Uint32("port_id", c.PortID()),
		zap.Uint8("family", m.family),
	)

	entries := []Entry{}
	buf := make([]byte, m.readBufSize)
	for {
		n, from, err := c.Receive(buf)
		if err != nil && !errors.Is(err, nl.ErrTruncated) {
			switch {
			case ctx.Err() != nil:
				return entries, ctx.Err()
			case errors.Is(err, os.ErrDeadlineExceeded):
				return entries, fmt.Errorf("%w after %s", ErrTimeout, m.timeout)
			default:
				return entries, fmt.Errorf("failed to receive neighbour dump: %w", err)
			}
		}

		// The complete messages of a truncated datagram are still kept,
		// only the rest of the dump is lost.
		done, herr := m.handleDatagram(buf[:n], from, c.PortID(), seq, &entries)
		if herr != nil {
			return entries, herr
		}
		if err != nil {
			return entries, fmt.Errorf("failed to receive neighbour dump: %w", err)
		}
		if done {
			m.log.Debugw("received neighbour table", zap.Int("size", len(entries)))
			return entries, nil
		}
	}
}

func (m *Resolver) handleDatagram(
	b []byte,
	from uint32,
	pid uint32,
	seq uint32,
	entries *[]Entry,
) (bool, error) {
	for msg := range nl.Messages(b) {
		h := msg.Header
		if from != 0 || h.Pid != pid || h.Seq != seq {
			m.log.Debugw("skipping netlink message not addressed to this query",
				zap.Uint32("from", from),
				zap.Uint32("nlmsg_pid", h.Pid),
				zap.Uint32("nlmsg_seq", h.Seq),
				zap.Uint16("nlmsg_type", h.Type),
			)
			continue
		}

		switch h.Type {
		case unix.NLMSG_DONE:
			return true, nil
		case unix.NLMSG_ERROR:
			return true, decodeError(msg.Data)
		}

		entry, err := DecodeMessage(msg)
		if err != nil {
			m.log.Debugw("skipping neighbour message", zap.Error(err))
			continue
		}

		*entries = append(*entries, entry)
	}

	return false, nil
}

// decodeError decodes the payload of an NLMSG_ERROR message.
//
// A zero error code is an acknowledgement and yields nil.
func decodeError(b []byte) error {
	if len(b) < unix.SizeofNlMsgerr {
		return fmt.Errorf("%w: error reply of %d bytes", nl.ErrTruncated, len(b))
	}

	code := int32(vnl.NativeEndian().Uint32(b[0:4]))
	if code == 0 {
		return nil
	}

	return &KernelError{Errno: syscall.Errno(-code)}
}
