package link

import (
	"bytes"
	"errors"
	"fmt"
	"net"

	vnl "github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"

	"github.com/yanet-platform/nlmon/monitor/internal/nl"
)

var (
	// ErrUnexpectedType is returned for messages that are not link
	// notifications this package decodes.
	ErrUnexpectedType = errors.New("not a new link message")
	// ErrMalformed is returned for link messages too short to hold the
	// fixed interface header.
	ErrMalformed = errors.New("malformed link message")
	// ErrLoopback is returned for notifications about loopback interfaces.
	ErrLoopback = errors.New("loopback interface")
)

// SizeofIfInfoMsg is the size of the fixed interface header.
const SizeofIfInfoMsg = unix.SizeofIfInfomsg

// maxAttr bounds the attribute table, only the name and the address are of
// interest.
const maxAttr = unix.IFLA_IFNAME

// ifinfomsg field offsets.
const (
	ifiIndex = 4
	ifiFlags = 8
)

// Event is a decoded link notification.
type Event struct {
	// Index is the kernel interface index.
	Index int
	// Name is empty when the notification carries no name.
	Name string
	// HardwareAddr is nil when the notification carries no address.
	HardwareAddr net.HardwareAddr
	Status       Status
	// Flags are the raw interface flags.
	Flags uint32
}

// DecodeMessage decodes an RTM_NEWLINK message.
//
// Other message types, RTM_DELLINK included, yield ErrUnexpectedType, and
// notifications about loopback interfaces yield ErrLoopback.
func DecodeMessage(msg nl.Message) (Event, error) {
	if msg.Header.Type != unix.RTM_NEWLINK {
		return Event{}, fmt.Errorf("%w: type %d", ErrUnexpectedType, msg.Header.Type)
	}

	b := msg.Data
	if len(b) < SizeofIfInfoMsg {
		return Event{}, fmt.Errorf("%w: payload of %d bytes", ErrMalformed, len(b))
	}

	native := vnl.NativeEndian()
	flags := native.Uint32(b[ifiFlags : ifiFlags+4])
	if flags&unix.IFF_LOOPBACK != 0 {
		return Event{}, ErrLoopback
	}

	ev := Event{
		Index:  int(int32(native.Uint32(b[ifiIndex : ifiIndex+4]))),
		Status: StatusDown,
		Flags:  flags,
	}
	if flags&unix.IFF_LOWER_UP == unix.IFF_LOWER_UP {
		ev.Status = StatusUp
	}

	attrs, _ := nl.ParseAttrs(b[nl.Align(SizeofIfInfoMsg):], maxAttr)

	if name, ok := attrs.Get(unix.IFLA_IFNAME); ok {
		if idx := bytes.IndexByte(name, 0); idx >= 0 {
			name = name[:idx]
		}
		ev.Name = string(name)
	}
	if addr, ok := attrs.Get(unix.IFLA_ADDRESS); ok {
		ev.HardwareAddr = net.HardwareAddr(append([]byte(nil), addr...))
	}

	return ev, nil
}
