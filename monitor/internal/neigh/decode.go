package neigh

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	vnl "github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"

	"github.com/yanet-platform/nlmon/monitor/internal/nl"
)

var (
	// ErrUnexpectedType is returned for messages that are not neighbour
	// notifications.
	ErrUnexpectedType = errors.New("not a neighbour message")
	// ErrMalformed is returned for neighbour messages too short to hold
	// the fixed neighbour header.
	ErrMalformed = errors.New("malformed neighbour message")
)

// maxAttr bounds the attribute table, only the addresses are of interest.
const maxAttr = unix.NDA_LLADDR

// ndmsg field offsets.
const (
	ndmFamily  = 0
	ndmIfindex = 4
	ndmState   = 8
	ndmFlags   = 10
)

// DecodeMessage decodes an RTM_NEWNEIGH or RTM_DELNEIGH message.
func DecodeMessage(msg nl.Message) (Entry, error) {
	typ := msg.Header.Type
	if typ != unix.RTM_NEWNEIGH && typ != unix.RTM_DELNEIGH {
		return Entry{}, fmt.Errorf("%w: type %d", ErrUnexpectedType, typ)
	}

	b := msg.Data
	if len(b) < nl.SizeofNdMsg {
		return Entry{}, fmt.Errorf("%w: payload of %d bytes", ErrMalformed, len(b))
	}

	native := vnl.NativeEndian()
	family := b[ndmFamily]
	entry := Entry{
		State:     State(native.Uint16(b[ndmState : ndmState+2])),
		Router:    b[ndmFlags]&unix.NTF_ROUTER != 0,
		LinkIndex: int(int32(native.Uint32(b[ndmIfindex : ndmIfindex+4]))),
		Deleted:   typ == unix.RTM_DELNEIGH,
	}

	attrs, _ := nl.ParseAttrs(b[nl.Align(nl.SizeofNdMsg):], maxAttr)

	if dst, ok := attrs.Get(unix.NDA_DST); ok {
		entry.IP = decodeAddr(family, dst)
	}
	if lladdr, ok := attrs.Get(unix.NDA_LLADDR); ok {
		entry.HardwareAddr = net.HardwareAddr(append([]byte(nil), lladdr...))
	}

	return entry, nil
}

// decodeAddr converts the destination attribute to an address.
//
// The family selects the fixed-width layout; a payload that does not match
// it is interpreted by its length alone.
func decodeAddr(family uint8, b []byte) netip.Addr {
	switch {
	case family == unix.AF_INET6 && len(b) == net.IPv6len:
		return netip.AddrFrom16([net.IPv6len]byte(b))
	case family == unix.AF_INET && len(b) == net.IPv4len:
		return netip.AddrFrom4([net.IPv4len]byte(b))
	}

	addr, _ := netip.AddrFromSlice(b)
	return addr
}
