package neigh

import (
	"net"
	"net/netip"
)

// Entry is a single record of the kernel neighbour table.
type Entry struct {
	// IP is the neighbour protocol address.
	IP netip.Addr
	// HardwareAddr is the link-layer address of the neighbour.
	//
	// Its length follows the attribute length, so non-Ethernet links
	// produce addresses that are not 6 bytes long.
	HardwareAddr net.HardwareAddr
	// State is the neighbour unreachability detection state.
	State State
	// Router is set when the neighbour advertised itself as a router.
	Router bool
	// LinkIndex is the index of the interface the entry belongs to.
	LinkIndex int
	// Deleted is set for entries that came from an RTM_DELNEIGH message.
	Deleted bool
}
