package neigh

import (
	"github.com/vishvananda/netlink"
)

// State is the Neighbor Unreachability Detection state of an entry, one of
// the NUD_* codes.
type State uint16

var stateNames = map[State]string{
	netlink.NUD_NONE:       "NONE",
	netlink.NUD_INCOMPLETE: "INCOMPLETE",
	netlink.NUD_REACHABLE:  "REACHABLE",
	netlink.NUD_STALE:      "STALE",
	netlink.NUD_DELAY:      "DELAY",
	netlink.NUD_PROBE:      "PROBE",
	netlink.NUD_FAILED:     "FAILED",
	netlink.NUD_NOARP:      "NOARP",
	netlink.NUD_PERMANENT:  "PERMANENT",
}

// nudValid is the kernel NUD_VALID mask: states whose link-layer address
// can be used for transmission.
const nudValid = netlink.NUD_PERMANENT | netlink.NUD_NOARP | netlink.NUD_REACHABLE |
	netlink.NUD_PROBE | netlink.NUD_STALE | netlink.NUD_DELAY

// String returns the iproute2 name of the state.
func (m State) String() string {
	if name, ok := stateNames[m]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether the link-layer address of the entry is usable.
func (m State) Valid() bool {
	return m&nudValid != 0
}
