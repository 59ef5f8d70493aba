package link

// Status is the link state of an interface.
type Status uint8

const (
	// StatusUnknown is reported as the previous status the first time an
	// interface is observed.
	StatusUnknown Status = iota
	// StatusUp means the lower layer of the interface is up.
	StatusUp
	// StatusDown means the lower layer of the interface is down.
	StatusDown
)

func (m Status) String() string {
	switch m {
	case StatusUp:
		return "up"
	case StatusDown:
		return "down"
	default:
		return "unknown"
	}
}
