package nl

import (
	"golang.org/x/sys/unix"
)

// SizeofNdMsg is the size of the fixed neighbour message header.
const SizeofNdMsg = unix.SizeofNdMsg

// DumpFlags are the flags of a "dump the whole table" request.
const DumpFlags = unix.NLM_F_REQUEST | unix.NLM_F_ROOT

// NewDumpRequest builds a dump request of the given type for a single
// address family.
//
// The payload is a zeroed neighbour message header with only the family
// selector set, which is what the kernel expects for RTM_GETNEIGH.
func NewDumpRequest(typ uint16, family uint8, seq uint32) []byte {
	size := SizeofHeader + SizeofNdMsg

	b := make([]byte, 0, Align(size))
	b = AppendHeader(b, Header{
		Len:   uint32(size),
		Type:  typ,
		Flags: DumpFlags,
		Seq:   seq,
	})

	payload := make([]byte, SizeofNdMsg)
	payload[0] = family
	return append(b, payload...)
}
