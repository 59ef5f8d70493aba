package nl

import (
	vnl "github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

// SizeofAttrHeader is the size of the (length, type) pair preceding every
// route attribute payload.
const SizeofAttrHeader = unix.SizeofRtAttr

// AttrTable maps an attribute type to its payload.
//
// A nil entry means the attribute was not present. Payloads alias the
// buffer the table was parsed from.
type AttrTable [][]byte

// Get returns the payload of the attribute with the given type.
func (m AttrTable) Get(typ uint16) ([]byte, bool) {
	if int(typ) >= len(m) || m[typ] == nil {
		return nil, false
	}

	return m[typ], true
}

// ParseAttrs walks the attribute sequence in b and indexes every attribute
// whose type does not exceed max.
//
// Only the first occurrence of each type is kept. The walk stops at the
// first attribute whose declared length overruns the buffer; the number of
// bytes left unconsumed at that point is returned alongside the table.
func ParseAttrs(b []byte, max int) (AttrTable, int) {
	table := make(AttrTable, max+1)

	native := vnl.NativeEndian()
	for len(b) >= SizeofAttrHeader {
		size := int(native.Uint16(b[0:2]))
		typ := int(native.Uint16(b[2:4]))
		if size < SizeofAttrHeader || size > len(b) {
			break
		}

		if typ <= max && table[typ] == nil {
			// Full slice expression keeps appends by consumers from
			// spilling into the next attribute.
			table[typ] = b[SizeofAttrHeader:size:size]
		}

		next := Align(size)
		if next >= len(b) {
			b = b[len(b):]
			break
		}
		b = b[next:]
	}

	return table, len(b)
}
