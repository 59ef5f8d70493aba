package nl

import (
	"testing"

	"github.com/stretchr/testify/require"
	vnl "github.com/vishvananda/netlink/nl"
)

func serializeAttrs(attrs ...*vnl.RtAttr) []byte {
	var b []byte
	for _, attr := range attrs {
		b = append(b, attr.Serialize()...)
	}
	return b
}

func TestParseAttrsIndexesPresentTypes(t *testing.T) {
	b := serializeAttrs(
		vnl.NewRtAttr(1, []byte{0xfe, 0x80}),
		vnl.NewRtAttr(3, []byte("eth0\x00")),
		vnl.NewRtAttr(2, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}),
	)

	table, rest := ParseAttrs(b, 4)
	require.Zero(t, rest)
	require.Len(t, table, 5)

	for typ, expected := range map[uint16][]byte{
		1: {0xfe, 0x80},
		2: {0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		3: []byte("eth0\x00"),
	} {
		payload, ok := table.Get(typ)
		require.True(t, ok, "type %d", typ)
		// Payload length is exact, padding is not exposed.
		require.Equal(t, expected, payload, "type %d", typ)
	}

	for _, typ := range []uint16{0, 4, 5, 100} {
		_, ok := table.Get(typ)
		require.False(t, ok, "type %d", typ)
	}
}

func TestParseAttrsFirstOccurrenceWins(t *testing.T) {
	b := serializeAttrs(
		vnl.NewRtAttr(1, []byte{1}),
		vnl.NewRtAttr(1, []byte{2, 2}),
		vnl.NewRtAttr(1, []byte{3, 3, 3}),
	)

	table, _ := ParseAttrs(b, 1)
	payload, ok := table.Get(1)
	require.True(t, ok)
	require.Equal(t, []byte{1}, payload)
}

func TestParseAttrsIgnoresTypesAboveBound(t *testing.T) {
	b := serializeAttrs(
		vnl.NewRtAttr(7, []byte{7}),
		vnl.NewRtAttr(2, []byte{2}),
	)

	table, rest := ParseAttrs(b, 2)
	require.Zero(t, rest)
	require.Len(t, table, 3)

	payload, ok := table.Get(2)
	require.True(t, ok)
	require.Equal(t, []byte{2}, payload)

	_, ok = table.Get(7)
	require.False(t, ok)
}

func TestParseAttrsEmptyPayloadIsPresent(t *testing.T) {
	b := serializeAttrs(vnl.NewRtAttr(1, nil))

	table, _ := ParseAttrs(b, 1)
	payload, ok := table.Get(1)
	require.True(t, ok)
	require.Empty(t, payload)
}

func TestParseAttrsStopsAtOverrunningAttribute(t *testing.T) {
	good := vnl.NewRtAttr(1, []byte{1, 1, 1, 1}).Serialize()
	bad := vnl.NewRtAttr(2, []byte{2, 2, 2, 2, 2, 2, 2, 2}).Serialize()

	b := append(append([]byte{}, good...), bad[:8]...)

	table, rest := ParseAttrs(b, 2)
	payload, ok := table.Get(1)
	require.True(t, ok)
	require.Equal(t, []byte{1, 1, 1, 1}, payload)

	_, ok = table.Get(2)
	require.False(t, ok)
	// The overrunning attribute is left as trailing bytes.
	require.Equal(t, 8, rest)
}

func TestParseAttrsTrailingPadding(t *testing.T) {
	b := serializeAttrs(vnl.NewRtAttr(1, []byte{1, 2, 3, 4}))
	b = append(b, 0, 0)

	table, rest := ParseAttrs(b, 1)
	_, ok := table.Get(1)
	require.True(t, ok)
	require.Equal(t, 2, rest)
}

func TestParseAttrsUnpaddedLastAttribute(t *testing.T) {
	b := serializeAttrs(
		vnl.NewRtAttr(1, []byte{1, 2, 3, 4}),
		vnl.NewRtAttr(2, []byte{5}),
	)
	// Drop the padding of the last attribute.
	b = b[:len(b)-3]

	table, rest := ParseAttrs(b, 2)
	require.Zero(t, rest)

	payload, ok := table.Get(2)
	require.True(t, ok)
	require.Equal(t, []byte{5}, payload)
}

func TestParseAttrsPayloadDoesNotAliasNextAttribute(t *testing.T) {
	b := serializeAttrs(
		vnl.NewRtAttr(1, []byte{1}),
		vnl.NewRtAttr(2, []byte{2}),
	)

	table, _ := ParseAttrs(b, 2)
	first, _ := table.Get(1)
	_ = append(first, 0xff)

	second, ok := table.Get(2)
	require.True(t, ok)
	require.Equal(t, []byte{2}, second)
}
