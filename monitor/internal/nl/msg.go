package nl

import (
	"iter"

	vnl "github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

const (
	// alignTo is the alignment of both netlink messages and route
	// attributes.
	alignTo = 4
	// SizeofHeader is the size of the netlink message header.
	SizeofHeader = unix.SizeofNlMsghdr
)

// Align rounds n up to the netlink alignment boundary.
func Align(n int) int {
	return (n + alignTo - 1) &^ (alignTo - 1)
}

// Header is the netlink message header.
//
// Len counts the header itself, so the payload length is Len-SizeofHeader.
type Header struct {
	Len   uint32
	Type  uint16
	Flags uint16
	Seq   uint32
	Pid   uint32
}

// DecodeHeader decodes a message header from the beginning of b.
//
// The second return value is false when b is too short to hold a header.
func DecodeHeader(b []byte) (Header, bool) {
	if len(b) < SizeofHeader {
		return Header{}, false
	}

	native := vnl.NativeEndian()
	return Header{
		Len:   native.Uint32(b[0:4]),
		Type:  native.Uint16(b[4:6]),
		Flags: native.Uint16(b[6:8]),
		Seq:   native.Uint32(b[8:12]),
		Pid:   native.Uint32(b[12:16]),
	}, true
}

// AppendHeader appends the wire representation of h to b.
func AppendHeader(b []byte, h Header) []byte {
	var buf [SizeofHeader]byte

	native := vnl.NativeEndian()
	native.PutUint32(buf[0:4], h.Len)
	native.PutUint16(buf[4:6], h.Type)
	native.PutUint16(buf[6:8], h.Flags)
	native.PutUint32(buf[8:12], h.Seq)
	native.PutUint32(buf[12:16], h.Pid)
	return append(b, buf[:]...)
}

// Message is a single framed netlink message.
//
// Data aliases the receive buffer and is valid only as long as the buffer
// is not reused.
type Message struct {
	Header Header
	// Data is the payload following the header, exactly
	// Header.Len-SizeofHeader bytes long.
	Data []byte
}

// Messages returns a lazy sequence of messages framed in b.
//
// Iteration stops at the first message whose declared length does not fit
// into the remaining bytes, so a partial trailing message is silently
// dropped.
func Messages(b []byte) iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for {
			h, ok := DecodeHeader(b)
			if !ok {
				return
			}

			size := int(h.Len)
			if size < SizeofHeader || size > len(b) {
				return
			}

			if !yield(Message{Header: h, Data: b[SizeofHeader:size]}) {
				return
			}

			next := Align(size)
			if next >= len(b) {
				return
			}
			b = b[next:]
		}
	}
}
