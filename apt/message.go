package apt

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// HeaderSize is the size of every APT frame header, and the total size of a
// short frame.
const HeaderSize = 6

// MaxPayloadSize is the largest payload the 15-bit length field can declare.
const MaxPayloadSize = 0x7FFF

// longFormFlag is set in the destination byte of long frames.
const longFormFlag = 0x80

// Address is a one-byte APT module address.
type Address byte

// Well-known APT addresses.
const (
	AddrHostController Address = 0x01
	AddrRackController Address = 0x11
	AddrBay0           Address = 0x21
	AddrBay1           Address = 0x22
	AddrBay2           Address = 0x23
	AddrGenericUSB     Address = 0x50
)

// Message is one APT frame.
//
// A message is in long form when Payload is non-nil (an empty, non-nil
// payload is a valid zero-length long frame); otherwise it is in short form
// and carries Param1 and Param2 inline. Destination and Source hold plain
// addresses; the long-form flag bit is added and stripped by the codec.
type Message struct {
	ID          MessageID
	Destination Address
	Source      Address
	Param1      byte
	Param2      byte
	Payload     []byte
}

// NewShortMessage creates a short-form message.
func NewShortMessage(id MessageID, param1, param2 byte, dst, src Address) *Message {
	return &Message{ID: id, Param1: param1, Param2: param2, Destination: dst, Source: src}
}

// NewLongMessage creates a long-form message. A nil payload is treated as an
// empty one.
func NewLongMessage(id MessageID, dst, src Address, payload []byte) *Message {
	if payload == nil {
		payload = []byte{}
	}

	return &Message{ID: id, Destination: dst, Source: src, Payload: payload}
}

// IsLong reports whether the message uses the long (payload) form.
func (m *Message) IsLong() bool {
	return m.Payload != nil
}

// IsFault reports whether the message is a device fault report.
func (m *Message) IsFault() bool {
	return m.ID == HwResponse || m.ID == HwRichResponse
}

// Channel returns the channel identifier carried by the message: param1 for
// short frames, the first two little-endian payload bytes for long frames.
// It returns 0 when a long payload is shorter than two bytes.
func (m *Message) Channel() uint16 {
	if !m.IsLong() {
		return uint16(m.Param1)
	}

	if len(m.Payload) < 2 {
		return 0
	}

	return binary.LittleEndian.Uint16(m.Payload[:2])
}

// Size returns the encoded size of the message in bytes.
func (m *Message) Size() int {
	return HeaderSize + len(m.Payload)
}

// Validate checks the message against the wire constraints and the built-in
// message table.
func (m *Message) Validate() error {
	return m.validate(defaultMessageTable)
}

func (m *Message) validate(table MessageTable) error {
	if m.Destination&longFormFlag != 0 {
		return fmt.Errorf("%w: destination 0x%02X uses the long-form flag bit", ErrEncoding, byte(m.Destination))
	}

	if m.Source&longFormFlag != 0 {
		return fmt.Errorf("%w: source 0x%02X uses the long-form flag bit", ErrEncoding, byte(m.Source))
	}

	if m.IsLong() && (m.Param1 != 0 || m.Param2 != 0) {
		return fmt.Errorf("%w: %s has both inline params and a payload", ErrEncoding, m.ID)
	}

	if len(m.Payload) > MaxPayloadSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrEncoding, len(m.Payload), MaxPayloadSize)
	}

	info, known := table[m.ID]
	if !known {
		return nil
	}

	switch {
	case info.Form == FormShort && m.IsLong():
		return fmt.Errorf("%w: %s must be sent in short form", ErrEncoding, m.ID)
	case info.Form == FormLong && !m.IsLong():
		return fmt.Errorf("%w: %s must be sent in long form", ErrEncoding, m.ID)
	case m.IsLong() && !info.validPayloadSize(len(m.Payload)):
		return fmt.Errorf("%w: %s payload size %d, want one of %v", ErrEncoding, m.ID, len(m.Payload), info.PayloadSizes)
	}

	return nil
}

// Encode returns the canonical wire form of the message.
func (m *Message) Encode() ([]byte, error) {
	return encode(m, defaultMessageTable)
}

// Encode returns the canonical wire form of msg.
func Encode(msg *Message) ([]byte, error) {
	return encode(msg, defaultMessageTable)
}

func encode(m *Message, table MessageTable) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrEncoding)
	}

	if err := m.validate(table); err != nil {
		return nil, err
	}

	buf := make([]byte, m.Size())
	binary.LittleEndian.PutUint16(buf[0:2], uint16(m.ID))
	buf[5] = byte(m.Source)

	if !m.IsLong() {
		buf[2] = m.Param1
		buf[3] = m.Param2
		buf[4] = byte(m.Destination)

		return buf, nil
	}

	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(m.Payload))) //nolint:gosec // bounded by MaxPayloadSize
	buf[4] = byte(m.Destination) | longFormFlag
	copy(buf[HeaderSize:], m.Payload)

	return buf, nil
}

// Equal reports whether two messages encode to the same frame.
func (m *Message) Equal(other *Message) bool {
	if m == nil || other == nil {
		return m == other
	}

	if m.ID != other.ID || m.Destination != other.Destination || m.Source != other.Source ||
		m.Param1 != other.Param1 || m.Param2 != other.Param2 || m.IsLong() != other.IsLong() {
		return false
	}

	return string(m.Payload) == string(other.Payload)
}

// String returns a compact human-readable form for logs.
func (m *Message) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s dst=0x%02X src=0x%02X", m.ID, byte(m.Destination), byte(m.Source))
	if m.IsLong() {
		fmt.Fprintf(&sb, " len=%d", len(m.Payload))
	} else {
		fmt.Fprintf(&sb, " p1=0x%02X p2=0x%02X", m.Param1, m.Param2)
	}

	return sb.String()
}

// HexString returns the wire bytes of the message as space-separated hex,
// header and payload split, for trace logging. Invalid messages render as
// their String form.
func (m *Message) HexString() string {
	data, err := m.Encode()
	if err != nil {
		return m.String()
	}

	return hexDump(data)
}

func hexDump(data []byte) string {
	if len(data) <= HeaderSize {
		return hex.EncodeToString(data)
	}

	return hex.EncodeToString(data[:HeaderSize]) + " " + hex.EncodeToString(data[HeaderSize:])
}
