package apt

import (
	"encoding/binary"
	"fmt"
)

// DefaultMaxPayloadSize is the largest long-form payload accepted by a
// decoder unless configured otherwise. The biggest payload in the built-in
// message table is HW_GET_INFO at 84 bytes.
const DefaultMaxPayloadSize = 512

// Decode decodes the frame at the start of buf using the built-in message
// table and DefaultMaxPayloadSize.
//
// It returns the message and the number of bytes it occupies. When buf holds
// only part of a frame it returns ErrNeedMoreData; when the bytes at the
// start of buf cannot begin a valid frame it returns an error wrapping
// ErrFrame. Decode never retains buf.
func Decode(buf []byte) (*Message, int, error) {
	return decodeFrame(buf, defaultMessageTable, DefaultMaxPayloadSize)
}

func decodeFrame(buf []byte, table MessageTable, maxPayload int) (*Message, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, ErrNeedMoreData
	}

	id := MessageID(binary.LittleEndian.Uint16(buf[0:2]))
	dst := buf[4]
	src := buf[5]
	long := dst&longFormFlag != 0

	if src&longFormFlag != 0 {
		return nil, 0, fmt.Errorf("%w: %s source 0x%02X has the long-form flag set", ErrFrame, id, src)
	}

	info, known := table[id]
	switch {
	case known && info.Form == FormShort && long:
		return nil, 0, fmt.Errorf("%w: %s is short-only but flagged long", ErrFrame, id)
	case known && info.Form == FormLong && !long:
		return nil, 0, fmt.Errorf("%w: %s is long-only but not flagged long", ErrFrame, id)
	}

	if !long {
		return &Message{
			ID:          id,
			Param1:      buf[2],
			Param2:      buf[3],
			Destination: Address(dst),
			Source:      Address(src),
		}, HeaderSize, nil
	}

	length := binary.LittleEndian.Uint16(buf[2:4])
	if length&0x8000 != 0 {
		return nil, 0, fmt.Errorf("%w: %s length field 0x%04X has the high bit set", ErrFrame, id, length)
	}

	size := int(length)
	if size > maxPayload {
		return nil, 0, fmt.Errorf("%w: %s declares %d payload bytes, maximum is %d", ErrFrame, id, size, maxPayload)
	}

	if known && !info.validPayloadSize(size) {
		return nil, 0, fmt.Errorf("%w: %s declares %d payload bytes, want one of %v", ErrFrame, id, size, info.PayloadSizes)
	}

	if len(buf) < HeaderSize+size {
		return nil, 0, ErrNeedMoreData
	}

	payload := make([]byte, size)
	copy(payload, buf[HeaderSize:HeaderSize+size])

	return &Message{
		ID:          id,
		Destination: Address(dst &^ longFormFlag),
		Source:      Address(src),
		Payload:     payload,
	}, HeaderSize + size, nil
}

// Decoder is an incremental frame decoder for a byte stream that arrives in
// arbitrary chunks.
//
// Bytes are appended with Feed and frames are taken out with Next. After a
// malformed frame the decoder drops a single byte so the following call
// rescans from the next offset, which lets it lock back onto the first
// well-formed frame in the stream.
//
// Decoder is NOT goroutine-safe; a connection's reader loop is its only user.
type Decoder struct {
	buf        []byte
	off        int
	table      MessageTable
	maxPayload int
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithDecoderTable sets the message table used to validate frame forms.
func WithDecoderTable(table MessageTable) DecoderOption {
	return func(d *Decoder) {
		if table != nil {
			d.table = table
		}
	}
}

// WithDecoderMaxPayload sets the largest declared payload size the decoder
// will buffer. Values outside [0, MaxPayloadSize] are ignored.
func WithDecoderMaxPayload(n int) DecoderOption {
	return func(d *Decoder) {
		if n >= 0 && n <= MaxPayloadSize {
			d.maxPayload = n
		}
	}
}

// NewDecoder creates an empty Decoder.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		table:      defaultMessageTable,
		maxPayload: DefaultMaxPayloadSize,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Feed appends received bytes to the decoder buffer. p is copied.
func (d *Decoder) Feed(p []byte) {
	if len(p) == 0 {
		return
	}

	d.compact()
	d.buf = append(d.buf, p...)
}

// Next returns the next complete frame.
//
// It returns ErrNeedMoreData when no complete frame is buffered, and an
// error wrapping ErrFrame when the bytes at the current position are
// malformed; in the latter case one byte has been discarded and Next should
// be called again.
func (d *Decoder) Next() (*Message, error) {
	msg, n, err := decodeFrame(d.buf[d.off:], d.table, d.maxPayload)
	if err != nil {
		if err != ErrNeedMoreData { //nolint:errorlint // sentinel returned unwrapped
			d.off++
		}

		return nil, err
	}

	d.off += n

	return msg, nil
}

// Buffered returns the number of bytes waiting to be decoded.
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

// Reset discards all buffered bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.off = 0
}

func (d *Decoder) compact() {
	if d.off == 0 {
		return
	}

	n := copy(d.buf, d.buf[d.off:])
	d.buf = d.buf[:n]
	d.off = 0
}
