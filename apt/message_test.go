package apt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncode_ShortFrameBytes(t *testing.T) {
	require := require.New(t)

	// HW_REQ_INFO to the generic USB device.
	msg := NewShortMessage(HwReqInfo, 0, 0, AddrGenericUSB, AddrHostController)
	data, err := Encode(msg)
	require.NoError(err)
	require.Equal([]byte{0x05, 0x00, 0x00, 0x00, 0x50, 0x01}, data)

	// HW_DISCONNECT.
	data, err = Encode(NewShortMessage(HwDisconnect, 0, 0, AddrGenericUSB, AddrHostController))
	require.NoError(err)
	require.Equal([]byte{0x02, 0x00, 0x00, 0x00, 0x50, 0x01}, data)

	// MOD_SET_CHANENABLESTATE channel 1 enabled.
	data, err = Encode(NewShortMessage(ModSetChanEnable, 0x01, 0x01, AddrGenericUSB, AddrHostController))
	require.NoError(err)
	require.Equal([]byte{0x10, 0x02, 0x01, 0x01, 0x50, 0x01}, data)
}

func TestEncode_LongFrameBytes(t *testing.T) {
	require := require.New(t)

	// MOT_MOVE_ABSOLUTE channel 1 to position 0x00010203.
	payload := []byte{0x01, 0x00, 0x03, 0x02, 0x01, 0x00}
	data, err := Encode(NewLongMessage(MotMoveAbsolute, AddrGenericUSB, AddrHostController, payload))
	require.NoError(err)
	require.Equal([]byte{0x53, 0x04, 0x06, 0x00, 0xD0, 0x01, 0x01, 0x00, 0x03, 0x02, 0x01, 0x00}, data)
}

func TestDecode_UStatusUpdateFromDevice(t *testing.T) {
	require := require.New(t)

	raw := []byte{
		0x91, 0x04, 0x0e, 0x00, 0x81, 0x22,
		0x01, 0x00, // channel
		0x10, 0x27, 0x00, 0x00, // position
		0x00, 0x00, // velocity
		0x00, 0x00, // current
		0x00, 0x04, 0x00, 0x80, // status bits
	}

	msg, n, err := Decode(raw)
	require.NoError(err)
	require.Equal(len(raw), n)
	require.Equal(MotGetUStatus, msg.ID)
	require.Equal(AddrHostController, msg.Destination)
	require.Equal(AddrBay1, msg.Source)
	require.True(msg.IsLong())
	require.Len(msg.Payload, 14)
	require.Equal(uint16(1), msg.Channel())
}

func TestEncode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{"nil message", nil},
		{"params with payload", &Message{ID: MotMoveAbsolute, Param1: 1, Destination: 0x50, Source: 0x01, Payload: make([]byte, 6)}},
		{"flagged destination", NewShortMessage(HwReqInfo, 0, 0, 0xD0, 0x01)},
		{"flagged source", NewShortMessage(HwReqInfo, 0, 0, 0x50, 0x81)},
		{"oversized payload", NewLongMessage(0x7777, 0x50, 0x01, make([]byte, MaxPayloadSize+1))},
		{"long form of short-only id", NewLongMessage(HwReqInfo, 0x50, 0x01, []byte{})},
		{"short form of long-only id", NewShortMessage(MotSetVelParams, 1, 0, 0x50, 0x01)},
		{"bad payload size", NewLongMessage(MotSetVelParams, 0x50, 0x01, make([]byte, 13))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.msg)
			require.ErrorIs(t, err, ErrEncoding)
		})
	}
}

func TestRoundTrip_Boundaries(t *testing.T) {
	payloadOf := func(n int) []byte {
		p := make([]byte, n)
		for i := range p {
			p[i] = byte(i * 7)
		}

		return p
	}

	tests := []struct {
		name string
		msg  *Message
	}{
		{"short", NewShortMessage(ModIdentify, 0x01, 0x00, AddrGenericUSB, AddrHostController)},
		{"short unknown id", NewShortMessage(0x7FFF, 0xAA, 0x55, 0x7F, 0x7F)},
		{"long empty payload", NewLongMessage(0x0999, AddrGenericUSB, AddrHostController, nil)},
		{"long known size", NewLongMessage(MotSetVelParams, AddrGenericUSB, AddrHostController, chanPayload(1, 14))},
		{"long max payload", NewLongMessage(0x0999, AddrGenericUSB, AddrHostController, payloadOf(MaxPayloadSize))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			data := mustEncode(t, tt.msg)
			require.Equal(tt.msg.Size(), len(data))

			got, n, err := decodeFrame(data, defaultMessageTable, MaxPayloadSize)
			require.NoError(err)
			require.Equal(len(data), n)
			require.True(tt.msg.Equal(got), "want %s, got %s", tt.msg, got)
		})
	}
}

func TestMessage_Channel(t *testing.T) {
	require := require.New(t)

	require.Equal(uint16(2), NewShortMessage(MotMoveHome, 2, 0, 0x50, 0x01).Channel())
	require.Equal(uint16(0x0102), NewLongMessage(0x0999, 0x50, 0x01, []byte{0x02, 0x01, 0xFF}).Channel())
	require.Equal(uint16(0), NewLongMessage(0x0999, 0x50, 0x01, []byte{0x02}).Channel())
}

func TestMessage_EqualDistinguishesForm(t *testing.T) {
	short := NewShortMessage(0x0999, 0, 0, 0x50, 0x01)
	long := NewLongMessage(0x0999, 0x50, 0x01, nil)

	require.False(t, short.Equal(long))
	require.True(t, long.Equal(NewLongMessage(0x0999, 0x50, 0x01, []byte{})))
	require.True(t, (*Message)(nil).Equal(nil))
}

func TestMessage_StringAndHex(t *testing.T) {
	require := require.New(t)

	msg := NewShortMessage(HwReqInfo, 0, 0, AddrGenericUSB, AddrHostController)
	require.Equal("MGMSG_HW_REQ_INFO dst=0x50 src=0x01 p1=0x00 p2=0x00", msg.String())
	require.Equal("050000005001", msg.HexString())

	long := NewLongMessage(0x0999, AddrGenericUSB, AddrHostController, []byte{0xAB})
	require.Equal("0x0999 dst=0x50 src=0x01 len=1", long.String())
	require.Equal("99090100d001 ab", long.HexString())
}

func TestDeviceError_Is(t *testing.T) {
	fault := NewShortMessage(HwResponse, 0, 0, AddrHostController, AddrGenericUSB)

	var err error = &DeviceError{Reply: fault}
	require.ErrorIs(t, err, ErrDevice)

	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	require.Same(t, fault, devErr.Reply)
	require.Contains(t, err.Error(), "MGMSG_HW_RESPONSE")
}
