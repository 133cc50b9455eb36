package device

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/arloliu/go-apt/apt"
)

// ustatusSize is the size of a USTATUSUPDATE payload. MOVE_COMPLETED and
// MOVE_STOPPED carry the same layout, optionally followed by six extra
// bytes.
const ustatusSize = 14

// StatusBits is the status word of a USTATUSUPDATE.
type StatusBits uint32

// Status bits reported by motor controllers.
const (
	StatusCWHardLimit   StatusBits = 0x00000001
	StatusCCWHardLimit  StatusBits = 0x00000002
	StatusCWSoftLimit   StatusBits = 0x00000004
	StatusCCWSoftLimit  StatusBits = 0x00000008
	StatusMovingCW      StatusBits = 0x00000010
	StatusMovingCCW     StatusBits = 0x00000020
	StatusJoggingCW     StatusBits = 0x00000040
	StatusJoggingCCW    StatusBits = 0x00000080
	StatusConnected     StatusBits = 0x00000100
	StatusHoming        StatusBits = 0x00000200
	StatusHomed         StatusBits = 0x00000400
	StatusTracking      StatusBits = 0x00001000
	StatusSettled       StatusBits = 0x00002000
	StatusMotionError   StatusBits = 0x00004000
	StatusCurrentLimit  StatusBits = 0x01000000
	StatusChannelEnable StatusBits = 0x80000000
)

var statusBitNames = []struct {
	bit  StatusBits
	name string
}{
	{StatusCWHardLimit, "cw_hard_limit"},
	{StatusCCWHardLimit, "ccw_hard_limit"},
	{StatusCWSoftLimit, "cw_soft_limit"},
	{StatusCCWSoftLimit, "ccw_soft_limit"},
	{StatusMovingCW, "moving_cw"},
	{StatusMovingCCW, "moving_ccw"},
	{StatusJoggingCW, "jogging_cw"},
	{StatusJoggingCCW, "jogging_ccw"},
	{StatusConnected, "connected"},
	{StatusHoming, "homing"},
	{StatusHomed, "homed"},
	{StatusTracking, "tracking"},
	{StatusSettled, "settled"},
	{StatusMotionError, "motion_error"},
	{StatusCurrentLimit, "current_limit"},
	{StatusChannelEnable, "channel_enabled"},
}

// Has reports whether every bit of flag is set.
func (s StatusBits) Has(flag StatusBits) bool {
	return s&flag == flag
}

// Moving reports whether the motor is moving or jogging in either direction.
func (s StatusBits) Moving() bool {
	return s&(StatusMovingCW|StatusMovingCCW|StatusJoggingCW|StatusJoggingCCW) != 0
}

// String lists the names of the set bits joined by '|'.
func (s StatusBits) String() string {
	if s == 0 {
		return "none"
	}

	names := make([]string, 0, 4)
	rest := s
	for _, b := range statusBitNames {
		if s&b.bit != 0 {
			names = append(names, b.name)
			rest &^= b.bit
		}
	}

	if rest != 0 {
		names = append(names, fmt.Sprintf("0x%08X", uint32(rest)))
	}

	return strings.Join(names, "|")
}

// UStatus is the decoded payload of GET_USTATUSUPDATE, MOVE_COMPLETED and
// MOVE_STOPPED.
type UStatus struct {
	Channel      ChannelID
	Position     int32
	Velocity     uint16
	MotorCurrent int16
	Status       StatusBits
}

func decodeUStatus(payload []byte) (*UStatus, error) {
	if len(payload) < ustatusSize {
		return nil, fmt.Errorf("%w: status payload has %d bytes, want at least %d", ErrUnexpectedReply, len(payload), ustatusSize)
	}

	le := binary.LittleEndian

	return &UStatus{
		Channel:      ChannelID(le.Uint16(payload[0:2])),
		Position:     int32(le.Uint32(payload[2:6])),
		Velocity:     le.Uint16(payload[6:8]),
		MotorCurrent: int16(le.Uint16(payload[8:10])),
		Status:       StatusBits(le.Uint32(payload[10:14])),
	}, nil
}

// MarshalBinary encodes the status in its 14-byte wire layout.
func (s *UStatus) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ustatusSize)
	le := binary.LittleEndian
	le.PutUint16(buf[0:2], uint16(s.Channel))
	le.PutUint32(buf[2:6], uint32(s.Position))
	le.PutUint16(buf[6:8], s.Velocity)
	le.PutUint16(buf[8:10], uint16(s.MotorCurrent))
	le.PutUint32(buf[10:14], uint32(s.Status))

	return buf, nil
}

// DecodeUStatus decodes the status carried by msg.
func DecodeUStatus(msg *apt.Message) (*UStatus, error) {
	if msg == nil || !carriesStatus(msg.ID) {
		return nil, fmt.Errorf("%w: message does not carry a status", ErrUnexpectedReply)
	}

	return decodeUStatus(msg.Payload)
}

func carriesStatus(id apt.MessageID) bool {
	switch id {
	case apt.MotGetUStatus, apt.MotMoveCompleted, apt.MotMoveStopped:
		return true
	}

	return false
}
