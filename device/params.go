package device

import (
	"encoding/binary"
	"fmt"
)

// ChannelID identifies a motor channel. Single channel controllers use
// Channel1; the MPC320 addresses paddles as a bit mask.
type ChannelID uint16

// Channel identifiers.
const (
	Channel1 ChannelID = 0x01
	Channel2 ChannelID = 0x02
	Channel3 ChannelID = 0x04
)

// Channel enable state values of MOD_SET_CHANENABLESTATE.
const (
	enableStateOn  byte = 0x01
	enableStateOff byte = 0x02
)

// JogDirection selects the direction of a jog.
type JogDirection byte

const (
	JogForward JogDirection = 0x01
	JogReverse JogDirection = 0x02
)

// StopMode selects how MOVE_STOP decelerates.
type StopMode byte

const (
	StopImmediate  StopMode = 0x01
	StopControlled StopMode = 0x02
)

// JogMode selects continuous or single step jogging.
type JogMode uint16

const (
	JogContinuous JogMode = 0x01
	JogSingleStep JogMode = 0x02
)

// HomeDirection selects the homing direction.
type HomeDirection uint16

const (
	HomeForward HomeDirection = 0x01
	HomeReverse HomeDirection = 0x02
)

// LimitSwitch selects the limit switch used for homing.
type LimitSwitch uint16

const (
	LimitSwitchHardReverse LimitSwitch = 0x01
	LimitSwitchHardForward LimitSwitch = 0x04
)

const (
	velParamsSize  = 14
	jogParamsSize  = 22
	homeParamsSize = 14
	polParamsSize  = 12
)

// VelParams are the trapezoidal velocity profile parameters.
type VelParams struct {
	MinVelocity  int32
	Acceleration int32
	MaxVelocity  int32
}

func (p VelParams) encode(ch ChannelID) []byte {
	buf := make([]byte, velParamsSize)
	le := binary.LittleEndian
	le.PutUint16(buf[0:2], uint16(ch))
	le.PutUint32(buf[2:6], uint32(p.MinVelocity))
	le.PutUint32(buf[6:10], uint32(p.Acceleration))
	le.PutUint32(buf[10:14], uint32(p.MaxVelocity))

	return buf
}

func decodeVelParams(payload []byte) (VelParams, error) {
	if len(payload) != velParamsSize {
		return VelParams{}, payloadSizeError("velocity parameters", len(payload), velParamsSize)
	}

	le := binary.LittleEndian

	return VelParams{
		MinVelocity:  int32(le.Uint32(payload[2:6])),
		Acceleration: int32(le.Uint32(payload[6:10])),
		MaxVelocity:  int32(le.Uint32(payload[10:14])),
	}, nil
}

// JogParams are the jog parameters.
type JogParams struct {
	Mode         JogMode
	StepSize     int32
	MinVelocity  int32
	Acceleration int32
	MaxVelocity  int32
	StopMode     StopMode
}

func (p JogParams) encode(ch ChannelID) []byte {
	buf := make([]byte, jogParamsSize)
	le := binary.LittleEndian
	le.PutUint16(buf[0:2], uint16(ch))
	le.PutUint16(buf[2:4], uint16(p.Mode))
	le.PutUint32(buf[4:8], uint32(p.StepSize))
	le.PutUint32(buf[8:12], uint32(p.MinVelocity))
	le.PutUint32(buf[12:16], uint32(p.Acceleration))
	le.PutUint32(buf[16:20], uint32(p.MaxVelocity))
	le.PutUint16(buf[20:22], uint16(p.StopMode))

	return buf
}

func decodeJogParams(payload []byte) (JogParams, error) {
	if len(payload) != jogParamsSize {
		return JogParams{}, payloadSizeError("jog parameters", len(payload), jogParamsSize)
	}

	le := binary.LittleEndian

	return JogParams{
		Mode:         JogMode(le.Uint16(payload[2:4])),
		StepSize:     int32(le.Uint32(payload[4:8])),
		MinVelocity:  int32(le.Uint32(payload[8:12])),
		Acceleration: int32(le.Uint32(payload[12:16])),
		MaxVelocity:  int32(le.Uint32(payload[16:20])),
		StopMode:     StopMode(le.Uint16(payload[20:22])),
	}, nil
}

// HomeParams are the homing parameters.
type HomeParams struct {
	Direction   HomeDirection
	LimitSwitch LimitSwitch
	Velocity    int32
	Offset      int32
}

func (p HomeParams) encode(ch ChannelID) []byte {
	buf := make([]byte, homeParamsSize)
	le := binary.LittleEndian
	le.PutUint16(buf[0:2], uint16(ch))
	le.PutUint16(buf[2:4], uint16(p.Direction))
	le.PutUint16(buf[4:6], uint16(p.LimitSwitch))
	le.PutUint32(buf[6:10], uint32(p.Velocity))
	le.PutUint32(buf[10:14], uint32(p.Offset))

	return buf
}

func decodeHomeParams(payload []byte) (HomeParams, error) {
	if len(payload) != homeParamsSize {
		return HomeParams{}, payloadSizeError("home parameters", len(payload), homeParamsSize)
	}

	le := binary.LittleEndian

	return HomeParams{
		Direction:   HomeDirection(le.Uint16(payload[2:4])),
		LimitSwitch: LimitSwitch(le.Uint16(payload[4:6])),
		Velocity:    int32(le.Uint32(payload[6:10])),
		Offset:      int32(le.Uint32(payload[10:14])),
	}, nil
}

// PolParams are the MPC320 paddle parameters. Velocity is a percentage of
// the maximum paddle speed; the other fields are encoder counts.
type PolParams struct {
	Velocity     uint16
	HomePosition uint16
	JogStep1     uint16
	JogStep2     uint16
	JogStep3     uint16
}

func (p PolParams) encode() []byte {
	buf := make([]byte, polParamsSize)
	le := binary.LittleEndian
	// bytes 0..1 are unused
	le.PutUint16(buf[2:4], p.Velocity)
	le.PutUint16(buf[4:6], p.HomePosition)
	le.PutUint16(buf[6:8], p.JogStep1)
	le.PutUint16(buf[8:10], p.JogStep2)
	le.PutUint16(buf[10:12], p.JogStep3)

	return buf
}

func decodePolParams(payload []byte) (PolParams, error) {
	if len(payload) != polParamsSize {
		return PolParams{}, payloadSizeError("polarization parameters", len(payload), polParamsSize)
	}

	le := binary.LittleEndian

	return PolParams{
		Velocity:     le.Uint16(payload[2:4]),
		HomePosition: le.Uint16(payload[4:6]),
		JogStep1:     le.Uint16(payload[6:8]),
		JogStep2:     le.Uint16(payload[8:10]),
		JogStep3:     le.Uint16(payload[10:12]),
	}, nil
}

func payloadSizeError(what string, got, want int) error {
	return fmt.Errorf("%w: %s payload has %d bytes, want %d", ErrUnexpectedReply, what, got, want)
}
