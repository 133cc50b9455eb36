package device

import (
	"testing"

	"github.com/arloliu/go-apt/apt"
	"github.com/stretchr/testify/require"
)

func TestDecodeUStatus(t *testing.T) {
	require := require.New(t)

	frame := mustHex(t, "91040e0081220100000000010001ffff07000000")
	msg, n, err := apt.Decode(frame)
	require.NoError(err)
	require.Equal(len(frame), n)

	st, err := DecodeUStatus(msg)
	require.NoError(err)
	require.Equal(Channel1, st.Channel)
	require.Equal(int32(16777216), st.Position)
	require.Equal(uint16(256), st.Velocity)
	require.Equal(int16(-1), st.MotorCurrent)
	require.Equal(StatusCWHardLimit|StatusCCWHardLimit|StatusCWSoftLimit, st.Status)
	require.Equal("cw_hard_limit|ccw_hard_limit|cw_soft_limit", st.Status.String())

	buf, err := st.MarshalBinary()
	require.NoError(err)
	require.Equal(msg.Payload, buf)
}

func TestDecodeUStatus_Rejects(t *testing.T) {
	require := require.New(t)

	_, err := DecodeUStatus(apt.NewShortMessage(apt.MotMoveHomed, 1, 0, apt.AddrHostController, apt.AddrGenericUSB))
	require.ErrorIs(err, ErrUnexpectedReply)

	_, err = decodeUStatus(make([]byte, 10))
	require.ErrorIs(err, ErrUnexpectedReply)

	// MOVE_COMPLETED may carry six trailing bytes
	st, err := decodeUStatus(make([]byte, 20))
	require.NoError(err)
	require.Equal(StatusBits(0), st.Status)
}

func TestStatusBits(t *testing.T) {
	require := require.New(t)

	s := StatusMovingCW | StatusConnected | StatusBits(0x00100000)
	require.True(s.Has(StatusConnected))
	require.False(s.Has(StatusHomed))
	require.True(s.Moving())
	require.False(StatusHomed.Moving())
	require.Equal("moving_cw|connected|0x00100000", s.String())
	require.Equal("none", StatusBits(0).String())
}

func TestDecodeHwInfo(t *testing.T) {
	require := require.New(t)

	msg, _, err := apt.Decode(mustHex(t, hwInfoVector))
	require.NoError(err)
	require.Equal(apt.Address(0x22), msg.Source)

	info, err := decodeHwInfo(msg)
	require.NoError(err)
	require.Equal(uint32(94000009), info.SerialNumber)
	require.Equal("ION001 ", info.ModelNumber)
	require.Equal(uint16(44), info.HardwareType)
	require.Equal("57.1.2", info.FirmwareVersion.String())
	require.Equal(uint16(1), info.HardwareVersion)
	require.Equal(uint16(3), info.ModState)
	require.Equal(uint16(1), info.NumChannels)

	_, err = decodeHwInfo(apt.NewLongMessage(apt.HwGetInfo, 1, 0x50, make([]byte, 10)))
	require.ErrorIs(err, ErrUnexpectedReply)
}

func TestParamsWireLayout(t *testing.T) {
	require := require.New(t)

	vel := VelParams{MinVelocity: 1, Acceleration: 2, MaxVelocity: 3}
	require.Equal(mustHex(t, "0100"+"01000000"+"02000000"+"03000000"), vel.encode(Channel1))
	gotVel, err := decodeVelParams(vel.encode(Channel1))
	require.NoError(err)
	require.Equal(vel, gotVel)

	jog := JogParams{Mode: JogSingleStep, StepSize: -1, MinVelocity: 0, Acceleration: 4, MaxVelocity: 5, StopMode: StopControlled}
	require.Equal(mustHex(t, "0100"+"0200"+"ffffffff"+"00000000"+"04000000"+"05000000"+"0200"), jog.encode(Channel1))
	gotJog, err := decodeJogParams(jog.encode(Channel1))
	require.NoError(err)
	require.Equal(jog, gotJog)

	home := HomeParams{Direction: HomeReverse, LimitSwitch: LimitSwitchHardReverse, Velocity: 7, Offset: -2}
	require.Equal(mustHex(t, "0100"+"0200"+"0100"+"07000000"+"feffffff"), home.encode(Channel1))
	gotHome, err := decodeHomeParams(home.encode(Channel1))
	require.NoError(err)
	require.Equal(home, gotHome)

	pol := PolParams{Velocity: 50, HomePosition: 1, JogStep1: 2, JogStep2: 3, JogStep3: 4}
	require.Equal(mustHex(t, "0000"+"3200"+"0100"+"0200"+"0300"+"0400"), pol.encode())
	gotPol, err := decodePolParams(pol.encode())
	require.NoError(err)
	require.Equal(pol, gotPol)

	_, err = decodeVelParams(make([]byte, 13))
	require.ErrorIs(err, ErrUnexpectedReply)
	_, err = decodeJogParams(make([]byte, 14))
	require.ErrorIs(err, ErrUnexpectedReply)
	_, err = decodeHomeParams(nil)
	require.ErrorIs(err, ErrUnexpectedReply)
	_, err = decodePolParams(make([]byte, 14))
	require.ErrorIs(err, ErrUnexpectedReply)
}

func TestMotionKeyFunc(t *testing.T) {
	require := require.New(t)

	payload := make([]byte, 14)
	payload[0] = 0x02

	completed := apt.NewLongMessage(apt.MotMoveCompleted, apt.AddrHostController, apt.AddrGenericUSB, payload)
	stopped := apt.NewLongMessage(apt.MotMoveStopped, apt.AddrHostController, apt.AddrGenericUSB, payload)
	homed := apt.NewShortMessage(apt.MotMoveHomed, 0x02, 0, apt.AddrHostController, apt.AddrGenericUSB)

	want := motionKey(apt.AddrGenericUSB, 2)
	require.Equal(want, MotionKeyFunc(completed))
	require.Equal(want, MotionKeyFunc(stopped))
	require.Equal(want, MotionKeyFunc(homed))
	require.Len(ConnOptions(), 3)
}
