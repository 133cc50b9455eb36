package device

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/arloliu/go-apt/apt"
)

// Motor drives one channel of a stepper or brushless motor controller such
// as the K10CR1 rotation mount or the KBD101 delay line.
//
// Moves block until the controller reports the end of the motion. Only one
// move per channel may be in flight; a second one fails with
// apt.ErrRequestInFlight. Stop is the exception: it never waits, and the
// pending move returns ErrMoveStopped.
type Motor struct {
	ctrl       *controller
	channel    ChannelID
	autoEnable bool
	keepAlive  *keepAlive
	closeOnce  sync.Once
	closeErr   error
}

// NewMotor creates a motor on conn. Unless disabled with WithKeepAlive, it
// turns on status updates and starts acknowledging them.
func NewMotor(conn Conn, opts ...Option) (*Motor, error) {
	if conn == nil {
		return nil, errors.New("device: connection is nil")
	}

	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	m := &Motor{
		ctrl:       newController(conn, o, "motor"),
		channel:    o.channel,
		autoEnable: o.autoEnable,
	}

	if o.keepAlive {
		m.keepAlive, err = startKeepAlive(m.ctrl, o.slowInterval, o.fastInterval)
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Channel returns the channel the motor drives.
func (m *Motor) Channel() ChannelID { return m.channel }

// Close stops the keep-alive loop. It does not close the connection.
func (m *Motor) Close() error {
	m.closeOnce.Do(func() {
		if m.keepAlive != nil {
			m.closeErr = m.keepAlive.stop()
		}
	})

	return m.closeErr
}

// Identify flashes the controller's front panel LED.
func (m *Motor) Identify() error {
	return m.ctrl.identify(m.channel)
}

// SetChannelEnabled energizes or releases the motor.
func (m *Motor) SetChannelEnabled(enabled bool) error {
	return m.ctrl.setChannelEnabled(m.channel, enabled)
}

// Info queries the controller's hardware information.
func (m *Motor) Info(ctx context.Context) (*HwInfo, error) {
	return m.ctrl.info(ctx)
}

// Status queries the current position and status bits.
func (m *Motor) Status(ctx context.Context) (*UStatus, error) {
	return m.ctrl.status(ctx, m.channel)
}

// OnStatus calls handler for every unsolicited status frame of this motor
// until the returned subscription is cancelled.
func (m *Motor) OnStatus(handler func(*UStatus)) (*apt.Subscription, error) {
	ch := m.channel
	return m.ctrl.onStatus("motorStatus", func(st *UStatus) {
		if st.Channel == ch {
			handler(st)
		}
	})
}

// Home moves to the home position.
func (m *Motor) Home(ctx context.Context) (*UStatus, error) {
	return m.move(ctx, m.ctrl.short(apt.MotMoveHome, byte(m.channel), 0))
}

// MoveAbsolute moves to position.
func (m *Motor) MoveAbsolute(ctx context.Context, position int32) (*UStatus, error) {
	return m.move(ctx, m.ctrl.long(apt.MotMoveAbsolute, channelValue(m.channel, position)))
}

// MoveRelative moves by distance from the current position.
func (m *Motor) MoveRelative(ctx context.Context, distance int32) (*UStatus, error) {
	return m.move(ctx, m.ctrl.long(apt.MotMoveRelative, channelValue(m.channel, distance)))
}

// Jog performs one jog step in dir using the jog parameters.
func (m *Motor) Jog(ctx context.Context, dir JogDirection) (*UStatus, error) {
	return m.move(ctx, m.ctrl.short(apt.MotMoveJog, byte(m.channel), byte(dir)))
}

// Stop asks the controller to stop the current motion.
func (m *Motor) Stop(mode StopMode) error {
	return m.ctrl.conn.SendNoReply(m.ctrl.short(apt.MotMoveStop, byte(m.channel), byte(mode)))
}

func (m *Motor) move(ctx context.Context, msg *apt.Message) (*UStatus, error) {
	return m.ctrl.motion(ctx, m.channel, m.autoEnable, msg)
}

// VelParams queries the velocity profile.
func (m *Motor) VelParams(ctx context.Context) (VelParams, error) {
	reply, err := m.ctrl.query(ctx, m.ctrl.short(apt.MotReqVelParams, byte(m.channel), 0), apt.MotGetVelParams, uint16(m.channel))
	if err != nil {
		return VelParams{}, err
	}

	return decodeVelParams(reply.Payload)
}

// SetVelParams writes the velocity profile.
func (m *Motor) SetVelParams(p VelParams) error {
	return m.ctrl.conn.SendNoReply(m.ctrl.long(apt.MotSetVelParams, p.encode(m.channel)))
}

// UpdateVelParams reads the velocity profile, applies fn and writes the
// result back.
func (m *Motor) UpdateVelParams(ctx context.Context, fn func(*VelParams)) (VelParams, error) {
	p, err := m.VelParams(ctx)
	if err != nil {
		return VelParams{}, err
	}
	fn(&p)

	return p, m.SetVelParams(p)
}

// JogParams queries the jog parameters.
func (m *Motor) JogParams(ctx context.Context) (JogParams, error) {
	reply, err := m.ctrl.query(ctx, m.ctrl.short(apt.MotReqJogParams, byte(m.channel), 0), apt.MotGetJogParams, uint16(m.channel))
	if err != nil {
		return JogParams{}, err
	}

	return decodeJogParams(reply.Payload)
}

// SetJogParams writes the jog parameters.
func (m *Motor) SetJogParams(p JogParams) error {
	return m.ctrl.conn.SendNoReply(m.ctrl.long(apt.MotSetJogParams, p.encode(m.channel)))
}

// UpdateJogParams reads the jog parameters, applies fn and writes the
// result back.
func (m *Motor) UpdateJogParams(ctx context.Context, fn func(*JogParams)) (JogParams, error) {
	p, err := m.JogParams(ctx)
	if err != nil {
		return JogParams{}, err
	}
	fn(&p)

	return p, m.SetJogParams(p)
}

// HomeParams queries the homing parameters.
func (m *Motor) HomeParams(ctx context.Context) (HomeParams, error) {
	reply, err := m.ctrl.query(ctx, m.ctrl.short(apt.MotReqHomeParams, byte(m.channel), 0), apt.MotGetHomeParams, uint16(m.channel))
	if err != nil {
		return HomeParams{}, err
	}

	return decodeHomeParams(reply.Payload)
}

// SetHomeParams writes the homing parameters.
func (m *Motor) SetHomeParams(p HomeParams) error {
	return m.ctrl.conn.SendNoReply(m.ctrl.long(apt.MotSetHomeParams, p.encode(m.channel)))
}

// UpdateHomeParams reads the homing parameters, applies fn and writes the
// result back.
func (m *Motor) UpdateHomeParams(ctx context.Context, fn func(*HomeParams)) (HomeParams, error) {
	p, err := m.HomeParams(ctx)
	if err != nil {
		return HomeParams{}, err
	}
	fn(&p)

	return p, m.SetHomeParams(p)
}

// channelValue is the 6-byte payload of MOVE_ABSOLUTE and MOVE_RELATIVE.
func channelValue(ch ChannelID, v int32) []byte {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(ch))
	binary.LittleEndian.PutUint32(buf[2:6], uint32(v))

	return buf
}
