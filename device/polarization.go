package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/arloliu/go-apt/apt"
)

// Paddles lists the three MPC320 paddle channels.
var Paddles = []ChannelID{Channel1, Channel2, Channel3}

// PolarizationController drives the three paddles of an MPC320 motorized
// fiber polarization controller.
//
// Each paddle is its own motion channel, so moves on different paddles may
// run concurrently.
type PolarizationController struct {
	ctrl       *controller
	autoEnable bool
	keepAlive  *keepAlive
	closeOnce  sync.Once
	closeErr   error
}

// NewPolarizationController creates an MPC320 controller on conn.
// WithChannel is ignored; every method takes the paddle to act on.
func NewPolarizationController(conn Conn, opts ...Option) (*PolarizationController, error) {
	if conn == nil {
		return nil, errors.New("device: connection is nil")
	}

	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	pc := &PolarizationController{
		ctrl:       newController(conn, o, "mpc320"),
		autoEnable: o.autoEnable,
	}

	if o.keepAlive {
		pc.keepAlive, err = startKeepAlive(pc.ctrl, o.slowInterval, o.fastInterval)
		if err != nil {
			return nil, err
		}
	}

	return pc, nil
}

// Close stops the keep-alive loop. It does not close the connection.
func (pc *PolarizationController) Close() error {
	pc.closeOnce.Do(func() {
		if pc.keepAlive != nil {
			pc.closeErr = pc.keepAlive.stop()
		}
	})

	return pc.closeErr
}

func checkPaddle(ch ChannelID) error {
	switch ch {
	case Channel1, Channel2, Channel3:
		return nil
	}

	return fmt.Errorf("device: invalid paddle channel 0x%02X", uint16(ch))
}

// Identify flashes the front panel LED.
func (pc *PolarizationController) Identify() error {
	return pc.ctrl.identify(Channel1)
}

// Info queries the hardware information.
func (pc *PolarizationController) Info(ctx context.Context) (*HwInfo, error) {
	return pc.ctrl.info(ctx)
}

// SetChannelEnabled energizes or releases one paddle.
func (pc *PolarizationController) SetChannelEnabled(paddle ChannelID, enabled bool) error {
	if err := checkPaddle(paddle); err != nil {
		return err
	}

	return pc.ctrl.setChannelEnabled(paddle, enabled)
}

// Status queries the position and status bits of one paddle.
func (pc *PolarizationController) Status(ctx context.Context, paddle ChannelID) (*UStatus, error) {
	if err := checkPaddle(paddle); err != nil {
		return nil, err
	}

	return pc.ctrl.status(ctx, paddle)
}

// OnStatus calls handler for every unsolicited status frame of any paddle.
func (pc *PolarizationController) OnStatus(handler func(*UStatus)) (*apt.Subscription, error) {
	return pc.ctrl.onStatus("paddleStatus", handler)
}

// Home moves a paddle to its home position.
func (pc *PolarizationController) Home(ctx context.Context, paddle ChannelID) (*UStatus, error) {
	return pc.move(ctx, paddle, pc.ctrl.short(apt.MotMoveHome, byte(paddle), 0))
}

// MoveAbsolute moves a paddle to position.
func (pc *PolarizationController) MoveAbsolute(ctx context.Context, paddle ChannelID, position int32) (*UStatus, error) {
	return pc.move(ctx, paddle, pc.ctrl.long(apt.MotMoveAbsolute, channelValue(paddle, position)))
}

// Jog moves a paddle by one jog step in dir. The step size comes from the
// paddle's JogStep parameter.
func (pc *PolarizationController) Jog(ctx context.Context, paddle ChannelID, dir JogDirection) (*UStatus, error) {
	return pc.move(ctx, paddle, pc.ctrl.short(apt.MotMoveJog, byte(paddle), byte(dir)))
}

func (pc *PolarizationController) move(ctx context.Context, paddle ChannelID, msg *apt.Message) (*UStatus, error) {
	if err := checkPaddle(paddle); err != nil {
		return nil, err
	}

	return pc.ctrl.motion(ctx, paddle, pc.autoEnable, msg)
}

// Params queries the paddle parameters.
func (pc *PolarizationController) Params(ctx context.Context) (PolParams, error) {
	reply, err := pc.ctrl.query(ctx, pc.ctrl.short(apt.PolReqParams, 0, 0), apt.PolGetParams, 0)
	if err != nil {
		return PolParams{}, err
	}

	return decodePolParams(reply.Payload)
}

// SetParams writes the paddle parameters.
func (pc *PolarizationController) SetParams(p PolParams) error {
	if p.Velocity > 100 {
		return fmt.Errorf("device: paddle velocity %d%% exceeds 100%%", p.Velocity)
	}

	return pc.ctrl.conn.SendNoReply(pc.ctrl.long(apt.PolSetParams, p.encode()))
}

// UpdateParams reads the paddle parameters, applies fn and writes the
// result back.
func (pc *PolarizationController) UpdateParams(ctx context.Context, fn func(*PolParams)) (PolParams, error) {
	p, err := pc.Params(ctx)
	if err != nil {
		return PolParams{}, err
	}
	fn(&p)

	return p, pc.SetParams(p)
}
