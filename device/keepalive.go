package device

import (
	"context"
	"errors"
	"time"

	"github.com/arloliu/go-apt/apt"
	"github.com/arloliu/go-apt/internal/pool"
	"github.com/arloliu/go-apt/internal/task"
)

// keepAlive turns on the controller's status updates and acknowledges them
// periodically. Controllers stop reporting when acknowledgements stop.
type keepAlive struct {
	ctrl    *controller
	idle    time.Duration
	busy    time.Duration
	mgr     *task.Manager
	lastAck time.Time
}

func startKeepAlive(ctrl *controller, idle, busy time.Duration) (*keepAlive, error) {
	if err := ctrl.conn.SendNoReply(ctrl.short(apt.HwStartUpdateMsgs, 0, 0)); err != nil {
		return nil, err
	}

	ka := &keepAlive{
		ctrl:    ctrl,
		idle:    idle,
		busy:    busy,
		mgr:     task.NewManager(context.Background(), ctrl.logger),
		lastAck: time.Now(),
	}

	if err := ka.mgr.Start("keepAlive", ka.iteration); err != nil {
		return nil, err
	}

	return ka, nil
}

func (ka *keepAlive) iteration(ctx context.Context) bool {
	timer := pool.GetTimer(ka.busy)
	defer pool.PutTimer(timer)

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	if ka.ctrl.conn.PendingCount() == 0 && time.Since(ka.lastAck) < ka.idle {
		return true
	}

	err := ka.ctrl.conn.SendNoReply(ka.ctrl.short(apt.MotAckUStatus, 0, 0))
	if errors.Is(err, apt.ErrConnClosed) {
		return false
	}

	if err != nil {
		ka.ctrl.logger.Warn("device: status acknowledgement failed", "error", err)
	}
	ka.lastAck = time.Now()

	return true
}

// stop ends the loop and asks the controller to stop its status updates.
func (ka *keepAlive) stop() error {
	ka.mgr.Stop()
	ka.mgr.Wait()

	err := ka.ctrl.conn.SendNoReply(ka.ctrl.short(apt.HwStopUpdateMsgs, 0, 0))
	if errors.Is(err, apt.ErrConnClosed) {
		return nil
	}

	return err
}
