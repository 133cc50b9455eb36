package apt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-apt/internal/pool"
	"github.com/arloliu/go-apt/internal/task"
	"github.com/arloliu/go-apt/logger"
)

// readBufferSize is the size of the reader loop's read buffer. One read may
// carry several frames or a fraction of one.
const readBufferSize = 1024

// Connection owns one serial link to an APT controller.
//
// It runs exactly one reader loop for its lifetime, serializes writers
// under a lock, correlates replies to waiting callers through a pending
// request registry and fans every other frame out to subscribers.
//
// All methods are safe for concurrent use.
type Connection struct {
	cfg    *ConnectionConfig
	logger logger.Logger
	path   string
	port   Port

	state   atomicConnState
	writeMu sync.Mutex

	pending *pendingRegistry
	hub     *subscriberHub
	keys    *keyDeriver
	decoder *Decoder
	readBuf []byte

	taskMgr    *task.Manager // reader loop
	handlerMgr *task.Manager // status handlers, end with their subscription

	// closing is closed when teardown begins, done when it has finished.
	closing  chan struct{}
	done     chan struct{}
	closeErr error

	metrics ConnectionMetrics
}

// Open acquires the port selected by cfg and starts the reader loop.
//
// ctx bounds the open sequence only; the connection lives until Close is
// called or the port fails. Open fails with ErrPortUnavailable when the
// device cannot be found, the port cannot be opened, or another Connection
// in this process already owns it.
func Open(ctx context.Context, cfg *ConnectionConfig) (*Connection, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	path := cfg.portPath
	if path == "" {
		resolved, err := cfg.resolver(cfg.serialNumber)
		if err != nil {
			if errors.Is(err, ErrPortUnavailable) {
				return nil, err
			}

			return nil, fmt.Errorf("%w: resolve %q: %w", ErrPortUnavailable, cfg.serialNumber, err)
		}
		path = resolved
	}

	if !claimPort(path) {
		return nil, fmt.Errorf("%w: %s is already open", ErrPortUnavailable, path)
	}

	port, err := openPort(ctx, cfg, path)
	if err != nil {
		releasePort(path)
		return nil, err
	}

	c := newConnection(ctx, cfg, path, port)
	c.state.ToOpening()

	if err := c.settle(ctx); err != nil {
		_ = port.Close()
		releasePort(path)

		return nil, fmt.Errorf("%w: prepare %s: %w", ErrPortUnavailable, path, err)
	}

	c.state.ToOpen()

	if err := c.taskMgr.Start("readerLoop", c.readerLoopIteration); err != nil {
		c.shutdown(err, false)
		return nil, fmt.Errorf("%w: start reader loop: %w", ErrPortUnavailable, err)
	}

	c.logger.Info("apt: connection opened", "family", cfg.family.Name, "baud", cfg.family.BaudRate)

	return c, nil
}

func newConnection(ctx context.Context, cfg *ConnectionConfig, path string, port Port) *Connection {
	l := cfg.logger.With("port", path)
	bg := context.WithoutCancel(ctx)

	c := &Connection{
		cfg:        cfg,
		logger:     l,
		path:       path,
		port:       port,
		pending:    newPendingRegistry(),
		keys:       cfg.keyDeriver(),
		decoder:    NewDecoder(WithDecoderTable(cfg.table), WithDecoderMaxPayload(cfg.maxPayloadSize)),
		readBuf:    make([]byte, readBufferSize),
		taskMgr:    task.NewManager(bg, l),
		handlerMgr: task.NewManager(bg, l),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	c.hub = newSubscriberHub(cfg.subscriberQueueSize, l, &c.metrics)

	return c
}

// openPort runs the blocking port open, giving up when ctx is done. A port
// that opens after ctx expired is closed in the background.
func openPort(ctx context.Context, cfg *ConnectionConfig, path string) (Port, error) {
	type result struct {
		p   Port
		err error
	}

	ch := make(chan result, 1)

	go func() {
		p, err := cfg.opener(path, cfg.family.Mode())
		ch <- result{p: p, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			r := <-ch
			if r.err == nil && r.p != nil {
				_ = r.p.Close()
			}
		}()

		return nil, fmt.Errorf("%w: open %s: %w", ErrPortUnavailable, path, ctx.Err())

	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", ErrPortUnavailable, path, r.err)
		}

		return r.p, nil
	}
}

// settle prepares a freshly opened port: wait for the controller, drop any
// stale bytes, assert RTS and arm the read timeout.
func (c *Connection) settle(ctx context.Context) error {
	if c.cfg.settleDelay > 0 {
		timer := pool.GetTimer(c.cfg.settleDelay)
		defer pool.PutTimer(timer)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := c.port.ResetInputBuffer(); err != nil {
		return err
	}
	if err := c.port.ResetOutputBuffer(); err != nil {
		return err
	}

	if c.cfg.family.RTSCTS {
		if err := c.port.SetRTS(true); err != nil {
			return err
		}
	}

	return c.port.SetReadTimeout(c.cfg.readTimeout)
}

// --- accessors ---

// Path returns the OS path of the owned port.
func (c *Connection) Path() string { return c.path }

// State returns the current lifecycle state.
func (c *Connection) State() ConnState { return c.state.Get() }

// IsOpen reports whether the connection accepts new sends.
func (c *Connection) IsOpen() bool { return c.state.IsOpen() }

// Done returns a channel that is closed once the connection is fully
// closed, whether by Close or by a fatal read error.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Config returns the configuration the connection was opened with.
func (c *Connection) Config() *ConnectionConfig { return c.cfg }

// GetLogger returns the logger associated with the connection.
func (c *Connection) GetLogger() logger.Logger { return c.logger }

// GetMetrics returns the metrics associated with the connection.
func (c *Connection) GetMetrics() *ConnectionMetrics { return &c.metrics }

// PendingCount returns the number of requests waiting for a reply.
func (c *Connection) PendingCount() int { return c.pending.len() }

// SubscriberCount returns the number of active subscriptions.
func (c *Connection) SubscriberCount() int { return c.hub.count() }

// --- sending ---

// SendNoReply writes msg and returns once its bytes are on the wire.
func (c *Connection) SendNoReply(msg *Message) error {
	if !c.state.IsOpen() {
		return ErrConnClosed
	}

	frame, err := encode(msg, c.cfg.table)
	if err != nil {
		return err
	}

	return c.writeFrame(frame, msg)
}

// SendExpectReply writes msg and blocks until the reply keyed by key
// arrives, the timeout elapses, ctx is done or the connection closes.
//
// A timeout <= 0 selects the configured reply timeout. Only one request per
// key may be in flight; a second one fails with ErrRequestInFlight.
//
// A device fault frame from the destination also ends the request when it
// can be attributed to it: a HW_RICHRESPONSE naming msg's id, or a
// HW_RESPONSE while msg is the only request outstanding at that address.
// The fault frame is then returned together with a *DeviceError.
func (c *Connection) SendExpectReply(ctx context.Context, msg *Message, key Key, timeout time.Duration) (*Message, error) {
	if !c.state.IsOpen() {
		return nil, ErrConnClosed
	}

	frame, err := encode(msg, c.cfg.table)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = c.cfg.replyTimeout
	}

	req, err := c.pending.add(key, msg, timeout)
	if err != nil {
		return nil, err
	}

	// Close may have drained the registry between the state check and add.
	if !c.state.IsOpen() {
		if c.pending.remove(req) {
			return nil, ErrConnClosed
		}

		return c.takeResult(req)
	}

	c.metrics.incInflightCount()
	defer c.metrics.decInflightCount()

	if err := c.writeFrame(frame, msg); err != nil {
		if c.pending.remove(req) {
			return nil, err
		}

		return c.takeResult(req)
	}

	timer := pool.GetTimer(time.Until(req.deadline))
	defer pool.PutTimer(timer)

	select {
	case res := <-req.result:
		return c.replyOutcome(res)

	case <-timer.C:
		if c.pending.remove(req) {
			c.metrics.incTimeoutCount()
			c.logger.Warn("apt: reply timeout", "id", msg.ID.String(), "key", key.String(), "timeout", timeout)

			return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, key, timeout)
		}

	case <-ctx.Done():
		if c.pending.remove(req) {
			return nil, ctx.Err()
		}

	case <-c.closing:
		if c.pending.remove(req) {
			return nil, ErrConnClosed
		}
	}

	// Lost the race: the resolver owns req and its result is on the way.
	return c.takeResult(req)
}

// Send is the combined form of SendExpectReply and SendNoReply: with a nil
// key it writes msg and returns (nil, nil).
func (c *Connection) Send(ctx context.Context, msg *Message, key *Key, timeout time.Duration) (*Message, error) {
	if key == nil {
		return nil, c.SendNoReply(msg)
	}

	return c.SendExpectReply(ctx, msg, *key, timeout)
}

func (c *Connection) takeResult(req *pendingRequest) (*Message, error) {
	return c.replyOutcome(<-req.result)
}

func (c *Connection) replyOutcome(res replyResult) (*Message, error) {
	if res.err != nil {
		return nil, res.err
	}

	if res.msg.IsFault() {
		return res.msg, &DeviceError{Reply: res.msg}
	}

	return res.msg, nil
}

// writeFrame puts one encoded frame on the wire. The write lock keeps
// frames of concurrent senders contiguous.
func (c *Connection) writeFrame(frame []byte, msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.state.IsOpen() {
		return ErrConnClosed
	}

	for written := 0; written < len(frame); {
		n, err := c.port.Write(frame[written:])
		if err != nil {
			if !c.state.IsOpen() {
				return ErrConnClosed
			}

			return fmt.Errorf("apt: write %s: %w", msg.ID, err)
		}
		written += n
	}

	c.metrics.incFrameSendCount(len(frame))

	if c.logger.Level() <= logger.DebugLevel {
		c.logger.Debug("apt: frame sent", "msg", msg.String(), "raw", msg.HexString())
	}

	return nil
}

// --- observation ---

// Subscribe registers a listener for status events. It fails with
// ErrConnClosed once the connection has started closing.
func (c *Connection) Subscribe() (*Subscription, error) {
	if !c.state.IsOpen() {
		return nil, ErrConnClosed
	}

	return c.hub.add()
}

// AddStatusHandler subscribes and calls handler for every status event,
// in order, on a dedicated goroutine. The handler also receives the
// terminal event. Unsubscribe the returned subscription to stop it early.
func (c *Connection) AddStatusHandler(name string, handler func(*StatusEvent)) (*Subscription, error) {
	sub, err := c.Subscribe()
	if err != nil {
		return nil, err
	}

	if err := task.StartConsumer(c.handlerMgr, "statusHandler:"+name, sub.C(), handler); err != nil {
		sub.Unsubscribe()
		return nil, err
	}

	return sub, nil
}

// --- reader loop ---

func (c *Connection) readerLoopIteration(ctx context.Context) bool {
	n, err := c.port.Read(c.readBuf)
	if n > 0 {
		c.metrics.addBytesRecv(n)
		c.decoder.Feed(c.readBuf[:n])
		c.drainDecoder()
	}

	if err != nil {
		if ctx.Err() != nil || !c.state.IsOpen() {
			return false
		}

		if isPortGone(err) {
			c.logger.Error("apt: device disconnected, closing connection", "error", err)
		} else {
			c.logger.Error("apt: read failed, closing connection", "error", err)
		}

		c.shutdown(fmt.Errorf("read: %w", err), true)

		return false
	}

	return true
}

// drainDecoder dispatches every buffered frame. Each discarded byte counts
// as a frame error; a run of them is logged once.
func (c *Connection) drainDecoder() {
	dropped := 0
	var firstErr error

	for {
		msg, err := c.decoder.Next()
		if err != nil {
			if errors.Is(err, ErrNeedMoreData) {
				c.logResync(dropped, firstErr)
				return
			}

			c.metrics.incFrameErrCount()
			if dropped == 0 {
				firstErr = err
			}
			dropped++

			continue
		}

		c.logResync(dropped, firstErr)
		dropped = 0

		c.dispatch(msg)
	}
}

func (c *Connection) logResync(dropped int, firstErr error) {
	if dropped == 0 {
		return
	}

	c.logger.Warn("apt: frame error, resynchronizing", "error", firstErr, "dropped", dropped, "buffered", c.decoder.Buffered())
}

// dispatch hands msg to the request waiting for it, or publishes it as a
// status event.
func (c *Connection) dispatch(msg *Message) {
	c.metrics.incFrameRecvCount()

	key := c.keys.keyOf(msg)

	if c.logger.Level() <= logger.DebugLevel {
		c.logger.Debug("apt: frame received", "msg", msg.String(), "key", key.String(), "raw", msg.HexString())
	}

	if c.pending.resolve(key, msg) {
		c.metrics.incReplyCount()
		return
	}

	if msg.IsFault() {
		c.logger.Warn("apt: device reported a fault", "msg", msg.String())

		if c.pending.resolveFault(msg) {
			c.metrics.incReplyCount()
			return
		}
	}

	evt := &StatusEvent{Message: msg, Time: time.Now()}
	if msg.IsFault() {
		evt.Err = &DeviceError{Reply: msg}
	}

	c.hub.publish(evt)
}

// --- teardown ---

// Close stops the connection: new sends fail with ErrConnClosed, pending
// requests are cancelled with ErrConnClosed, the reader loop is joined,
// subscribers get the terminal event and the port is released.
//
// Close is idempotent and safe to call from any goroutine, including
// status handlers.
func (c *Connection) Close() error {
	if c.shutdown(nil, false) {
		return c.closeErr
	}

	// Another goroutine is tearing down; wait for it.
	timer := pool.GetTimer(c.cfg.closeTimeout)
	defer pool.PutTimer(timer)

	select {
	case <-c.done:
		return nil
	case <-timer.C:
		c.logger.Error("apt: close connection timeout", "timeout", c.cfg.closeTimeout, "state", c.state.String())
		return errors.New("apt: close connection timeout")
	}
}

// shutdown runs the teardown once and reports whether this call did it.
// cause is the fatal error that triggered it, nil for an explicit Close.
// The reader loop passes fromReader so teardown does not wait for itself.
func (c *Connection) shutdown(cause error, fromReader bool) bool {
	if !c.state.ToClosing() {
		return false
	}

	c.logger.Debug("apt: start to close connection", "cause", cause)

	close(c.closing)
	c.taskMgr.Stop()

	// Closing the port wakes a reader blocked in Read.
	if err := c.port.Close(); err != nil && !isPortGone(err) {
		c.logger.Warn("apt: failed to close port", "error", err)
	}

	cancelErr := ErrConnClosed
	if cause != nil {
		cancelErr = fmt.Errorf("%w: %w", ErrConnClosed, cause)
	}

	if n := c.pending.cancelAll(cancelErr); n > 0 {
		c.logger.Debug("apt: cancelled pending requests", "count", n)
	}

	if !fromReader && !c.taskMgr.WaitTimeout(c.cfg.closeTimeout) {
		c.logger.Error("apt: reader loop did not exit", "timeout", c.cfg.closeTimeout)
		c.closeErr = errors.New("apt: close connection timeout")
	}

	c.hub.terminate(&StatusEvent{Time: time.Now(), Err: cancelErr, Terminal: true})

	releasePort(c.path)
	c.state.ToClosed()
	close(c.done)

	c.logger.Info("apt: connection closed")

	return true
}
