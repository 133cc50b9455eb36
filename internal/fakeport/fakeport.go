// Package fakeport provides an in-memory serial port for tests.
//
// A Port plays the device side of a link: tests inject the bytes the device
// would send, inspect the bytes the host wrote, script replies with a write
// hook and simulate a device disconnect.
package fakeport

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Read and Write once the port is closed.
var ErrClosed = errors.New("fakeport: port closed")

// Port is an in-memory serial port. The zero value is not usable; call New.
type Port struct {
	mu          sync.Mutex
	rx          []byte
	readErr     error
	readTimeout time.Duration
	rxReady     chan struct{}

	written  []byte
	writes   [][]byte
	writeErr error
	onWrite  func(p []byte)

	// writeChunk caps the bytes accepted per Write call, 0 means no cap.
	writeChunk int
	writeDelay time.Duration

	rts         bool
	inputResets int

	closed    chan struct{}
	closeOnce sync.Once
}

// Option configures a Port.
type Option func(*Port)

// WithWriteChunk makes every Write accept at most n bytes, so callers must
// loop to write a whole frame.
func WithWriteChunk(n int) Option {
	return func(p *Port) { p.writeChunk = n }
}

// WithWriteDelay makes every Write sleep for d before accepting data.
func WithWriteDelay(d time.Duration) Option {
	return func(p *Port) { p.writeDelay = d }
}

// New creates an open Port.
func New(opts ...Option) *Port {
	p := &Port{
		readTimeout: 50 * time.Millisecond,
		rxReady:     make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Inject queues bytes for the host to read, as if the device sent them.
func (p *Port) Inject(data []byte) {
	p.mu.Lock()
	p.rx = append(p.rx, data...)
	p.mu.Unlock()

	p.signal()
}

// Disconnect makes pending and future reads fail with err once the already
// injected bytes are consumed.
func (p *Port) Disconnect(err error) {
	p.mu.Lock()
	p.readErr = err
	p.mu.Unlock()

	p.signal()
}

// OnWrite installs fn to be called with a copy of every written chunk,
// after the bytes are recorded. fn may call Inject to script a reply.
func (p *Port) OnWrite(fn func(data []byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.onWrite = fn
}

// FailWrites makes every following Write return err.
func (p *Port) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.writeErr = err
}

// Written returns a copy of every byte written so far.
func (p *Port) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]byte, len(p.written))
	copy(out, p.written)

	return out
}

// WriteCount returns the number of successful Write calls.
func (p *Port) WriteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.writes)
}

// RTS returns the last value set with SetRTS.
func (p *Port) RTS() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.rts
}

// InputResets returns how many times ResetInputBuffer was called.
func (p *Port) InputResets() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.inputResets
}

// IsClosed reports whether Close has been called.
func (p *Port) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// Read returns injected bytes. It blocks up to the read timeout and returns
// (0, nil) when nothing arrived in time.
func (p *Port) Read(b []byte) (int, error) {
	for {
		if p.IsClosed() {
			return 0, ErrClosed
		}

		p.mu.Lock()
		if len(p.rx) > 0 {
			n := copy(b, p.rx)
			p.rx = p.rx[n:]
			p.mu.Unlock()

			return n, nil
		}
		if p.readErr != nil {
			err := p.readErr
			p.mu.Unlock()

			return 0, err
		}
		timeout := p.readTimeout
		p.mu.Unlock()

		timer := time.NewTimer(timeout)
		select {
		case <-p.closed:
			timer.Stop()
			return 0, ErrClosed
		case <-p.rxReady:
			timer.Stop()
		case <-timer.C:
			return 0, nil
		}
	}
}

// Write records b, or a prefix of it when a write chunk is set.
func (p *Port) Write(b []byte) (int, error) {
	if p.IsClosed() {
		return 0, ErrClosed
	}

	if p.writeDelay > 0 {
		time.Sleep(p.writeDelay)
	}

	p.mu.Lock()
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()

		return 0, err
	}

	n := len(b)
	if p.writeChunk > 0 && n > p.writeChunk {
		n = p.writeChunk
	}

	chunk := make([]byte, n)
	copy(chunk, b[:n])
	p.written = append(p.written, chunk...)
	p.writes = append(p.writes, chunk)
	hook := p.onWrite
	p.mu.Unlock()

	if hook != nil {
		hook(chunk)
	}

	return n, nil
}

// Close closes the port and wakes blocked readers.
func (p *Port) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *Port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readTimeout = t

	return nil
}

func (p *Port) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rx = nil
	p.inputResets++

	return nil
}

func (p *Port) ResetOutputBuffer() error {
	return nil
}

func (p *Port) SetRTS(rts bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rts = rts

	return nil
}

func (p *Port) signal() {
	select {
	case p.rxReady <- struct{}{}:
	default:
	}
}
