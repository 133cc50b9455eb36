// Package apt implements the Thorlabs APT binary command protocol and the
// connection manager that drives one serial link.
//
// # Wire Format
//
// Every frame starts with a 6-byte header. Short frames carry two inline
// parameter bytes; long frames carry a length-prefixed payload and flag
// themselves by setting the high bit of the destination byte:
//
//	short: id(2, LE) | param1 | param2 | dst        | src
//	long:  id(2, LE) | length(2, LE)   | dst | 0x80 | src | payload
//
// The protocol has no transaction id. A reply is matched to its request by a
// Key built from the reply message id, the replying module address and, for
// channeled messages, the channel identifier. The derivation is pluggable per
// message id with WithKeyFunc.
//
// # Connection
//
// Open acquires the serial port exclusively and starts a single reader loop.
// The loop feeds received bytes to an incremental Decoder and routes every
// decoded frame either to the request waiting for its key or, when none is,
// to subscribers as a StatusEvent.
//
// Callers use three primitives:
//
//   - SendExpectReply blocks until the reply arrives, the timeout fires or
//     the connection closes.
//   - SendNoReply returns as soon as the frame is written.
//   - Subscribe receives status events on a bounded channel; events that do
//     not fit are dropped for that subscriber and counted in metrics.
//
// Close, or a fatal read error, cancels every pending request with
// ErrConnClosed, delivers one terminal event to each subscriber and
// releases the port.
package apt
