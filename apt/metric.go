package apt

import "go.uber.org/atomic"

// ConnectionMetrics contains atomic metrics for a connection.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ConnectionMetrics struct {
	// FrameSendCount indicates the number of frames written to the port.
	FrameSendCount atomic.Uint64
	// FrameRecvCount indicates the number of frames decoded from the port.
	FrameRecvCount atomic.Uint64
	// FrameErrCount indicates the number of malformed frames skipped by the decoder.
	FrameErrCount atomic.Uint64

	// BytesSent indicates the number of bytes written to the port.
	BytesSent atomic.Uint64
	// BytesRecv indicates the number of bytes read from the port.
	BytesRecv atomic.Uint64

	// ReplyCount indicates the number of frames that resolved a pending request.
	ReplyCount atomic.Uint64
	// TimeoutCount indicates the number of requests that timed out.
	TimeoutCount atomic.Uint64
	// InflightCount indicates the number of requests waiting for a reply.
	InflightCount atomic.Int64

	// StatusEventCount indicates the number of status events published.
	StatusEventCount atomic.Uint64
	// DroppedEventCount indicates the number of status events dropped on full subscriber queues.
	DroppedEventCount atomic.Uint64
}

func (m *ConnectionMetrics) incFrameSendCount(n int) {
	m.FrameSendCount.Inc()
	m.BytesSent.Add(uint64(n))
}

func (m *ConnectionMetrics) incFrameRecvCount() {
	m.FrameRecvCount.Inc()
}

func (m *ConnectionMetrics) incFrameErrCount() {
	m.FrameErrCount.Inc()
}

func (m *ConnectionMetrics) addBytesRecv(n int) {
	m.BytesRecv.Add(uint64(n))
}

func (m *ConnectionMetrics) incReplyCount() {
	m.ReplyCount.Inc()
}

func (m *ConnectionMetrics) incTimeoutCount() {
	m.TimeoutCount.Inc()
}

func (m *ConnectionMetrics) incInflightCount() {
	m.InflightCount.Inc()
}

func (m *ConnectionMetrics) decInflightCount() {
	m.InflightCount.Dec()
}

func (m *ConnectionMetrics) incStatusEventCount() {
	m.StatusEventCount.Inc()
}

func (m *ConnectionMetrics) incDroppedEventCount() {
	m.DroppedEventCount.Inc()
}
