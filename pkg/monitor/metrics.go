package monitor

import (
	"sync/atomic"
	"time"

	"github.com/federicojvarela/node-challenge/pkg/logger"
)

// Metrics holds traffic counters for one peer connection
type Metrics struct {
	BytesSent        atomic.Int64
	BytesReceived    atomic.Int64
	MessagesSent     atomic.Int64
	MessagesReceived atomic.Int64

	// Connection start time
	Start time.Time
}

// NewMetrics starts the clock for a fresh connection.
func NewMetrics() *Metrics {
	return &Metrics{Start: time.Now()}
}

// RecordSent records one written message of n bytes
func (m *Metrics) RecordSent(n int) {
	m.BytesSent.Add(int64(n))
	m.MessagesSent.Add(1)
}

// RecordReceived records n bytes read from the socket
func (m *Metrics) RecordReceived(n int) {
	m.BytesReceived.Add(int64(n))
}

// RecordMessage records one decoded inbound message
func (m *Metrics) RecordMessage() {
	m.MessagesReceived.Add(1)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	BytesSent        int64
	BytesReceived    int64
	MessagesSent     int64
	MessagesReceived int64
	Elapsed          time.Duration
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		BytesSent:        m.BytesSent.Load(),
		BytesReceived:    m.BytesReceived.Load(),
		MessagesSent:     m.MessagesSent.Load(),
		MessagesReceived: m.MessagesReceived.Load(),
		Elapsed:          time.Since(m.Start),
	}
}

// LogSummary writes the counters as a single log line
func (m *Metrics) LogSummary(remote string) {
	s := m.Snapshot()
	logger.Sugar.Infof("[Metrics] remote=%s | Sent=%dB/%dmsg | Received=%dB/%dmsg | Elapsed=%s",
		remote,
		s.BytesSent, s.MessagesSent,
		s.BytesReceived, s.MessagesReceived,
		s.Elapsed.Round(time.Millisecond),
	)
}
