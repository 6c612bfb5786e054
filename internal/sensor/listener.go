// ABOUTME: UDP ingress for sensor relay telemetry
// ABOUTME: Decodes datagrams and feeds the bounded record queue
package sensor

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
)

// Listener receives telemetry datagrams from relay nodes. Each datagram
// carries exactly one record; anything else is logged and dropped.
type Listener struct {
	conn    *net.UDPConn
	records chan Record
	log     *logrus.Entry
}

// NewListener binds a UDP socket on the given port. The queue is bounded
// so a flood of relays degrades to dropped records, not unbounded memory.
func NewListener(port, queueDepth int) (*Listener, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind sensor port %d: %w", port, err)
	}

	return &Listener{
		conn:    conn,
		records: make(chan Record, queueDepth),
		log:     logrus.WithField("component", "sensor"),
	}, nil
}

// Records is the consumer side of the telemetry queue.
func (l *Listener) Records() <-chan Record {
	return l.records
}

// Run reads datagrams until the context is cancelled.
func (l *Listener) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		l.conn.Close()
	}()

	buf := make([]byte, 512)
	for {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.WithError(err).Warn("read failed")
			continue
		}

		rec, err := Unmarshal(buf[:n])
		if err != nil {
			l.log.WithError(err).Warn("dropping malformed datagram")
			continue
		}

		select {
		case l.records <- rec:
		default:
			l.log.WithField("sensor", rec.Name).Warn("record queue full, dropping")
		}
	}
}

// Port returns the bound UDP port.
func (l *Listener) Port() int {
	return l.conn.LocalAddr().(*net.UDPAddr).Port
}
