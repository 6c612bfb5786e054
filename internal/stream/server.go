// ABOUTME: WebSocket ingress for live audio streaming
// ABOUTME: Binary frames carry opus packets; text frames carry session control
package stream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// AudioSink is the engine surface the ingress drives.
type AudioSink interface {
	StartStream() bool
	StopStream()
	PushStreamPacket(p []byte) bool
}

// Server accepts one streaming session at a time over WebSocket.
type Server struct {
	sink       AudioSink
	upgrader   websocket.Upgrader
	httpServer *http.Server
	log        *logrus.Entry
}

// NewServer creates the ingress on the given port.
func NewServer(port int, sink AudioSink) *Server {
	s := &Server{
		sink: sink,
		upgrader: websocket.Upgrader{
			// The gateway lives on a trusted LAN segment; origin checks
			// would reject the relay tooling's bare clients.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		log: logrus.WithField("component", "stream"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("stream ingress failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("upgrade failed")
		return
	}
	defer conn.Close()

	s.log.WithField("remote", r.RemoteAddr).Info("stream client connected")
	defer func() {
		// A dropped connection ends the session the same as "stop".
		s.sink.StopStream()
		s.log.WithField("remote", r.RemoteAddr).Info("stream client disconnected")
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Warn("stream read failed")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.sink.PushStreamPacket(data)
		case websocket.TextMessage:
			s.handleControl(conn, strings.TrimSpace(string(data)))
		}
	}
}

func (s *Server) handleControl(conn *websocket.Conn, cmd string) {
	switch cmd {
	case "start":
		if s.sink.StartStream() {
			conn.WriteMessage(websocket.TextMessage, []byte("started"))
		} else {
			conn.WriteMessage(websocket.TextMessage, []byte("error"))
		}
	case "stop":
		s.sink.StopStream()
		conn.WriteMessage(websocket.TextMessage, []byte("stopped"))
	default:
		s.log.WithField("command", cmd).Warn("unknown control command")
	}
}
