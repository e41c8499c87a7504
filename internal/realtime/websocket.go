package realtime

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

const (
	DefaultPingInterval = 25 * time.Second
	writeWait           = 10 * time.Second
)

// Transport exposes hub sessions over websocket and SSE.
type Transport struct {
	hub          *Hub
	topic        string
	pingInterval time.Duration
	heartbeat    time.Duration
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

func NewTransport(hub *Hub, pingInterval time.Duration, logger *slog.Logger) *Transport {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &Transport{
		hub:          hub,
		topic:        TopicIncidents,
		pingInterval: pingInterval,
		heartbeat:    15 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeWS joins the hub before completing the handshake so a client that
// fetches a snapshot right after connecting cannot miss an event.
// Inbound frames are read and discarded.
func (t *Transport) ServeWS(w http.ResponseWriter, r *http.Request) {
	logger := t.logger.With(slog.String("request_id", chimw.GetReqID(r.Context())))

	session, err := t.hub.Subscribe(t.topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer session.Close()

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	logger.Info("realtime session connected",
		slog.String("transport", "websocket"),
		slog.Uint64("session", session.ID()),
		slog.String("remote", r.RemoteAddr))

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(2 * t.pingInterval))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * t.pingInterval))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(t.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-readDone:
			logger.Info("realtime session disconnected", slog.Uint64("session", session.ID()))
			return
		case ev, ok := <-session.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Warn("websocket write failed", slog.Any("error", err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
