package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dreamiurg/mountaineers-assistant-sub000/bus"
	"github.com/dreamiurg/mountaineers-assistant-sub000/orchestrator"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

// Message types sent by the server in addition to bus messages.
const (
	TypeRefreshUpdate = "refresh-update"
	TypeError         = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// UpdateMessage carries one orchestrator update to a websocket client.
type UpdateMessage struct {
	Type string `json:"type"`
	orchestrator.Update
}

// ErrorMessage is sent when a client message cannot be answered.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// WebSocketHandler relays refresh updates to websocket clients and answers the
// status requests they send.
type WebSocketHandler struct {
	logger *slog.Logger
	source UpdateSource
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(logger *slog.Logger, source UpdateSource) *WebSocketHandler {
	return &WebSocketHandler{
		logger: logger,
		source: source,
	}
}

// ServeHTTP implements http.Handler.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	updates, stop := h.source.Watch()
	defer stop()

	out := make(chan []byte, sendBuffer)
	done := make(chan struct{})
	defer close(done)

	// The client starts from the current status.
	if reply, err := h.source.HandleMessage(bus.StatusRequest{}); err == nil {
		h.enqueue(out, h.encode(reply))
	}

	go h.writePump(conn, updates, out, done)
	h.readPump(conn, out)
}

// readPump answers client messages until the connection fails.
func (h *WebSocketHandler) readPump(conn *websocket.Conn, out chan<- []byte) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket closed", "error", err)
			}
			return
		}

		msg, err := bus.Decode(data)
		if err != nil {
			h.enqueue(out, mustJSON(ErrorMessage{Type: TypeError, Error: err.Error()}))
			continue
		}
		reply, err := h.source.HandleMessage(msg)
		if err != nil {
			h.enqueue(out, mustJSON(ErrorMessage{Type: TypeError, Error: err.Error()}))
			continue
		}
		h.enqueue(out, h.encode(reply))
	}
}

// writePump is the only writer on conn.
func (h *WebSocketHandler) writePump(conn *websocket.Conn, updates <-chan orchestrator.Update, out <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	write := func(kind int, data []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(kind, data) == nil
	}

	for {
		select {
		case <-done:
			write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case u := <-updates:
			if !write(websocket.TextMessage, mustJSON(UpdateMessage{Type: TypeRefreshUpdate, Update: u})) {
				return
			}
		case data := <-out:
			if data != nil && !write(websocket.TextMessage, data) {
				return
			}
		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (h *WebSocketHandler) encode(m bus.Message) []byte {
	data, err := bus.Encode(m)
	if err != nil {
		h.logger.Error("failed to encode websocket reply", "error", err)
		return mustJSON(ErrorMessage{Type: TypeError, Error: err.Error()})
	}
	return data
}

// enqueue drops the message when the client is not keeping up.
func (h *WebSocketHandler) enqueue(out chan<- []byte, data []byte) {
	select {
	case out <- data:
	default:
		h.logger.Debug("dropping websocket reply for slow client")
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"type":"error","error":"encoding failed"}`)
	}
	return data
}
