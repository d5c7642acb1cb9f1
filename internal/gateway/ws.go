package gateway

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"zerozero/internal/app"
	"zerozero/pkg/events"
	"zerozero/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// origin policy is enforced by the gateway guard in front of us
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWS bridges one websocket client onto the event bus: every bus
// event goes out as a JSON frame, every inbound frame is decoded as a
// command and dispatched.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws_upgrade_failed", "error", err.Error())
		return
	}
	clientID := uuid.NewString()
	logger.Info("ws_connected", "client", clientID)

	// outbound frames are funneled through one writer goroutine; the
	// bus callback and the ping ticker both feed it
	out := make(chan events.Event, 256)
	cancel := s.bus.Subscribe(func(ev events.Event) {
		select {
		case out <- ev:
		default:
			logger.Warn("ws_client_lagging", "client", clientID, "event", ev.Name)
		}
	})
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case ev := <-out:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(ev); err != nil {
					conn.Close()
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			case <-done:
				return
			}
		}
	}()

	conn.SetReadLimit(4 << 20)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		var cmd app.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		s.app.Dispatch(cmd)
	}

	cancel()
	close(done)
	conn.Close()
	logger.Info("ws_disconnected", "client", clientID)
}
