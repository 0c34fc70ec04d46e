package rpc

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead; pings go out at a fraction of it.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	// maxClientMessage caps inbound frames; clients only ever send
	// control messages on this stream.
	maxClientMessage = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The admin frontend is served from another origin; the
		// bearer token on the upgrade request is the access control.
		return true
	},
}

// ServeWS upgrades the request and attaches it to the hub as an event
// subscriber. The caller has already authenticated the request.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	sub := &subscriber{
		send:  make(chan []byte, 256),
		close: make(chan struct{}),
	}
	h.add(sub)

	go h.writePump(conn, sub)
	go h.readPump(conn, sub)
}

// writePump pushes hub messages to the peer and keeps the connection
// alive with pings.
func (h *Hub) writePump(conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case <-sub.close:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.remove(sub)
				sub.shutdown()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(sub)
				sub.shutdown()
				return
			}
		}
	}
}

// readPump discards client frames and unregisters the subscriber when
// the peer goes away.
func (h *Hub) readPump(conn *websocket.Conn, sub *subscriber) {
	defer func() {
		h.remove(sub)
		sub.shutdown()
		conn.Close()
	}()
	conn.SetReadLimit(maxClientMessage)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("websocket closed")
			}
			return
		}
	}
}
