package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	bufferSize       = 4096
)

// NewUpgrader builds the upgrader used for notification sockets.
// Rejections are answered with a plain status code and no body.
func NewUpgrader(policy OriginPolicy) *websocket.Upgrader {
	return &websocket.Upgrader{
		HandshakeTimeout: handshakeTimeout,
		ReadBufferSize:   bufferSize,
		WriteBufferSize:  bufferSize,
		CheckOrigin:      NewCheckOrigin(policy),
		Error: func(w http.ResponseWriter, _ *http.Request, status int, _ error) {
			w.WriteHeader(status)
		},
	}
}

// IsUpgradeRequest reports whether r asks to switch to the websocket protocol.
func IsUpgradeRequest(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}
