package api

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// WSHandler upgrades /v1/relay and runs the connection state machine until
// the transport closes.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := s.NewRelayConn(ws)
	c.Run(r.Context())
}
