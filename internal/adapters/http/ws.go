package httpadapter

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 20,
	WriteBufferSize: 64 << 10,
	// The stream endpoint is consumed by browser dashboards on other origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (rt *Router) videoStream(w http.ResponseWriter, r *http.Request) {
	if rt.deps.NewSession == nil || rt.deps.Sessions == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "streaming is not enabled"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.deps.Logger.Warn("websocket_upgrade_failed", "error", err)
		return
	}
	defer conn.Close()

	session := rt.deps.NewSession()
	rt.deps.Logger.Info("stream_session_started", "stream_id", session.ID(), "remote_addr", r.RemoteAddr)

	if err := rt.deps.Sessions.Run(r.Context(), session, conn); err != nil {
		rt.deps.Logger.Warn("stream_session_error", "stream_id", session.ID(), "error", err)
	}
	rt.deps.Logger.Info("stream_session_closed", "stream_id", session.ID())
}
