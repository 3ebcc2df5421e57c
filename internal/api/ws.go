package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const wsWriteTimeout = 10 * time.Second

// checkWSOrigin gates the upgrade with the config allow list. Browsers do
// not apply CORS to WebSockets, so the upgrade handshake is the enforcement
// point; non-browser clients send no Origin and pass.
func (s *Server) checkWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	var allowOrigins []string
	if cfg := s.store.Load(); cfg != nil {
		allowOrigins = cfg.CORS.AllowOrigins
	}
	if len(allowOrigins) == 0 {
		return true
	}
	return originAllowed(allowOrigins, origin)
}

func (s *Server) wsUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkWSOrigin,
	}
}

// handleTranslateStream runs one streaming translation session over a
// WebSocket. The client sends a single request message; the server answers
// with a sequence of event messages ending in exactly one terminal event,
// then closes. A client disconnect cancels the request context, which stops
// event delivery without retracting anything already sent.
func (s *Server) handleTranslateStream(c *gin.Context) {
	upgrader := s.wsUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debugf("websocket upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	var req translateRequest
	if errRead := conn.ReadJSON(&req); errRead != nil {
		log.Debugf("websocket request read failed: %v", errRead)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Drain the read side so a client close surfaces as a cancel.
	go func() {
		for {
			if _, _, errNext := conn.NextReader(); errNext != nil {
				cancel()
				return
			}
		}
	}()

	events := s.service.TranslateStream(ctx, s.toServiceRequest(req))
	for event := range events {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if errWrite := conn.WriteJSON(event); errWrite != nil {
			log.Debugf("websocket write failed, abandoning stream: %v", errWrite)
			cancel()
			// Drain so the stream goroutine observes the cancel and exits.
			for range events {
			}
			return
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
