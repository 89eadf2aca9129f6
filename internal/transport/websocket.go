package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mcpcoordinator/internal/router"
	"mcpcoordinator/pkg/logging"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketAdapter serves the Router on its own listener (MCP_WS_PORT):
// each inbound text frame is one JSON-RPC request, each outbound frame
// (when non-nil) its response.
type WebSocketAdapter struct {
	router *router.Router
	server *http.Server
}

// NewWebSocketAdapter creates a WebSocket adapter listening on addr.
func NewWebSocketAdapter(r *router.Router, addr string) *WebSocketAdapter {
	a := &WebSocketAdapter{router: r}
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp/ws", a.handleUpgrade)
	a.server = &http.Server{Addr: addr, Handler: mux}
	return a
}

// ListenAndServe blocks serving WebSocket connections until ctx is
// cancelled.
func (a *WebSocketAdapter) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (a *WebSocketAdapter) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("transport", err, "websocket upgrade failed")
		return
	}

	sessionToken := r.Header.Get(sessionHeaderPrimary)
	if sessionToken == "" {
		sessionToken = r.Header.Get(sessionHeaderLegacy)
	}
	clientID := uuid.NewString()
	go a.serveConn(r.Context(), conn, sessionToken, clientID)
}

// serveConn reads JSON-RPC frames from conn until it closes or ctx is
// cancelled, dispatching each through the Router.
func (a *WebSocketAdapter) serveConn(ctx context.Context, conn *websocket.Conn, sessionToken, clientID string) {
	defer conn.Close()

	rc := router.RequestContext{
		Security:     router.ContextRemote,
		SessionToken: sessionToken,
		ClientID:     clientID,
	}

	go func() {
		<-ctx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		resp := a.router.Handle(ctx, rc, data)
		if resp == nil {
			continue
		}
		if err := conn.WriteJSON(resp); err != nil {
			logging.Error("transport", err, "websocket write failed")
			return
		}
	}
}
