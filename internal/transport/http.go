package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mcpcoordinator/internal/router"
	"mcpcoordinator/pkg/logging"
)

const (
	sessionHeaderPrimary = "Mcp-Session-Id"
	sessionHeaderLegacy  = "X-Session-Id"

	headerProtocolVersion = "Mcp-Protocol-Version"
	headerServer          = "Server"
)

// HTTPAdapter serves the Router over HTTP: a JSON request/response
// endpoint, an SSE push stream, a health check, and two convenience
// routes: one lists the tool catalog, the other calls a tool.
type HTTPAdapter struct {
	router *router.Router
	engine *gin.Engine
	server *http.Server
}

// NewHTTPAdapter builds a gin engine wired to addr, with CORS enabled
// for remote browser clients.
func NewHTTPAdapter(r *router.Router, addr string) *HTTPAdapter {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", sessionHeaderPrimary, sessionHeaderLegacy}
	engine.Use(cors.New(corsConfig))

	a := &HTTPAdapter{
		router: r,
		engine: engine,
		server: &http.Server{Addr: addr},
	}
	a.registerRoutes()
	a.server.Handler = engine
	return a
}

func (a *HTTPAdapter) registerRoutes() {
	a.engine.Use(serverHeaderMiddleware)
	a.engine.GET("/health", a.handleHealth)
	a.engine.POST("/mcp/request", a.handleRequest)
	a.engine.GET("/mcp/stream", a.handleStream)
	a.engine.GET("/mcp/tools", a.handleToolsList)
	a.engine.POST("/mcp/tools/:name", a.handleToolCall)
}

func serverHeaderMiddleware(c *gin.Context) {
	c.Header(headerServer, fmt.Sprintf("%s/%s", router.ServerName, "0.1.0"))
	c.Header(headerProtocolVersion, router.ProtocolVersion)
	c.Next()
}

// ListenAndServe blocks serving HTTP until ctx is cancelled.
func (a *HTTPAdapter) ListenAndServe(ctx context.Context) error {
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

func sessionTokenFrom(c *gin.Context) string {
	if tok := c.GetHeader(sessionHeaderPrimary); tok != "" {
		return tok
	}
	return c.GetHeader(sessionHeaderLegacy)
}

func (a *HTTPAdapter) requestContext(c *gin.Context, clientID string) router.RequestContext {
	return router.RequestContext{
		Security:     router.ContextRemote,
		SessionToken: sessionTokenFrom(c),
		ClientID:     clientID,
	}
}

func (a *HTTPAdapter) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleRequest is POST /mcp/request: the generic JSON-RPC envelope
// endpoint, identical in semantics to the stdio and WebSocket adapters.
func (a *HTTPAdapter) handleRequest(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	rc := a.requestContext(c, c.ClientIP())
	resp := a.router.Handle(c.Request.Context(), rc, body)
	if resp == nil {
		c.Status(http.StatusAccepted)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleStream is GET /mcp/stream: an SSE push channel with an initial
// `connected` event and periodic `heartbeat` events, per spec §6.
func (a *HTTPAdapter) handleStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	sessionID := sessionTokenFrom(c)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	writeEvent(c.Writer, "connected", map[string]interface{}{
		"session_id":       sessionID,
		"protocol_version": router.ProtocolVersion,
		"timestamp":        time.Now().Format(time.RFC3339),
	})
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeEvent(c.Writer, "heartbeat", map[string]interface{}{
				"timestamp":  time.Now().Format(time.RFC3339),
				"session_id": sessionID,
			})
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, event string, data interface{}) {
	b, err := jsonMarshal(data)
	if err != nil {
		logging.Error("transport", err, "marshal SSE event")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
}

// handleToolsList is GET /mcp/tools: a convenience route equivalent to
// a tools/list JSON-RPC call.
func (a *HTTPAdapter) handleToolsList(c *gin.Context) {
	rc := a.requestContext(c, c.ClientIP())
	resp := a.router.Handle(c.Request.Context(), rc, toolsListEnvelope())
	c.JSON(http.StatusOK, resp)
}

// handleToolCall is POST /mcp/tools/:name: a convenience route
// equivalent to a tools/call JSON-RPC call with the name taken from
// the URL and the body used verbatim as arguments.
func (a *HTTPAdapter) handleToolCall(c *gin.Context) {
	name := c.Param("name")
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	rc := a.requestContext(c, c.ClientIP())
	resp := a.router.Handle(c.Request.Context(), rc, toolsCallEnvelope(name, body))
	c.JSON(http.StatusOK, resp)
}
