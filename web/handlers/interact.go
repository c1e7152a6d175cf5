package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/robilabs/robi/internal/config"
	"github.com/robilabs/robi/internal/session"
)

// InteractHandler upgrades /ws/interact requests and hands the connection
// to the session engine. One engine serves every connection; per-session
// state lives inside Run.
type InteractHandler struct {
	cfg    *config.Config
	engine *session.Engine
	logger *zap.Logger
}

// NewInteractHandler creates the WebSocket endpoint handler.
func NewInteractHandler(cfg *config.Config, engine *session.Engine, logger *zap.Logger) *InteractHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InteractHandler{cfg: cfg, engine: engine, logger: logger}
}

func (h *InteractHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The robot firmware is not a browser, so origin checks do not apply.
	// Authentication happens in-protocol via the auth handshake.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(h.cfg.MaxMessageBytes())

	if err := h.engine.Run(r.Context(), wsConn{conn}); err != nil {
		h.logger.Info("session terminated", zap.Error(err))
		_ = conn.Close(websocket.StatusPolicyViolation, "authentication failed")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// wsConn adapts a websocket connection to the frame interface the session
// engine consumes.
type wsConn struct {
	conn *websocket.Conn
}

func (c wsConn) Read(ctx context.Context) (session.FrameType, []byte, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		return session.FrameText, nil, err
	}
	if typ == websocket.MessageBinary {
		return session.FrameBinary, data, nil
	}
	return session.FrameText, data, nil
}

func (c wsConn) WriteJSON(ctx context.Context, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, raw)
}
