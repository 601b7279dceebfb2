package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ruralcare/telemed/internal/platform/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

type HandlerConfig struct {
	// AllowedOrigins restricts browser origins; empty allows any.
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// WebSocketHandler upgrades HTTP connections and pumps messages between the
// socket and the hub.
type WebSocketHandler struct {
	hub      *Hub
	verifier TokenVerifier
	upgrader gorillawebsocket.Upgrader
	logger   zerolog.Logger
}

func NewWebSocketHandler(hub *Hub, verifier TokenVerifier, cfg HandlerConfig) *WebSocketHandler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	return &WebSocketHandler{
		hub:      hub,
		verifier: verifier,
		logger:   cfg.Logger,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

func (wsh *WebSocketHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect authenticates the optional ?token= (or bearer header),
// upgrades, registers the client and starts its pumps. Anonymous clients may
// use rooms and pharmacy topics but not user topics.
func (wsh *WebSocketHandler) HandleConnect(c echo.Context) error {
	var userID string
	if token := bearerToken(c); token != "" {
		id, err := wsh.verifier.Verify(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		userID = id.UserID
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		wsh.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	client := NewClient(uuid.NewString(), userID, sendBuffer)
	wsh.hub.Register(client)
	wsh.hub.SendTo(client, Envelope{Event: EventWelcome, Data: PeerData{ID: client.ID}})

	wsh.logger.Debug().Str("client", client.ID).Str("user_id", userID).Msg("websocket connected")

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)
	return nil
}

func bearerToken(c echo.Context) string {
	if t := c.QueryParam("token"); t != "" {
		return t
	}
	h := c.Request().Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// readPump feeds inbound messages to the hub until the socket fails, then
// unregisters the client, which also notifies its rooms.
func (wsh *WebSocketHandler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if gorillawebsocket.IsUnexpectedCloseError(err, gorillawebsocket.CloseGoingAway, gorillawebsocket.CloseNormalClosure) {
				wsh.logger.Debug().Err(err).Str("client", client.ID).Msg("websocket closed unexpectedly")
			}
			return
		}
		wsh.hub.ProcessMessage(client, message)
	}
}

// writePump drains the client's send queue in order and keeps the
// connection alive with pings.
func (wsh *WebSocketHandler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
