package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/oggyb/anon-relay/internal/matchmaker"
	"github.com/oggyb/anon-relay/internal/realtime"
)

const (
	defaultReadTimeout = 60 * time.Second
	maxFrameBytes      = 2 << 20
)

// EventHandler receives inbound transport events. *matchmaker.Dispatcher
// implements it.
type EventHandler interface {
	OnCommand(ctx context.Context, userID int64, command string, args []string) error
	OnText(ctx context.Context, userID int64, displayName, text string) error
	OnMedia(ctx context.Context, userID int64, c matchmaker.Content) error
}

// CredentialVerifier checks the bearer credential of an upgrade request.
// *server.Authenticator implements it.
type CredentialVerifier interface {
	Verify(token string) error
}

// SocketGateway serves the websocket endpoint: one socket per user, frames
// processed in arrival order.
type SocketGateway struct {
	hub             *realtime.Hub
	handler         EventHandler
	auth            CredentialVerifier
	validate        *validator.Validate
	log             *slog.Logger
	inflightTimeout time.Duration
}

func NewSocketGateway(hub *realtime.Hub, handler EventHandler, auth CredentialVerifier, log *slog.Logger) *SocketGateway {
	return &SocketGateway{
		hub:             hub,
		handler:         handler,
		auth:            auth,
		validate:        newValidator(),
		log:             log,
		inflightTimeout: 5 * time.Second,
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type inboundFrame struct {
	Type    string      `json:"type" validate:"required,oneof=command text media"`
	Command string      `json:"command,omitempty" validate:"required_if=Type command,max=64"`
	Args    []string    `json:"args,omitempty" validate:"max=16"`
	Text    string      `json:"text,omitempty" validate:"required_if=Type text,max=4096"`
	Media   *mediaFrame `json:"media,omitempty" validate:"required_if=Type media"`
}

type mediaFrame struct {
	Kind    string `json:"kind" validate:"required,oneof=photo video audio voice document sticker animation location"`
	FileID  string `json:"file_id,omitempty" validate:"required_without=Data,max=256"`
	Caption string `json:"caption,omitempty" validate:"max=1024"`
	Data    []byte `json:"data,omitempty" validate:"max=1048576"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type ackFrame struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
}

// Handle upgrades the request and processes frames until the client disconnects.
// The upgrade needs "Authorization: Bearer <credential>", the same credential
// the gRPC API takes; user_id is trusted only after that.
func (g *SocketGateway) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || g.auth.Verify(token) != nil {
			g.log.Warn("websocket upgrade rejected", "remote", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid bearer credential"})
			return
		}

		userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
		if err != nil || userID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id must be a non-zero integer"})
			return
		}
		displayName := c.Query("name")

		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response
			g.log.Debug("websocket upgrade failed", "user_id", userID, "err", err)
			return
		}

		conn := realtime.NewConnection(userID, ws)
		g.hub.Attach(conn)
		log := g.log.With("user_id", userID, "session_id", conn.ID)
		log.Info("socket connected")
		defer func() {
			g.hub.Detach(conn)
			conn.Close(websocket.CloseNormalClosure, "session closed")
			log.Info("socket disconnected")
		}()

		ws.SetReadLimit(maxFrameBytes)
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		g.write(conn, ackFrame{Type: "connected", UserID: userID})

		// the request context does not outlive a hijacked connection reliably
		ctx := context.WithoutCancel(c.Request.Context())

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn("socket read failed", "err", err)
				}
				return
			}
			_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))

			var frame inboundFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				g.write(conn, errorFrame{Type: "error", Code: "bad_json", Error: err.Error()})
				continue
			}
			if err := g.validate.Struct(frame); err != nil {
				g.write(conn, errorFrame{Type: "error", Code: "invalid_frame", Error: err.Error()})
				continue
			}

			if err := g.dispatch(ctx, userID, displayName, frame); err != nil {
				log.Error("event failed", "type", frame.Type, "err", err)
				g.write(conn, errorFrame{Type: "error", Code: "internal", Error: "request failed, please retry"})
			}
		}
	}
}

func (g *SocketGateway) dispatch(parent context.Context, userID int64, displayName string, f inboundFrame) error {
	ctx, cancel := context.WithTimeout(parent, g.inflightTimeout)
	defer cancel()

	switch f.Type {
	case "command":
		return g.handler.OnCommand(ctx, userID, f.Command, f.Args)
	case "text":
		return g.handler.OnText(ctx, userID, displayName, f.Text)
	default:
		return g.handler.OnMedia(ctx, userID, matchmaker.Content{
			Kind:    f.Media.Kind,
			FileID:  f.Media.FileID,
			Caption: f.Media.Caption,
			Data:    f.Media.Data,
		})
	}
}

func (g *SocketGateway) write(conn *realtime.Connection, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := conn.Send(payload); err != nil {
		g.log.Debug("frame dropped", "user_id", conn.UserID(), "err", err)
	}
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
