package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"hirelane/internal/auth"
	"hirelane/internal/broadcast"
	"hirelane/internal/candidate"
	"hirelane/internal/notify"
	"hirelane/internal/realtime"
)

const (
	wsScopeJob   = "job"
	wsScopeUser  = "user"
	wsPingPeriod = 30 * time.Second
	wsAuthWait   = 10 * time.Second
	wsWriteWait  = 5 * time.Second
)

// WsHandler 把候选人变更频道桥接到浏览器。
type WsHandler struct {
	db             *gorm.DB
	source         realtime.Source
	authService    *auth.AuthService
	candidates     *candidate.Service
	notify         *notify.Service
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

// NewWsHandler 构造 WebSocket 处理器。
func NewWsHandler(
	db *gorm.DB,
	source realtime.Source,
	authService *auth.AuthService,
	candidates *candidate.Service,
	notifySvc *notify.Service,
	logger *slog.Logger,
	allowedOrigins []string,
) *WsHandler {
	h := &WsHandler{
		db:             db,
		source:         source,
		authService:    authService,
		candidates:     candidates,
		notify:         notifySvc,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *WsHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) == 0 {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type wsStatusMessage struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type wsRefreshMessage struct {
	Type  string          `json:"type"`
	Scope string          `json:"scope"`
	ID    uint            `json:"id"`
	Stats candidate.Stats `json:"stats"`
}

type wsPreferencesMessage struct {
	Type        string             `json:"type"`
	Preferences notify.Preferences `json:"preferences"`
}

// wsConn 串行化写操作；gorilla 连接不支持并发写。
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteJSON(v)
}

func (w *wsConn) writeText(payload string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(websocket.TextMessage, []byte(payload))
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteWait))
}

func (w *wsConn) close(code int, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}

// HandleConnection 处理 GET /v1/ws?scope=job&id=N 或 scope=user。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	scope := c.DefaultQuery("scope", wsScopeUser)
	var jobID uint
	switch scope {
	case wsScopeUser:
	case wsScopeJob:
		id, ok := parseUintQuery(c.Query("id"))
		if !ok {
			BadRequest(c, "invalid job id")
			return
		}
		jobID = id
	default:
		BadRequest(c, "invalid scope")
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()), slog.String("scope", scope))

	userID, err := h.authenticate(raw)
	if err != nil {
		conn.close(websocket.ClosePolicyViolation, "unauthorized")
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}
	log = log.With(slog.Uint64("user_id", uint64(userID)))

	channel := broadcast.UserChannel(userID)
	refreshID := userID
	filter := candidate.StatsFilter{OwnerID: userID}
	if scope == wsScopeJob {
		job, err := findJob(ctx, h.db, jobID)
		if err != nil || job.UserID != userID {
			conn.close(websocket.ClosePolicyViolation, "forbidden")
			log.Warn("websocket job scope rejected", slog.Uint64("job_id", uint64(jobID)), slog.Any("error", err))
			return
		}
		channel = broadcast.JobChannel(jobID)
		refreshID = jobID
		filter.JobID = jobID
	}

	if h.notify != nil {
		prefs, err := h.notify.Preferences(ctx, userID)
		if err != nil {
			log.Warn("load notification preferences failed", slog.Any("error", err))
			prefs = notify.Defaults
		}
		if err := conn.writeJSON(wsPreferencesMessage{Type: "preferences", Preferences: prefs}); err != nil {
			return
		}
	}

	errCh := make(chan error, 3)
	go h.readLoop(raw, errCh)

	go func() {
		onStatus := func(status realtime.Status, err error) {
			msg := wsStatusMessage{Type: "status", Status: string(status)}
			if err != nil {
				msg.Error = err.Error()
			}
			if werr := conn.writeJSON(msg); werr != nil {
				cancel()
			}
		}
		onChange := func() {
			stats, err := h.candidates.Stats(ctx, filter)
			if err != nil {
				log.Warn("refresh stats failed", slog.Any("error", err))
				return
			}
			if err := conn.writeJSON(wsRefreshMessage{Type: "refresh", Scope: scope, ID: refreshID, Stats: stats}); err != nil {
				cancel()
			}
		}
		errCh <- realtime.NewSubscriber(h.source).Run(ctx, channel, onStatus, onChange)
	}()

	if scope == wsScopeUser {
		go func() {
			errCh <- h.forwardNotifications(ctx, conn, broadcast.NotifyChannel(userID))
		}()
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				log.Info("websocket connection closed", slog.Any("error", err))
			} else {
				log.Info("websocket connection closed")
			}
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				log.Info("websocket ping failed", slog.Any("error", err))
				return
			}
		}
	}
}

// authenticate 等待首帧 {type:"auth", token}。
func (h *WsHandler) authenticate(conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthWait))
	defer conn.SetReadDeadline(time.Time{})

	_, message, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read auth message: %w", err)
	}
	var authMsg wsAuthMessage
	if err := json.Unmarshal(message, &authMsg); err != nil {
		return 0, fmt.Errorf("decode auth payload: %w", err)
	}
	if authMsg.Type != "auth" || authMsg.Token == "" {
		return 0, errors.New("auth message required")
	}
	claims, err := h.authService.ValidateAccessToken(authMsg.Token)
	if err != nil {
		return 0, fmt.Errorf("validate token: %w", err)
	}
	return claims.UserID, nil
}

// readLoop 丢弃客户端消息，仅用于检测断开。
func (h *WsHandler) readLoop(conn *websocket.Conn, errCh chan<- error) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			errCh <- fmt.Errorf("read message: %w", err)
			return
		}
	}
}

// forwardNotifications 原样转发后台任务的通知消息。
func (h *WsHandler) forwardNotifications(ctx context.Context, conn *wsConn, channel string) error {
	sub, err := h.source.Subscribe(ctx, channel)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %q: %w", channel, err)
	}
	defer sub.Close()

	messages := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-messages:
			if !ok {
				return realtime.ErrSubscriptionClosed
			}
			if err := conn.writeText(payload); err != nil {
				return fmt.Errorf("write notification: %w", err)
			}
		}
	}
}

func parseUintQuery(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
