package api

import (
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"pulsehub/internal/dto/req"
	"pulsehub/internal/dto/resp"
	"pulsehub/internal/metrics"
	"pulsehub/internal/service"
	v1 "pulsehub/pkg/api/v1"
	"pulsehub/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

type StreamHandler struct {
	hub       *service.Hub
	observer  metrics.HubObserver
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

func NewStreamHandler(hub *service.Hub, observer metrics.HubObserver, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &StreamHandler{
		hub:       hub,
		observer:  observer,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func sseHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}

// Watch streams every change of every topic under ?prefix= as SSE
// "message" events, with "ping" events in between.
func (h *StreamHandler) Watch(c *gin.Context) {
	var r req.WatchRequest
	if err := c.ShouldBindQuery(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid params"})
		return
	}
	sseHeaders(c)

	logger.Info("stream client connected", zap.String("prefix", r.Prefix), zap.String("ip", c.ClientIP()))

	h.observer.IncOnline()
	defer h.observer.DecOnline()

	sub := h.hub.Subscribe(r.Prefix)
	defer sub.Close()
	events := sub.C()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case dp, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("message", dp.V1())
			h.observer.RecordPush()
			return true
		case <-ticker.C:
			c.SSEvent("ping", "pong")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
	logger.Info("stream client disconnected", zap.String("prefix", r.Prefix), zap.String("ip", c.ClientIP()))
}

// WatchWS is Watch over a WebSocket; each datapoint is one JSON text frame.
func (h *StreamHandler) WatchWS(c *gin.Context) {
	prefix := c.Query("prefix")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// inbound frames are ignored; reading only notices the peer leaving
	go func() {
		defer cancel()
		conn.SetReadLimit(maxMessageSize)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("websocket read error", zap.String("prefix", prefix), zap.Error(err))
				}
				return
			}
		}
	}()

	h.observer.IncOnline()
	defer h.observer.DecOnline()

	sub := h.hub.Subscribe(prefix)
	defer sub.Close()
	events := sub.C()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	logger.Info("websocket client connected", zap.String("prefix", prefix), zap.String("ip", c.ClientIP()))
	for {
		select {
		case dp, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(dp.V1()); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
			h.observer.RecordPush()
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Snapshot returns the latest value of every topic under ?prefix= that
// answered in time.
func (h *StreamHandler) Snapshot(c *gin.Context) {
	prefix := c.Query("prefix")
	snap := h.hub.SnapshotPrefix(c.Request.Context(), prefix)

	data := make([]v1.Datapoint, 0, len(snap))
	for _, dp := range snap {
		data = append(data, dp.V1())
	}
	sort.Slice(data, func(i, j int) bool {
		if data[i].Label != data[j].Label {
			return data[i].Label < data[j].Label
		}
		return data[i].ID < data[j].ID
	})
	total := 0
	for _, ref := range h.hub.Keys().Snapshot() {
		if strings.HasPrefix(ref.Label, prefix) {
			total++
		}
	}
	c.JSON(http.StatusOK, resp.SnapshotResponse{Data: data, Total: total})
}

// AdminWatch is Watch for operators; it also announces every topic
// registration as a "topic" event.
func (h *StreamHandler) AdminWatch(c *gin.Context) {
	prefix := c.Query("prefix")
	sseHeaders(c)

	operator := service.GetOperator(c.Request.Context())
	logger.Info("dashboard client connected",
		zap.String("operator", operator),
		zap.String("prefix", prefix),
		zap.String("ip", c.ClientIP()),
	)

	ctx := c.Request.Context()
	topics := make(chan v1.TopicInfo, 16)
	go func() {
		seen := 0
		for {
			refs, err := h.hub.Keys().Wait(ctx, seen)
			if err != nil {
				return
			}
			seen += len(refs)
			for _, ref := range refs {
				md, err := h.hub.Meta(ref)
				if err != nil {
					continue
				}
				info := service.TopicInfo{Key: ref, Meta: md}
				select {
				case topics <- info.V1():
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	sub := h.hub.Subscribe(prefix)
	defer sub.Close()
	events := sub.C()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case info := <-topics:
			c.SSEvent("topic", info)
			return true
		case dp, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("message", dp.V1())
			h.observer.RecordPush()
			return true
		case <-ticker.C:
			c.SSEvent("ping", "pong")
			return true
		case <-ctx.Done():
			return false
		}
	})
}
