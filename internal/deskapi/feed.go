package deskapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dormoron/deskweb/internal/desk"
	"github.com/gorilla/websocket"
)

const greeting = "Hello from webserver"

// FeedConfig 配置高度推送连接
type FeedConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	CheckOrigin     func(r *http.Request) bool
}

func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteTimeout:    10 * time.Second,
		PingInterval:    30 * time.Second,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

// Feed 通过 websocket 推送桌子高度，每条消息形如 "Height: 870"。
// 客户端关闭连接或发送任意消息后推送结束。
type Feed struct {
	desk     *desk.Desk
	log      *slog.Logger
	cfg      FeedConfig
	upgrader websocket.Upgrader
}

func NewFeed(d *desk.Desk, cfg FeedConfig, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		desk: d,
		log:  logger,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		f.log.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	heights, unsubscribe := f.desk.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// 客户端发来的任何消息都表示结束推送
		if _, _, err := conn.ReadMessage(); err != nil &&
			websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			f.log.Debug("websocket read failed", slog.Any("error", err))
		}
	}()

	if err = f.write(conn, websocket.TextMessage, []byte(greeting)); err != nil {
		return
	}
	if err = f.write(conn, websocket.TextMessage, heightMessage(f.desk.Height())); err != nil {
		return
	}

	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case h, ok := <-heights:
			if !ok {
				return
			}
			if err = f.write(conn, websocket.TextMessage, heightMessage(h)); err != nil {
				return
			}
		case <-ticker.C:
			if err = f.write(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			_ = f.write(conn, websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Connection closing..."))
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (f *Feed) write(conn *websocket.Conn, messageType int, data []byte) error {
	if f.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
	}
	err := conn.WriteMessage(messageType, data)
	if err != nil {
		f.log.Debug("websocket write failed", slog.Any("error", err))
	}
	return err
}

func heightMessage(h int) []byte {
	return []byte(fmt.Sprintf("Height: %d", h))
}
