package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gridexplore/explorer/internal/logging"
	"github.com/gridexplore/explorer/internal/metrics"
	"github.com/gridexplore/explorer/pkg/retry"
	"go.uber.org/zap"
)

// Notification types sent by the directory server.
const (
	NotificationAddDirectory    = "ADD_DIRECTORY"
	NotificationUpdateDirectory = "UPDATE_DIRECTORY"
	NotificationDeleteDirectory = "DELETE_DIRECTORY"
)

// DirectoryEvent is one directory change notification.
type DirectoryEvent struct {
	DirectoryUUID    string
	IsRootDirectory  bool
	NotificationType string
	Error            string
	UserID           string
	Payload          json.RawMessage
}

type notificationMessage struct {
	Headers map[string]any  `json:"headers"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeNotification parses a raw socket message. Header values may be
// sent as strings or as JSON scalars.
func DecodeNotification(data []byte) (DirectoryEvent, error) {
	var msg notificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return DirectoryEvent{}, fmt.Errorf("decode notification: %w", err)
	}
	if msg.Headers == nil {
		return DirectoryEvent{}, fmt.Errorf("decode notification: missing headers")
	}
	return DirectoryEvent{
		DirectoryUUID:    headerString(msg.Headers, "directoryUuid"),
		IsRootDirectory:  headerBool(msg.Headers, "isRootDirectory"),
		NotificationType: headerString(msg.Headers, "notificationType"),
		Error:            headerString(msg.Headers, "error"),
		UserID:           headerString(msg.Headers, "userId"),
		Payload:          msg.Payload,
	}, nil
}

func headerString(h map[string]any, key string) string {
	switch v := h[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func headerBool(h map[string]any, key string) bool {
	switch v := h[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// NotifierConfig holds notification socket configuration.
type NotifierConfig struct {
	// URL is the ws(s) base of the notification server.
	URL string

	// Token returns the current bearer token; nil means anonymous.
	Token func() string

	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	Reconnect    retry.Config
	BufferSize   int
	Logger       *zap.Logger
}

// Notifier keeps a WebSocket open to the directory notification server.
type Notifier struct {
	cfg    NotifierConfig
	dialer *websocket.Dialer
	log    *zap.Logger
}

// NewNotifier creates a notifier. Nothing is dialed until Subscribe.
func NewNotifier(cfg NotifierConfig) *Notifier {
	if cfg.PongWait == 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait == 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.Reconnect.InitialWait == 0 {
		cfg.Reconnect = retry.ReconnectConfig()
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Named("notifier")
	}
	return &Notifier{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		log: cfg.Logger,
	}
}

// Subscribe connects and returns a channel of directory events. Both
// channels are closed when ctx is done. Connection errors are reported on
// the error channel without blocking and followed by a reconnect.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan DirectoryEvent, <-chan error) {
	events := make(chan DirectoryEvent, n.cfg.BufferSize)
	errs := make(chan error, 1)

	go n.subscribeLoop(ctx, events, errs)

	return events, errs
}

func (n *Notifier) subscribeLoop(ctx context.Context, events chan<- DirectoryEvent, errs chan<- error) {
	defer close(events)
	defer close(errs)

	backoff := retry.NewBackoff(n.cfg.Reconnect)
	for ctx.Err() == nil {
		connected, err := n.connect(ctx, events)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff.Reset()
		}

		delay := backoff.Next()
		n.log.Warn("notification socket closed, reconnecting",
			zap.Error(err), zap.Duration("delay", delay))
		select {
		case errs <- err:
		default:
		}

		if retry.Sleep(ctx, delay) != nil {
			return
		}
	}
}

// endpoint builds the notification URL with the token as query parameter,
// since browsers cannot set headers on a socket and the server accepts both.
func (n *Notifier) endpoint(token string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(n.cfg.URL, "/") + "/notify")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("updateType", "directories")
	if token != "" {
		q.Set("access_token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (n *Notifier) token() string {
	if n.cfg.Token == nil {
		return ""
	}
	return n.cfg.Token()
}

// connect runs one socket session. It reports whether the handshake
// succeeded and always returns a non-nil error describing why it ended.
func (n *Notifier) connect(ctx context.Context, events chan<- DirectoryEvent) (bool, error) {
	token := n.token()
	endpoint, err := n.endpoint(token)
	if err != nil {
		return false, fmt.Errorf("notify url: %w", err)
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := n.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	metrics.SetNotifierConnected(true)
	defer metrics.SetNotifierConnected(false)
	n.log.Info("notification socket connected", zap.String("url", n.cfg.URL))

	conn.SetReadDeadline(time.Now().Add(n.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(n.cfg.PongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(n.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				// unblocks ReadMessage
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(n.cfg.WriteWait)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					n.log.Debug("ping failed", zap.Error(err))
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		if messageType != websocket.TextMessage || len(bytes.TrimSpace(data)) == 0 {
			continue
		}

		event, err := DecodeNotification(data)
		if err != nil {
			n.log.Warn("ignoring malformed notification", zap.Error(err))
			continue
		}
		metrics.RecordNotification(event.NotificationType)

		select {
		case events <- event:
		default:
			n.log.Debug("notification dropped (channel full)",
				zap.String("directory", event.DirectoryUUID))
		}
	}
}
