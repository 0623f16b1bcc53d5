package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/benmeehan/trailsafe/internal/constants"
	"github.com/benmeehan/trailsafe/internal/models"
)

// WebSocketOpener dials the tracker's WebSocket endpoint and forwards text frames verbatim.
type WebSocketOpener struct {
	dialer       *websocket.Dialer
	dialTimeout  time.Duration
	closeTimeout time.Duration
	header       http.Header
	logger       zerolog.Logger
}

// NewWebSocketOpener creates an opener. A zero dialTimeout uses the package default.
func NewWebSocketOpener(dialTimeout time.Duration, logger zerolog.Logger) *WebSocketOpener {
	if dialTimeout <= 0 {
		dialTimeout = constants.DialTimeout
	}
	return &WebSocketOpener{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: dialTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		dialTimeout:  dialTimeout,
		closeTimeout: time.Second,
		logger:       logger.With().Str("transport", "websocket").Logger(),
	}
}

// Open implements Opener.
func (o *WebSocketOpener) Open(ctx context.Context, device models.DeviceDescriptor) (Subscription, error) {
	if device.EndpointURL == "" {
		return nil, unavailable("websocket dial", errors.New("endpoint url is empty"))
	}

	dialCtx, cancel := context.WithTimeout(ctx, o.dialTimeout)
	defer cancel()

	conn, resp, err := o.dialer.DialContext(dialCtx, device.EndpointURL, o.header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (http status %d)", err, resp.StatusCode)
		}
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return nil, unreachable("websocket dial", err)
		}
		return nil, unavailable("websocket dial", err)
	}

	ws := &wsSubscription{conn: conn, closeTimeout: o.closeTimeout}
	ws.stream = newStream(constants.EventBuffer, ws.release)

	o.logger.Info().Str("device_id", device.ID).Str("url", device.EndpointURL).Msg("WebSocket connected")
	go ws.readLoop(o.logger.With().Str("device_id", device.ID).Logger())
	return ws, nil
}

type wsSubscription struct {
	*stream
	conn         *websocket.Conn
	closeTimeout time.Duration
	writeMu      sync.Mutex
}

func (w *wsSubscription) readLoop(logger zerolog.Logger) {
	for {
		msgType, data, err := w.conn.ReadMessage()
		if err != nil {
			if w.closed() {
				return
			}
			logger.Warn().Err(err).Msg("WebSocket read failed")
			w.fail(dropped("websocket read", err))
			return
		}
		if msgType != websocket.TextMessage {
			logger.Debug().Int("type", msgType).Msg("Ignoring non-text frame")
			continue
		}
		if !w.deliver(string(data)) {
			return
		}
	}
}

// release sends a close frame, bounded by closeTimeout, then drops the socket.
func (w *wsSubscription) release() error {
	w.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(w.closeTimeout))
	w.writeMu.Unlock()
	return w.conn.Close()
}
