// Package gemini implements the streaming channel transport over the Gemini
// Live bidirectional websocket API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/livenotes/pkg/core"
	"github.com/vango-go/livenotes/pkg/core/audio"
	"github.com/vango-go/livenotes/pkg/core/channel"
)

const (
	// DefaultURL is the Live API websocket endpoint.
	DefaultURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultModel is used when Dialer.Model is empty.
	DefaultModel = "gemini-2.0-flash-live-001"

	defaultConnectTimeout = 15 * time.Second
	defaultWriteTimeout   = 5 * time.Second
)

// Dialer connects to the Live API.
type Dialer struct {
	APIKey string
	Model  string
	// URL overrides DefaultURL, mainly for tests.
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	WSDialer         *websocket.Dialer
	Logger           *slog.Logger
}

var _ channel.Dialer = (*Dialer)(nil)

// Dial opens the websocket, sends the setup message and waits for setupComplete.
func (d *Dialer) Dial(ctx context.Context, req channel.OpenRequest) (channel.Transport, error) {
	if strings.TrimSpace(d.APIKey) == "" {
		return nil, core.NewChannelError("gemini api key is not configured", nil)
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	model := strings.TrimSpace(d.Model)
	if model == "" {
		model = DefaultModel
	}
	handshakeTimeout := d.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultConnectTimeout
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	base := d.URL
	if base == "" {
		base = DefaultURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, core.NewChannelError("invalid live url", err)
	}
	q := u.Query()
	q.Set("key", d.APIKey)
	u.RawQuery = q.Encode()

	wsDialer := d.WSDialer
	if wsDialer == nil {
		wsDialer = websocket.DefaultDialer
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, handshakeTimeout)
		defer cancel()
	}

	conn, resp, err := wsDialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, core.NewChannelError(fmt.Sprintf("websocket dial failed (status %d)", resp.StatusCode), err)
		}
		return nil, core.NewChannelError("websocket dial failed", err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(buildSetup(model, req)); err != nil {
		_ = conn.Close()
		return nil, core.NewChannelError("send live setup", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return nil, core.NewChannelError("read setupComplete", err)
		}
		msg, err := decodeServerMessage(payload)
		if err != nil {
			_ = conn.Close()
			return nil, core.NewChannelError("live setup rejected", err)
		}
		if msg.setupComplete {
			break
		}
	}
	_ = conn.SetReadDeadline(time.Time{})

	logger.Info("live channel open", "model", model, "tools", len(req.Tools))
	return &Transport{conn: conn, writeTimeout: writeTimeout, logger: logger}, nil
}

// Transport is an open Live API connection.
type Transport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once

	pending []channel.Event
}

var _ channel.Transport = (*Transport)(nil)

func (t *Transport) writeJSON(v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteJSON(v)
}

func (t *Transport) SendAudio(_ context.Context, frame audio.Frame) error {
	if err := t.writeJSON(buildAudio(frame)); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	return nil
}

// Recv returns the next inbound event. Tool calls are acknowledged before
// they are returned so the model keeps streaming.
func (t *Transport) Recv(ctx context.Context) (channel.Event, error) {
	for len(t.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, channel.ErrClosed
		}
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, channel.ErrClosed
			}
			if errors.Is(err, net.ErrClosed) && ctx.Err() != nil {
				return nil, channel.ErrClosed
			}
			return nil, err
		}
		// Live API frames are JSON whether sent as text or binary.
		msg, err := decodeServerMessage(data)
		if err != nil {
			return nil, err
		}
		if msg.goAway != nil {
			t.logger.Warn("live server going away", "time_left", msg.goAway.TimeLeft)
		}
		if len(msg.toolCalls) > 0 {
			if err := t.writeJSON(buildToolAck(msg.toolCalls)); err != nil {
				t.logger.Warn("tool response failed", "error", err)
			}
		}
		t.pending = append(t.pending, msg.events...)
	}
	ev := t.pending[0]
	t.pending = t.pending[1:]
	return ev, nil
}

// Close sends a normal close frame and closes the connection.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}
