package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/livenotes/pkg/core"
	"github.com/vango-go/livenotes/pkg/core/live"
	"github.com/vango-go/livenotes/pkg/gateway/apierror"
	"github.com/vango-go/livenotes/pkg/gateway/lifecycle"
	"github.com/vango-go/livenotes/pkg/gateway/mw"
)

// Orchestrator is the command and observer surface the bridge needs.
type Orchestrator interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	ArchiveActive(ctx context.Context) error
	Snapshot(ctx context.Context) (live.Snapshot, error)
	Subscribe() (<-chan live.Event, func())
}

type LiveConfig struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	CommandTimeout time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

// LiveHandler handles /v1/live websocket connections. Each connection gets a
// snapshot frame, then every observer event, and may send start, stop and
// archive commands.
type LiveHandler struct {
	Orchestrator Orchestrator
	Config       LiveConfig
	Logger       *slog.Logger
	Lifecycle    *lifecycle.Lifecycle
}

type clientCommand struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

type snapshotFrame struct {
	Type string `json:"type"`
	live.Snapshot
}

type ackFrame struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	ID      string `json:"id,omitempty"`
}

type errorFrame struct {
	Type    string      `json:"type"`
	Command string      `json:"command,omitempty"`
	ID      string      `json:"id,omitempty"`
	Error   *core.Error `json:"error"`
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrAPI, Message: "bridge is draining", Code: "draining"}, http.StatusServiceUnavailable)
		return
	}
	if !mw.OriginAllowed(h.Config.AllowedOrigins, r) {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "origin is not allowed", Param: "Origin"}, http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	release := h.Lifecycle.Track()
	defer release()

	logger := h.logger().With("request_id", reqID)
	cfg := h.config()
	conn.SetReadLimit(cfg.MaxMessageSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before taking the snapshot so nothing falls between them.
	events, unsubscribe := h.Orchestrator.Subscribe()
	defer unsubscribe()

	snap, err := h.Orchestrator.Snapshot(ctx)
	if err != nil {
		coreErr, _ := apierror.FromError(err, reqID)
		h.writeWSError(conn, cfg, errorFrame{Type: "error", Error: coreErr}, true)
		return
	}
	first, err := json.Marshal(snapshotFrame{Type: "snapshot", Snapshot: snap})
	if err != nil {
		logger.Error("encode snapshot", "error", err)
		return
	}

	replies := make(chan []byte, 16)
	writerDone := make(chan error, 1)
	go func() {
		writerDone <- h.writeLoop(ctx, conn, cfg, first, replies, events)
		cancel()
		// Give the peer time to answer our close frame, then unblock the reader.
		_ = conn.SetReadDeadline(time.Now().Add(cfg.WriteTimeout))
	}()

	logger.Debug("live connection opened")
	var cmds sync.WaitGroup
	h.readLoop(ctx, conn, cfg, reqID, replies, &cmds, logger)

	cancel()
	if err := <-writerDone; err != nil && !isExpectedClose(err) {
		logger.Debug("live writer stopped", "error", err)
	}
	cmds.Wait()
	logger.Debug("live connection closed")
}

func (h LiveHandler) readLoop(ctx context.Context, conn *websocket.Conn, cfg LiveConfig, reqID string, replies chan<- []byte, cmds *sync.WaitGroup, logger *slog.Logger) {
	readTimeout := 2*cfg.PingInterval + cfg.WriteTimeout
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) && ctx.Err() == nil {
				logger.Debug("live read failed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if messageType != websocket.TextMessage {
			h.reply(ctx, replies, errorFrame{Type: "error", Error: &core.Error{Type: core.ErrInvalidRequest, Message: "only text frames are accepted", RequestID: reqID}})
			continue
		}
		var cmd clientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.reply(ctx, replies, errorFrame{Type: "error", Error: &core.Error{Type: core.ErrInvalidRequest, Message: "invalid command frame", RequestID: reqID}})
			continue
		}
		cmd.Type = strings.TrimSpace(cmd.Type)

		// Commands run concurrently so a stop can reach a session that is
		// still starting.
		cmds.Add(1)
		go func() {
			defer cmds.Done()
			h.runCommand(ctx, cfg, reqID, cmd, replies, logger)
		}()
	}
}

func (h LiveHandler) runCommand(ctx context.Context, cfg LiveConfig, reqID string, cmd clientCommand, replies chan<- []byte, logger *slog.Logger) {
	cctx, cancel := context.WithTimeout(ctx, cfg.CommandTimeout)
	defer cancel()

	var err error
	switch cmd.Type {
	case "start":
		err = h.Orchestrator.Start(cctx)
	case "stop":
		err = h.Orchestrator.Stop(cctx)
	case "archive":
		err = h.Orchestrator.ArchiveActive(cctx)
	default:
		err = core.NewInvalidRequestErrorWithParam("unknown command "+strconv.Quote(cmd.Type), "type")
	}
	if err != nil {
		logger.Debug("live command failed", "command", cmd.Type, "error", err)
		coreErr, _ := apierror.FromError(err, reqID)
		h.reply(ctx, replies, errorFrame{Type: "error", Command: cmd.Type, ID: cmd.ID, Error: coreErr})
		return
	}
	h.reply(ctx, replies, ackFrame{Type: "ack", Command: cmd.Type, ID: cmd.ID})
}

func (h LiveHandler) reply(ctx context.Context, replies chan<- []byte, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger().Error("encode live reply", "error", err)
		return
	}
	select {
	case replies <- data:
	case <-ctx.Done():
	}
}

// writeLoop owns every write to conn. Replies are written before pending
// events.
func (h LiveHandler) writeLoop(ctx context.Context, conn *websocket.Conn, cfg LiveConfig, first []byte, replies <-chan []byte, events <-chan live.Event) error {
	pingTicker := time.NewTicker(cfg.PingInterval)
	defer pingTicker.Stop()

	if err := writeText(conn, cfg.WriteTimeout, first); err != nil {
		return err
	}

	for {
		select {
		case data := <-replies:
			if err := writeText(conn, cfg.WriteTimeout, data); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(cfg.WriteTimeout))
			return nil
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(cfg.WriteTimeout)); err != nil {
				return err
			}
		case data := <-replies:
			if err := writeText(conn, cfg.WriteTimeout, data); err != nil {
				return err
			}
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "orchestrator stopped"), time.Now().Add(cfg.WriteTimeout))
				return nil
			}
			data, err := EncodeEvent(ev)
			if err != nil {
				h.logger().Error("encode live event", "type", ev.EventType(), "error", err)
				continue
			}
			if err := writeText(conn, cfg.WriteTimeout, data); err != nil {
				return err
			}
		}
	}
}

// EncodeEvent renders an observer event as a JSON object whose "type" field
// is the event type.
func EncodeEvent(ev live.Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	typ, err := json.Marshal(ev.EventType())
	if err != nil {
		return nil, err
	}
	fields["type"] = typ
	return json.Marshal(fields)
}

func writeText(conn *websocket.Conn, timeout time.Duration, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h LiveHandler) writeWSError(conn *websocket.Conn, cfg LiveConfig, frame errorFrame, close bool) {
	if data, err := json.Marshal(frame); err == nil {
		_ = writeText(conn, cfg.WriteTimeout, data)
	}
	if close {
		msg := ""
		if frame.Error != nil {
			msg = frame.Error.Message
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, msg), time.Now().Add(cfg.WriteTimeout))
	}
}

func (h LiveHandler) config() LiveConfig {
	cfg := h.Config
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4 << 10
	}
	return cfg
}

func (h LiveHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func isExpectedClose(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, context.Canceled)
}
