// ABOUTME: Websocket transport carrying named operation frames to the dispatch pipeline
// ABOUTME: Each inbound frame runs on its own goroutine and is answered with one response event

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/2389/gigs-gateway/internal/dispatch"
)

// Event names used on the wire.
const (
	EventHandshake = "handshake"
	EventResponse  = "response"
	EventPing      = "ping"
)

const (
	defaultReadLimit    = 1 << 20
	defaultWriteTimeout = 10 * time.Second
)

// Frame is one websocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handshake is the payload of the first frame sent on every connection.
type Handshake struct {
	UUID string `json:"uuid"`
}

// Dispatcher runs one named request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (dispatch.Response, error)
}

// Options configures a Server.
type Options struct {
	// OriginPatterns are accepted cross-origin hosts. Empty allows same-origin only.
	OriginPatterns []string
	ReadLimit      int64
	WriteTimeout   time.Duration
}

// Server upgrades HTTP requests to websocket sessions.
type Server struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	opts       Options
}

// NewServer creates a websocket server in front of a dispatcher.
func NewServer(d Dispatcher, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Server{
		dispatcher: d,
		logger:     logger.With("component", "transport"),
		opts:       opts,
	}
}

// ServeHTTP accepts the websocket and serves frames until the peer goes away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.opts.OriginPatterns})
	if err != nil {
		s.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(s.opts.ReadLimit)

	sess := &session{
		server: s,
		conn:   conn,
		logger: s.logger.With("remote", r.RemoteAddr),
	}
	sess.serve(r.Context())
}

type session struct {
	server *Server
	conn   *websocket.Conn
	logger *slog.Logger
	wg     sync.WaitGroup
}

func (s *session) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		s.wg.Wait()
		_ = s.conn.CloseNow()
	}()

	id, err := uuid.NewUUID()
	if err != nil {
		s.logger.Error("generating handshake id", "error", err)
		_ = s.conn.Close(websocket.StatusInternalError, "handshake failed")
		return
	}
	if err := s.write(ctx, EventHandshake, Handshake{UUID: id.String()}); err != nil {
		s.logger.Warn("handshake write failed", "error", err)
		return
	}
	s.logger = s.logger.With("session", id.String())
	s.logger.Info("client connected")

	for {
		var frame Frame
		if err := wsjson.Read(ctx, s.conn, &frame); err != nil {
			s.logReadError(err)
			return
		}

		if frame.Event == EventPing {
			s.logger.Debug("ping")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, frame)
		}()
	}
}

func (s *session) handle(ctx context.Context, frame Frame) {
	var body map[string]any
	if len(frame.Data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(frame.Data))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			s.logger.Warn("frame data is not an object", "event", frame.Event, "error", err)
		}
	}
	if body == nil {
		body = map[string]any{}
	}

	resp, err := s.server.dispatcher.Dispatch(ctx, dispatch.NewRequest(frame.Event, body))
	if errors.Is(err, dispatch.ErrUnknownOperation) {
		s.logger.Warn("unknown event, closing connection", "event", frame.Event)
		_ = s.conn.Close(websocket.StatusPolicyViolation, "unknown event")
		return
	}
	if err != nil {
		s.logger.Error("dispatch failed", "event", frame.Event, "error", err)
		return
	}

	if err := s.write(ctx, EventResponse, resp); err != nil {
		s.logger.Warn("response write failed", "event", frame.Event, "error", err)
	}
}

// write sends one event. Concurrent writers are serialized by the connection.
func (s *session) write(ctx context.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.server.opts.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, s.conn, Frame{Event: event, Data: payload})
}

func (s *session) logReadError(err error) {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		s.logger.Info("client disconnected")
	case websocket.StatusPolicyViolation:
		s.logger.Info("connection closed by server")
	default:
		if errors.Is(err, context.Canceled) {
			s.logger.Info("session cancelled")
			return
		}
		s.logger.Warn("read failed, closing session", "error", err)
	}
}
