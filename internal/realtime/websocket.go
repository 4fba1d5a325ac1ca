package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/liliang-cn/claimdesk/internal/domain"
	"go.uber.org/zap"
)

// Socket events
const (
	EventJoinClaim  = "join_claim"
	EventLeaveClaim = "leave_claim"
	EventJoined     = "joined"
	EventLeft       = "left"
	EventError      = "error"
)

const maxInboundBytes = 64 * 1024

// Authorizer decides whether a caller may view a claim
type Authorizer interface {
	Authorize(ctx context.Context, caller domain.Caller, claimID string) error
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func(ctx context.Context, caller domain.Caller, claimID string) error

// Authorize implements Authorizer
func (f AuthorizerFunc) Authorize(ctx context.Context, caller domain.Caller, claimID string) error {
	return f(ctx, caller, claimID)
}

// Options tunes socket behaviour
type Options struct {
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
	CheckOrigin  func(r *http.Request) bool
}

// Server upgrades HTTP requests to websocket connections attached to a hub
type Server struct {
	hub      *Hub
	auth     Authorizer
	opts     Options
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates a websocket server
func NewServer(hub *Hub, auth Authorizer, opts Options, logger *zap.Logger) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 20 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Server{
		hub:  hub,
		auth: auth,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
		logger: logger,
	}
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type claimRef struct {
	ClaimID string `json:"claim_id"`
}

// Serve upgrades the request and blocks until the connection closes
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, caller domain.Caller) error {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		id:     uuid.New().String(),
		caller: caller,
		conn:   conn,
		send:   make(chan Event, s.opts.SendBuffer),
		done:   make(chan struct{}),
	}
	s.logger.Debug("socket connected", zap.String("conn", c.id), zap.String("user_id", caller.UserID))

	go s.writePump(c)
	s.readPump(r.Context(), c)
	return nil
}

func (s *Server) readPump(ctx context.Context, c *client) {
	defer func() {
		s.hub.LeaveAll(c)
		c.close()
		s.logger.Debug("socket disconnected", zap.String("conn", c.id))
	}()

	pongWait := s.opts.PingInterval * 2
	c.conn.SetReadLimit(maxInboundBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("socket read failed", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
		s.handle(ctx, c, msg)
	}
}

func (s *Server) handle(ctx context.Context, c *client, msg inbound) {
	var ref claimRef
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &ref); err != nil {
			c.Send(Event{Name: EventError, Data: payload{"message": "malformed payload"}})
			return
		}
	}

	switch msg.Event {
	case EventJoinClaim:
		if ref.ClaimID == "" {
			c.Send(Event{Name: EventError, Data: payload{"message": "claim_id is required"}})
			return
		}
		actx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := s.auth.Authorize(actx, c.caller, ref.ClaimID)
		cancel()
		if err != nil {
			// same answer for foreign and missing claims
			c.Send(Event{Name: EventError, Data: payload{"message": "claim not found", "claim_id": ref.ClaimID}})
			return
		}
		s.hub.Join(c, ref.ClaimID)
		c.Send(Event{Name: EventJoined, Data: payload{"claim_id": ref.ClaimID}})
	case EventLeaveClaim:
		s.hub.Leave(c, ref.ClaimID)
		c.Send(Event{Name: EventLeft, Data: payload{"claim_id": ref.ClaimID}})
	default:
		c.Send(Event{Name: EventError, Data: payload{"message": "unknown event " + msg.Event}})
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// payload is a small JSON object for socket acknowledgements
type payload map[string]string

type client struct {
	id     string
	caller domain.Caller
	conn   *websocket.Conn
	send   chan Event
	done   chan struct{}
	once   sync.Once
}

func (c *client) ID() string { return c.id }

// Send implements Subscriber. The send channel is never closed, so a
// publish racing with disconnect just drops the event.
func (c *client) Send(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}
