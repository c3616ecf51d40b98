package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"paddle-arena/internal/hub"
	"paddle-arena/internal/identity"
	"paddle-arena/internal/protocol"
	"paddle-arena/internal/session"
	"paddle-arena/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// MaxWSConnectionsTotal is the default cap on open WebSocket connections
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the default cap on connections per IP
	MaxWSConnectionsPerIP = 10

	// MaxWSMessagesPerSecond is the default inbound frame rate per channel
	MaxWSMessagesPerSecond = 120

	sendQueueSize  = 64
	maxMessageSize = 4096
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
)

var (
	errChannelClosed = errors.New("channel closed")
	errSendQueueFull = errors.New("send queue full")
)

// WSConfig bounds the websocket gateway
type WSConfig struct {
	MaxConnections    int
	MaxPerIP          int
	MessagesPerSecond float64
	Origins           *OriginPolicy
}

// DefaultWSConfig returns production-safe defaults
func DefaultWSConfig() WSConfig {
	return WSConfig{
		MaxConnections:    MaxWSConnectionsTotal,
		MaxPerIP:          MaxWSConnectionsPerIP,
		MessagesPerSecond: MaxWSMessagesPerSecond,
	}
}

// wsChannel is one participant's connection to one session. Sends are
// queued for the writer goroutine and never block the caller.
type wsChannel struct {
	id   string
	conn *websocket.Conn
	ip   string
	who  identity.Identity

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSChannel(conn *websocket.Conn, ip string, who identity.Identity) *wsChannel {
	return &wsChannel{
		id:   uuid.NewString(),
		conn: conn,
		ip:   ip,
		who:  who,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (c *wsChannel) ID() string { return c.id }

// Send queues msg. A closed channel or a full queue is a send failure; a
// full queue also closes the channel so the client is disconnected.
func (c *wsChannel) Send(msg []byte) error {
	select {
	case <-c.done:
		return errChannelClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return errChannelClosed
	default:
		c.Close()
		return errSendQueueFull
	}
}

// Close stops the writer, which closes the connection
func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// writeLoop owns all writes to the connection
func (c *wsChannel) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
			IncrementWSMessages("out")
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// WebSocketGateway upgrades session connections and feeds their frames to
// the registry
type WebSocketGateway struct {
	registry  *session.Registry
	identity  identity.Provider
	cfg       WSConfig
	upgrader  websocket.Upgrader
	wsLimiter *WebSocketRateLimiter
	active    atomic.Int64
}

// NewWebSocketGateway creates a gateway with connection limiting
func NewWebSocketGateway(registry *session.Registry, provider identity.Provider, cfg WSConfig) *WebSocketGateway {
	def := DefaultWSConfig()
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = def.MaxPerIP
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = def.MessagesPerSecond
	}
	if cfg.Origins == nil {
		cfg.Origins = NewOriginPolicy(nil)
	}

	g := &WebSocketGateway{
		registry:  registry,
		identity:  provider,
		cfg:       cfg,
		wsLimiter: NewWebSocketRateLimiter(cfg.MaxPerIP),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if cfg.Origins.Allowed(origin) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return g
}

// ConnectionCount returns the number of open websocket connections
func (g *WebSocketGateway) ConnectionCount() int {
	return int(g.active.Load())
}

// HandleSession serves GET /ws/sessions/{id}
func (g *WebSocketGateway) HandleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	ip := GetClientIP(r)

	who, err := g.identity.Identify(r)
	if err != nil {
		writeError(w, "A valid identity token is required", http.StatusUnauthorized)
		return
	}

	// Membership is checked before upgrading so failures get HTTP codes
	s, ok := g.registry.Get(sessionID)
	if !ok {
		writeError(w, "Session not found", http.StatusNotFound)
		return
	}
	if _, ok := s.Participant(who.ID); !ok {
		writeError(w, "Not a participant of this session", http.StatusForbidden)
		return
	}

	if n := g.active.Add(1); n > int64(g.cfg.MaxConnections) {
		g.active.Add(-1)
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", n-1)
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	if !g.wsLimiter.Allow(ip) {
		g.active.Add(-1)
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}
	release := func() {
		g.wsLimiter.Release(ip)
		UpdateWSConnections(int(g.active.Add(-1)))
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		release()
		return
	}
	UpdateWSConnections(g.ConnectionCount())

	ch := newWSChannel(conn, ip, who)
	go ch.writeLoop()

	if err := g.registry.Attach(sessionID, who, ch); err != nil {
		// The session closed or the participant left during the upgrade
		_ = hub.SendTo(ch, protocol.NewError(err.Error(), nil))
		ch.Close()
		release()
		return
	}
	log.Printf("📱 %s connected to session %s from %s (%d total)", who.ID, sessionID, ip, g.ConnectionCount())

	if snap, ok := g.registry.Get(sessionID); ok {
		_ = hub.SendTo(ch, protocol.NewStateUpdate(snap))
	}

	g.readLoop(r.Context(), sessionID, ch)

	g.registry.Detach(sessionID, ch)
	ch.Close()
	release()
	log.Printf("📱 %s disconnected from session %s (%d remaining)", who.ID, sessionID, g.ConnectionCount())
}

// readLoop decodes inbound frames until the connection fails. Unparsable
// frames get an error reply and unknown types are dropped; the channel
// stays open either way.
func (g *WebSocketGateway) readLoop(ctx context.Context, sessionID string, ch *wsChannel) {
	conn := ch.conn
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(g.cfg.MessagesPerSecond), int(g.cfg.MessagesPerSecond)+1)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("⚠️ WebSocket read error on session %s: %v", sessionID, err)
			}
			return
		}
		IncrementWSMessages("in")

		if !limiter.Allow() {
			RecordConnectionRejected("ws_message_rate")
			_ = hub.SendTo(ch, protocol.NewError("rate limit exceeded", data))
			continue
		}

		msg, err := protocol.Decode(data)
		if errors.Is(err, protocol.ErrUnknownType) {
			telemetry.RecordInbound("unknown")
			log.Printf("⚠️ Ignoring %v from %s on session %s", err, ch.who.ID, sessionID)
			continue
		}
		if err != nil {
			telemetry.RecordInbound("malformed")
			_ = hub.SendTo(ch, protocol.NewError(err.Error(), data))
			continue
		}

		if err := g.registry.Handle(ctx, sessionID, ch.who, ch, msg); err != nil {
			_ = hub.SendTo(ch, protocol.NewError(errorMessage(err), nil))
		}
	}
}
