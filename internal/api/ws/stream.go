package ws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/workspace"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Message types
const (
	TypeSnapshot = "snapshot"
	TypeEvent    = "event"
	TypePong     = "pong"
	TypeError    = "error"
)

// Message is one frame sent to the client
type Message struct {
	Type     string              `json:"type"`
	Event    *workspace.Event    `json:"event,omitempty"`
	Snapshot *workspace.Snapshot `json:"snapshot,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// Request is one frame received from the client
type Request struct {
	Type string `json:"type"` // "ping" or "snapshot"
}

// Handler streams workspace events over WebSocket
type Handler struct {
	sessions *workspace.Manager
	upgrader websocket.Upgrader
	metrics  *monitoring.Metrics
	log      *logging.Logger
}

// NewHandler creates the stream handler. allowedOrigins empty or "*" accepts any origin.
func NewHandler(sessions *workspace.Manager, allowedOrigins []string, metrics *monitoring.Metrics, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{
		sessions: sessions,
		metrics:  metrics,
		log:      log.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Register mounts the stream route on r
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/workspaces/:user/stream", h.HandleStream)
}

// HandleStream upgrades the connection, sends a snapshot and then every
// workspace event until either side closes
func (h *Handler) HandleStream(c *gin.Context) {
	user := c.Param("user")
	session, err := h.sessions.Get(c.Request.Context(), user)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, workspace.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.String("user", user), zap.Error(err))
		return
	}

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	events, unsubscribe := session.Subscribe()
	st := &stream{
		conn:    conn,
		session: session,
		replies: make(chan Message, 8),
		done:    make(chan struct{}),
		metrics: h.metrics,
		log:     h.log.ForUser(user),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		st.readPump()
	}()

	st.writePump(events)
	unsubscribe()
	conn.Close()
	wg.Wait()
}

type stream struct {
	conn      *websocket.Conn
	session   *workspace.Session
	replies   chan Message
	done      chan struct{}
	closeOnce sync.Once
	metrics   *monitoring.Metrics
	log       *logging.Logger
}

func (s *stream) stop() {
	s.closeOnce.Do(func() { close(s.done) })
}

// readPump handles client requests until the connection fails
func (s *stream) readPump() {
	defer s.stop()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req Request
		if err := s.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		s.metrics.RecordWSMessage("in", req.Type)

		var reply Message
		switch req.Type {
		case "ping":
			reply = Message{Type: TypePong}
		case "snapshot":
			snap := s.session.Snapshot()
			reply = Message{Type: TypeSnapshot, Snapshot: &snap}
		default:
			reply = Message{Type: TypeError, Error: "unknown request type: " + req.Type}
		}

		select {
		case s.replies <- reply:
		case <-s.done:
			return
		}
	}
}

// writePump owns every write to the connection
func (s *stream) writePump(events <-chan workspace.Event) {
	defer s.stop()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	snap := s.session.Snapshot()
	if !s.write(Message{Type: TypeSnapshot, Snapshot: &snap}) {
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Session closed
				_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "workspace closed"))
				return
			}
			if !s.write(Message{Type: TypeEvent, Event: &ev}) {
				return
			}
		case reply := <-s.replies:
			if !s.write(reply) {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *stream) write(msg Message) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.log.Debug("WebSocket write failed", zap.Error(err))
		return false
	}
	s.metrics.RecordWSMessage("out", msg.Type)
	return true
}
