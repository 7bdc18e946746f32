package bus

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openappstack/installd/internal/logging"
	"github.com/openappstack/installd/internal/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the daemon binds to localhost; origin checks add nothing
	},
}

type methodKey struct {
	path   string
	iface  string
	member string
}

type inbound struct {
	conn *observerConn
	call Call
}

// Hub is the concrete Connection: a WebSocket fan-out for signals plus a
// single-goroutine dispatcher for method calls. Serializing dispatch is what
// gives the registry its one-call-at-a-time execution model, so handlers
// never need their own locking.
type Hub struct {
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu      sync.RWMutex
	methods map[methodKey]Handler
	conns   map[string]*observerConn

	calls   chan inbound
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewHub creates a hub and starts its dispatch loop.
func NewHub(logger *logging.Logger, metrics *monitoring.Metrics) *Hub {
	h := &Hub{
		logger:  logger,
		metrics: metrics,
		methods: make(map[methodKey]Handler),
		conns:   make(map[string]*observerConn),
		calls:   make(chan inbound, 64),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go h.dispatch()
	return h
}

// ExportMethod implements Connection.
func (h *Hub) ExportMethod(path, iface, member string, handler Handler) error {
	key := methodKey{path: path, iface: iface, member: member}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.methods[key]; exists {
		return fmt.Errorf("method %s.%s already exported at %s", iface, member, path)
	}
	h.methods[key] = handler
	return nil
}

// UnregisterObject implements Connection.
func (h *Hub) UnregisterObject(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key := range h.methods {
		if key.path == path {
			delete(h.methods, key)
		}
	}
}

// Emit implements Connection. The signal reaches every observer connected at
// the time of the call; writes happen before Emit returns, so signals and
// method replies sent afterwards on the same connection stay ordered.
func (h *Hub) Emit(path, iface, member string, args ...interface{}) {
	env := Envelope{
		Type:      TypeSignal,
		Path:      path,
		Interface: iface,
		Member:    member,
		Args:      args,
	}

	h.mu.RLock()
	targets := make([]*observerConn, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(env); err != nil {
			h.logger.Debug("dropping signal to observer",
				zap.String("conn", c.id), zap.Error(err))
		}
	}

	if h.metrics != nil {
		h.metrics.SignalsTotal.WithLabelValues(member).Inc()
	}
}

// HandleConnection upgrades an HTTP request to a bus observer connection and
// runs its read loop until the peer disconnects.
func (h *Hub) HandleConnection(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("bus connection upgrade failed", zap.Error(err))
		return
	}

	conn := &observerConn{id: uuid.New().String(), ws: ws}

	h.mu.Lock()
	h.conns[conn.id] = conn
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.BusConnections.Inc()
	}
	h.logger.Debug("bus observer connected", zap.String("conn", conn.id))

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn.id)
		h.mu.Unlock()
		if h.metrics != nil {
			h.metrics.BusConnections.Dec()
		}
		ws.Close()
		h.logger.Debug("bus observer disconnected", zap.String("conn", conn.id))
	}()

	for {
		var env Envelope
		if err := ws.ReadJSON(&env); err != nil {
			return
		}

		switch env.Type {
		case TypeMethodCall:
			serial := env.Serial
			if serial == "" {
				serial = uuid.New().String()
			}
			in := inbound{
				conn: conn,
				call: Call{
					Serial:    serial,
					Path:      env.Path,
					Interface: env.Interface,
					Member:    env.Member,
					Args:      env.Args,
				},
			}
			select {
			case h.calls <- in:
			case <-h.done:
				return
			}
		case TypePing:
			conn.send(Envelope{Type: TypePong})
		default:
			conn.send(Envelope{
				Type:    TypeError,
				Serial:  env.Serial,
				Name:    ErrNameInvalidArgs,
				Message: "unknown frame type: " + env.Type,
			})
		}
	}
}

// Close stops the dispatch loop and disconnects every observer. It does not
// return until the dispatch goroutine has exited, so once Close is back no
// handler is running and callers may tear down the objects handlers touch.
// Must not be called from inside a handler.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.done) })
	<-h.stopped

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.conns {
		c.ws.Close()
		delete(h.conns, id)
	}
}

// dispatch delivers method calls one at a time. All exported handlers,
// including the store observer callbacks they trigger, run on this
// goroutine.
func (h *Hub) dispatch() {
	defer close(h.stopped)
	for {
		select {
		case <-h.done:
			return
		case in := <-h.calls:
			h.dispatchOne(in)
		}
	}
}

func (h *Hub) dispatchOne(in inbound) {
	key := methodKey{path: in.call.Path, iface: in.call.Interface, member: in.call.Member}

	h.mu.RLock()
	handler, ok := h.methods[key]
	var pathKnown bool
	if !ok {
		for k := range h.methods {
			if k.path == in.call.Path {
				pathKnown = true
				break
			}
		}
	}
	h.mu.RUnlock()

	sender := &callSender{conn: in.conn, serial: in.call.Serial, logger: h.logger}

	if !ok {
		name := ErrNameUnknownObject
		if pathKnown {
			name = ErrNameUnknownMethod
		}
		sender.Error(NewError(name, fmt.Sprintf("no method %s.%s at %s",
			in.call.Interface, in.call.Member, in.call.Path)))
		return
	}

	if h.metrics != nil {
		h.metrics.MethodCalls.WithLabelValues(in.call.Interface, in.call.Member).Inc()
	}
	handler(&in.call, sender)
}

// observerConn is one connected bus peer. Writes are serialized per
// connection so signals and replies interleave without corruption.
type observerConn struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *observerConn) send(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(env)
}

// callSender replies to exactly one method call. Runs only on the dispatch
// goroutine, so the sent flag needs no lock.
type callSender struct {
	conn   *observerConn
	serial string
	logger *logging.Logger
	sent   bool
}

func (s *callSender) Reply(args ...interface{}) {
	if s.sent {
		s.logger.Warn("duplicate reply dropped", zap.String("serial", s.serial))
		return
	}
	s.sent = true
	if err := s.conn.send(Envelope{Type: TypeMethodReturn, Serial: s.serial, Args: args}); err != nil {
		s.logger.Debug("reply write failed", zap.String("serial", s.serial), zap.Error(err))
	}
}

func (s *callSender) Error(err *Error) {
	if s.sent {
		s.logger.Warn("duplicate reply dropped", zap.String("serial", s.serial))
		return
	}
	s.sent = true
	if werr := s.conn.send(Envelope{
		Type:    TypeError,
		Serial:  s.serial,
		Name:    err.Name,
		Message: err.Message,
	}); werr != nil {
		s.logger.Debug("error write failed", zap.String("serial", s.serial), zap.Error(werr))
	}
}
