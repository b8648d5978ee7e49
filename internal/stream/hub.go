// Package stream pushes run outcomes to websocket subscribers.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/observability"
)

// Config configures hub connections.
type Config struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long a client may stay silent (pongs included).
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SendBuffer is the per-client queue length. A client whose queue is
	// full is disconnected.
	SendBuffer int
}

// DefaultConfig returns default hub configuration.
func DefaultConfig() Config {
	return Config{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   256,
	}
}

// Event types.
const (
	EventRun         = "run"
	EventBatchStart  = "batch_started"
	EventBatchFinish = "batch_finished"
)

// Event is one message on the stream.
type Event struct {
	Type  string      `json:"type"`
	Time  time.Time   `json:"time"`
	Run   *RunEvent   `json:"run,omitempty"`
	Batch *BatchEvent `json:"batch,omitempty"`
}

// RunEvent is the outcome of one run without its equity curve and trades.
type RunEvent struct {
	RunID            string   `json:"run_id,omitempty"`
	StrategyID       string   `json:"strategy_id"`
	Kind             string   `json:"kind"`
	Symbols          []string `json:"symbols"`
	Status           string   `json:"status"`
	ErrorKind        string   `json:"error_kind,omitempty"`
	Error            string   `json:"error,omitempty"`
	Bars             int      `json:"bars,omitempty"`
	CumulativeReturn float64  `json:"cumulative_return"`
	MaxDrawdown      float64  `json:"max_drawdown"`
	Sharpe           *float64 `json:"sharpe,omitempty"`
	TotalTrades      int      `json:"total_trades"`
	DurationMs       int64    `json:"duration_ms"`
}

// BatchEvent marks the start or end of a batch.
type BatchEvent struct {
	Strategies int   `json:"strategies,omitempty"`
	Symbols    int   `json:"symbols,omitempty"`
	Succeeded  int   `json:"succeeded,omitempty"`
	Failed     int   `json:"failed,omitempty"`
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewRunEvent summarizes a run result.
func NewRunEvent(res *domain.RunResult) *RunEvent {
	ev := &RunEvent{
		RunID:      res.RunID,
		StrategyID: res.StrategyID,
		Kind:       res.Kind,
		Symbols:    res.Symbols,
		Status:     "success",
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Failed() {
		ev.Status = "failed"
		ev.ErrorKind = domain.ErrorKind(res.Err)
		ev.Error = res.ErrorString()
	}
	if r := res.Report; r != nil {
		ev.Bars = r.Bars
		ev.CumulativeReturn = r.CumulativeReturn
		ev.MaxDrawdown = r.MaxDrawdown
		ev.Sharpe = r.Sharpe
		ev.TotalTrades = r.TotalTrades
	}
	return ev
}

// Hub fans events out to connected websocket clients.
// It implements runner.Observer.
type Hub struct {
	config   Config
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	now      func() time.Time

	clients   map[*client]struct{}
	clientsMu sync.RWMutex

	closed atomic.Bool
	wg     sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub creates a hub. A nil config uses DefaultConfig.
func NewHub(config *Config, logger zerolog.Logger) *Hub {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	return &Hub{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and subscribes the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, "stream closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.config.SendBuffer)}
	h.clientsMu.Lock()
	if h.closed.Load() {
		// Close ran during the upgrade
		h.clientsMu.Unlock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.wg.Add(2)
	h.clientsMu.Unlock()
	observability.SetStreamClients(n)
	h.logger.Debug().Str("remote", r.RemoteAddr).Int("clients", n).Msg("stream client connected")

	go h.writeLoop(c)
	go h.readLoop(c)
}

// OnResult publishes a run outcome.
func (h *Hub) OnResult(res *domain.RunResult) {
	if res == nil {
		return
	}
	h.Publish(Event{Type: EventRun, Run: NewRunEvent(res)})
}

// BatchStarted publishes the start of a batch.
func (h *Hub) BatchStarted(strategies, symbols int) {
	h.Publish(Event{Type: EventBatchStart, Batch: &BatchEvent{Strategies: strategies, Symbols: symbols}})
}

// BatchFinished publishes the end of a batch.
func (h *Hub) BatchFinished(succeeded, failed int, d time.Duration) {
	h.Publish(Event{Type: EventBatchFinish, Batch: &BatchEvent{
		Succeeded:  succeeded,
		Failed:     failed,
		DurationMs: d.Milliseconds(),
	}})
}

// Publish sends ev to every client without blocking. Clients whose queue is
// full are disconnected.
func (h *Hub) Publish(ev Event) {
	if h.closed.Load() {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = h.now()
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("type", ev.Type).Msg("marshal stream event")
		return
	}

	var slow []*client
	h.clientsMu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.clientsMu.RUnlock()

	for _, c := range slow {
		h.logger.Warn().Msg("stream client too slow, disconnecting")
		h.remove(c)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients and waits for their goroutines.
func (h *Hub) Close() error {
	// Flip under the write lock so no client registers after the snapshot
	h.clientsMu.Lock()
	if h.closed.Swap(true) {
		h.clientsMu.Unlock()
		return nil // Already closed
	}
	all := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.clientsMu.Unlock()
	for _, c := range all {
		h.remove(c)
	}

	h.wg.Wait()
	return nil
}

// remove unregisters c and closes its queue; writeLoop then closes the connection.
func (h *Hub) remove(c *client) {
	c.once.Do(func() {
		h.clientsMu.Lock()
		delete(h.clients, c)
		n := len(h.clients)
		h.clientsMu.Unlock()
		close(c.send)
		observability.SetStreamClients(n)
	})
}

// writeLoop drains the client queue and sends pings.
func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readLoop discards client messages and detects disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.remove(c)

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
