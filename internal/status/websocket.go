package status

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/amplify-rag/ingestcore/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// connRegistry tracks live WebSocket connections per statusId. It is
// write-mostly and tolerates stale entries: a failed send purges the
// connection rather than retrying (spec §5's "purged on first failed
// send" shared-resource note).
type connRegistry struct {
	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]struct{}
}

func newConnRegistry() *connRegistry {
	return &connRegistry{conns: make(map[string]map[*websocket.Conn]struct{})}
}

func (r *connRegistry) add(statusID string, c *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[statusID] == nil {
		r.conns[statusID] = make(map[*websocket.Conn]struct{})
	}
	r.conns[statusID][c] = struct{}{}
}

func (r *connRegistry) remove(statusID string, c *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns[statusID], c)
	if len(r.conns[statusID]) == 0 {
		delete(r.conns, statusID)
	}
}

func (r *connRegistry) snapshot(statusID string) []*websocket.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := make([]*websocket.Conn, 0, len(r.conns[statusID]))
	for c := range r.conns[statusID] {
		conns = append(conns, c)
	}
	return conns
}

// Hub bridges Redis pub/sub status publishes to a process-local set of
// WebSocket connections grouped by statusId.
type Hub struct {
	tracker  *Tracker
	registry *connRegistry
	logger   *slog.Logger
}

func NewHub(tracker *Tracker, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{tracker: tracker, registry: newConnRegistry(), logger: logger}
}

// ServeWS upgrades an HTTP request to a WebSocket connection subscribed to
// one document's status updates, relaying Redis pub/sub frames verbatim
// until the client disconnects or the connection is purged on a failed send.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, bucket, key string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	id := statusID(bucket, key)
	h.registry.add(id, conn)
	defer func() {
		h.registry.remove(id, conn)
		conn.Close()
	}()

	ctx := r.Context()
	sub := h.tracker.rdb.Subscribe(ctx, Channel(bucket, key))
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				h.logger.Info("websocket send failed, purging connection", "status_id", id, "error", err)
				metrics.StatusWebsocketFanoutTotal.WithLabelValues("purged").Inc()
				return nil
			}
			metrics.StatusWebsocketFanoutTotal.WithLabelValues("sent").Inc()
		}
	}
}

// Fanout pushes a record to every connection locally registered for a
// statusId, bypassing Redis — used by single-process deployments and tests
// where a pub/sub round trip isn't needed.
func (h *Hub) Fanout(statusID string, payload []byte) {
	for _, c := range h.registry.snapshot(statusID) {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Info("websocket fanout send failed, purging connection", "status_id", statusID, "error", err)
			metrics.StatusWebsocketFanoutTotal.WithLabelValues("purged").Inc()
			h.registry.remove(statusID, c)
			c.Close()
			continue
		}
		metrics.StatusWebsocketFanoutTotal.WithLabelValues("sent").Inc()
	}
}
