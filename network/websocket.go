package network

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cinder-labs/cinder/eventlog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// EventFeed streams journal records to websocket clients. Each client
// gets its own journal subscription; a client that cannot keep up loses
// records rather than stalling the ledger.
type EventFeed struct {
	journal  *eventlog.Journal
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[uuid.UUID]*feedConn
	closed bool
}

type feedConn struct {
	ws   *websocket.Conn
	done chan struct{}
}

func NewEventFeed(cfg Config) *EventFeed {
	return &EventFeed{
		journal: cfg.Journal,
		log:     cfg.Log,
		upgrader: websocket.Upgrader{
			// During development, allow all origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[uuid.UUID]*feedConn),
	}
}

// ServeHTTP upgrades the connection and streams records as they commit.
// An optional after=N query parameter replays the retained tail past
// sequence N before the live feed starts.
func (f *EventFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid after parameter", http.StatusBadRequest)
			return
		}
		after = parsed
	}

	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := &feedConn{ws: ws, done: make(chan struct{})}

	id, ch := f.journal.Subscribe()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		f.journal.Unsubscribe(id)
		ws.Close()
		return
	}
	f.conns[id] = conn
	f.mu.Unlock()

	// Replay the backlog before the live feed. Anything the journal
	// fanned out meanwhile sits buffered in ch; writePump skips the
	// overlap by sequence number.
	lastSent := after
	for _, rec := range f.journal.Since(after, maxEventLimit) {
		payload, err := notification(rec)
		if err != nil {
			continue
		}
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			f.drop(id)
			ws.Close()
			return
		}
		lastSent = rec.Seq
	}

	go f.writePump(conn, id, ch, lastSent)
	go f.readPump(conn, id)
}

func (f *EventFeed) writePump(conn *feedConn, id uuid.UUID, ch <-chan eventlog.Record, lastSent uint64) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		f.drop(id)
		conn.ws.Close()
	}()

	for {
		select {
		case <-conn.done:
			return

		case rec, ok := <-ch:
			if !ok {
				conn.ws.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait),
				)
				return
			}
			if rec.Seq <= lastSent {
				continue
			}
			payload, err := notification(rec)
			if err != nil {
				continue
			}
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				f.log.Debug("websocket write failed", "error", err)
				return
			}
			lastSent = rec.Seq

		case <-ticker.C:
			if err := conn.ws.WriteControl(
				websocket.PingMessage,
				[]byte{},
				time.Now().Add(writeWait),
			); err != nil {
				return
			}
		}
	}
}

func (f *EventFeed) readPump(conn *feedConn, id uuid.UUID) {
	defer func() {
		f.drop(id)
		conn.ws.Close()
	}()

	conn.ws.SetReadLimit(maxMessageSize)
	conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// The feed is one-way; inbound frames only keep the connection
	// alive.
	for {
		if _, _, err := conn.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				f.log.Debug("websocket read failed", "error", err)
			}
			return
		}
	}
}

// drop unregisters the connection and cancels its journal subscription.
// Safe to call from both pumps; only the first call acts.
func (f *EventFeed) drop(id uuid.UUID) {
	f.mu.Lock()
	conn, ok := f.conns[id]
	if ok {
		delete(f.conns, id)
	}
	f.mu.Unlock()

	if !ok {
		return
	}
	f.journal.Unsubscribe(id)
	close(conn.done)
}

// ConnCount reports the number of connected clients.
func (f *EventFeed) ConnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// Close disconnects every client and stops accepting new ones.
func (f *EventFeed) Close() {
	f.mu.Lock()
	f.closed = true
	ids := make([]uuid.UUID, 0, len(f.conns))
	for id := range f.conns {
		ids = append(ids, id)
	}
	f.mu.Unlock()

	for _, id := range ids {
		f.drop(id)
	}
}

func notification(rec eventlog.Record) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "subscription",
		"params": map[string]interface{}{
			"subscription": "events",
			"result":       newRecordResponse(rec),
		},
	})
}
