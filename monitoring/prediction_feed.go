package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

type EventType string

const (
	EventPrediction    EventType = "prediction"
	EventArtifactStale EventType = "artifact_stale"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Event is one message pushed to feed subscribers.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// PredictionEvent describes one served prediction.
type PredictionEvent struct {
	RequestID  string  `json:"request_id,omitempty"`
	Local      string  `json:"local"`
	Hora       float64 `json:"hora"`
	DiaSemana  float64 `json:"dia_semana"`
	Label      string  `json:"classe_predita"`
	Confidence float64 `json:"confianca"`
	Cached     bool    `json:"cached"`
}

type feedClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// PredictionFeed fans served predictions out to WebSocket subscribers.
// Subscribers only listen; anything they send is discarded. A subscriber
// that falls behind is dropped rather than slowing the publisher.
type PredictionFeed struct {
	clock    clockwork.Clock
	upgrader websocket.Upgrader

	register   chan *feedClient
	unregister chan *feedClient
	broadcast  chan []byte

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	done    chan struct{}
}

func NewPredictionFeed(clock clockwork.Clock) *PredictionFeed {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PredictionFeed{
		clock: clock,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		broadcast:  make(chan []byte, 256),
		clients:    make(map[*feedClient]struct{}),
		done:       make(chan struct{}),
	}
}

// Run owns the subscriber set until ctx is done.
func (f *PredictionFeed) Run(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case c := <-f.register:
			f.mu.Lock()
			f.clients[c] = struct{}{}
			f.mu.Unlock()
			zap.S().Debugw("feed subscriber connected", "client", c.id)

		case c := <-f.unregister:
			f.mu.Lock()
			if _, ok := f.clients[c]; ok {
				delete(f.clients, c)
				close(c.send)
			}
			f.mu.Unlock()

		case message := <-f.broadcast:
			f.mu.Lock()
			for c := range f.clients {
				select {
				case c.send <- message:
				default:
					delete(f.clients, c)
					close(c.send)
				}
			}
			f.mu.Unlock()

		case <-ctx.Done():
			f.mu.Lock()
			for c := range f.clients {
				delete(f.clients, c)
				close(c.send)
			}
			f.mu.Unlock()
			return
		}
	}
}

// ServeHTTP upgrades the request and subscribes the connection.
func (f *PredictionFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade failed", "error", err)
		return
	}
	c := &feedClient{id: xid.New().String(), conn: conn, send: make(chan []byte, sendBuffer)}

	select {
	case f.register <- c:
	case <-f.done:
		conn.Close()
		return
	}
	go f.writePump(c)
	go f.readPump(c)
}

// Publish encodes data as an event of type t and queues it for every
// subscriber. It never blocks; a full queue drops the event.
func (f *PredictionFeed) Publish(t EventType, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", t, err)
	}
	message, err := json.Marshal(Event{
		ID:        xid.New().String(),
		Type:      t,
		Timestamp: f.clock.Now().UTC(),
		Data:      payload,
	})
	if err != nil {
		return err
	}
	select {
	case f.broadcast <- message:
	default:
		zap.S().Warnw("prediction feed queue full, dropping event", "type", t)
	}
	return nil
}

func (f *PredictionFeed) Clients() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

func (f *PredictionFeed) writePump(c *feedClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *PredictionFeed) readPump(c *feedClient) {
	defer func() {
		select {
		case f.unregister <- c:
		case <-f.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.S().Debugw("feed subscriber read error", "client", c.id, "error", err)
			}
			return
		}
	}
}
