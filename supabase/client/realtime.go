// Realtime subscription support over the Phoenix websocket protocol.
// Subscriptions are handles: every Subscribe returns an unsubscribe that
// callers pair with the subscriber's lifetime.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ChangeEvent is a postgres change delivered over the realtime feed.
type ChangeEvent struct {
	// Type is INSERT, UPDATE or DELETE.
	Type   string          `json:"eventType"`
	Schema string          `json:"schema"`
	Table  string          `json:"table"`
	New    json.RawMessage `json:"record"`
	Old    json.RawMessage `json:"old_record"`
}

// ChangeHandler handles a postgres change event.
type ChangeHandler func(ChangeEvent)

// RealtimeClient multiplexes table change subscriptions over one
// websocket connection.
type RealtimeClient struct {
	mu       sync.RWMutex
	url      string
	conn     *websocket.Conn
	handlers map[string]map[int]ChangeHandler
	nextID   int
	done     chan struct{}
	ref      int
	closed   bool
}

// NewRealtimeClient creates a realtime client for the given Supabase URL.
func NewRealtimeClient(supabaseURL, apiKey string) *RealtimeClient {
	wsURL := supabaseURL
	switch {
	case strings.HasPrefix(wsURL, "https"):
		wsURL = "wss" + wsURL[5:]
	case strings.HasPrefix(wsURL, "http"):
		wsURL = "ws" + wsURL[4:]
	}
	wsURL += "/realtime/v1/websocket?apikey=" + apiKey + "&vsn=1.0.0"

	return &RealtimeClient{
		url:      wsURL,
		handlers: make(map[string]map[int]ChangeHandler),
		done:     make(chan struct{}),
	}
}

// Connect establishes the websocket connection, joins the channels of any
// subscriptions registered before connecting, and starts the reader and
// heartbeat loops.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}
	if r.closed {
		return fmt.Errorf("realtime client is closed")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	for topic := range r.handlers {
		if err := r.send("phx_join", topic); err != nil {
			_ = conn.Close()
			r.conn = nil
			return fmt.Errorf("join channel %s: %w", topic, err)
		}
	}
	go r.readLoop()
	go r.heartbeat()
	return nil
}

// Close tears down the connection. Events arriving afterwards are dropped.
func (r *RealtimeClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	close(r.done)

	if r.conn == nil {
		return nil
	}
	_ = r.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	err := r.conn.Close()
	r.conn = nil
	return err
}

// ChangeFilter selects which postgres changes a subscription receives.
type ChangeFilter struct {
	Event  string // INSERT, UPDATE, DELETE or * (default *)
	Schema string // default public
	Table  string
	Filter string // optional, e.g. "key=eq.deals_completed"
}

func (f ChangeFilter) topic() string {
	schema := f.Schema
	if schema == "" {
		schema = "public"
	}
	topic := fmt.Sprintf("realtime:%s:%s", schema, f.Table)
	if f.Filter != "" {
		topic += ":" + f.Filter
	}
	return topic
}

// Subscribe registers a handler for changes matching the filter and joins
// the channel. Subscribing before Connect is allowed; the join is sent
// once the connection comes up. The returned function unsubscribes; it is
// safe to call more than once and must be called when the subscriber goes
// away.
func (r *RealtimeClient) Subscribe(ctx context.Context, filter ChangeFilter, handler ChangeHandler) (func(), error) {
	topic := filter.topic()
	event := filter.Event
	if event == "" {
		event = "*"
	}

	wrapped := handler
	if event != "*" {
		want := event
		wrapped = func(ev ChangeEvent) {
			if ev.Type == want {
				handler(ev)
			}
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("realtime client is closed")
	}
	r.nextID++
	id := r.nextID
	firstForTopic := len(r.handlers[topic]) == 0
	if r.handlers[topic] == nil {
		r.handlers[topic] = make(map[int]ChangeHandler)
	}
	r.handlers[topic][id] = wrapped

	var joinErr error
	if firstForTopic && r.conn != nil {
		joinErr = r.send("phx_join", topic)
	}
	r.mu.Unlock()

	if joinErr != nil {
		r.removeHandler(topic, id)
		return nil, fmt.Errorf("join channel: %w", joinErr)
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.removeHandler(topic, id) })
	}, nil
}

func (r *RealtimeClient) removeHandler(topic string, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handlers[topic], id)
	if len(r.handlers[topic]) == 0 {
		delete(r.handlers, topic)
		if r.conn != nil {
			_ = r.send("phx_leave", topic)
		}
	}
}

// send writes a Phoenix protocol message; caller holds r.mu.
func (r *RealtimeClient) send(event, topic string) error {
	r.ref++
	return r.conn.WriteJSON(map[string]any{
		"topic":   topic,
		"event":   event,
		"payload": map[string]any{},
		"ref":     fmt.Sprintf("%d", r.ref),
	})
}

type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

func (r *RealtimeClient) readLoop() {
	for {
		select {
		case <-r.done:
			return
		default:
		}

		r.mu.RLock()
		conn := r.conn
		r.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg phoenixMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Event {
		case "INSERT", "UPDATE", "DELETE", "postgres_changes":
			r.dispatch(msg)
		}
	}
}

func (r *RealtimeClient) dispatch(msg phoenixMessage) {
	var ev ChangeEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return
	}
	if ev.Type == "" {
		ev.Type = msg.Event
	}

	r.mu.RLock()
	var handlers []ChangeHandler
	for _, h := range r.handlers[msg.Topic] {
		handlers = append(handlers, h)
	}
	closed := r.closed
	r.mu.RUnlock()

	if closed {
		return
	}
	for _, h := range handlers {
		go h(ev)
	}
}

func (r *RealtimeClient) heartbeat() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.conn != nil {
				_ = r.send("heartbeat", "phoenix")
			}
			r.mu.Unlock()
		}
	}
}
