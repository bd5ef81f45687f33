package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeFilterTopic(t *testing.T) {
	tests := []struct {
		name   string
		filter ChangeFilter
		want   string
	}{
		{"defaults schema", ChangeFilter{Table: "products"}, "realtime:public:products"},
		{"explicit schema", ChangeFilter{Schema: "public", Table: "notifications"}, "realtime:public:notifications"},
		{"with row filter", ChangeFilter{Table: "deals_metadata", Filter: "key=eq.deals_completed"},
			"realtime:public:deals_metadata:key=eq.deals_completed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.topic())
		})
	}
}

func TestSubscribeDispatchAndUnsubscribe(t *testing.T) {
	r := NewRealtimeClient("https://example.supabase.co", "anon-key")

	events := make(chan ChangeEvent, 4)
	unsubscribe, err := r.Subscribe(context.Background(), ChangeFilter{Table: "products"}, func(ev ChangeEvent) {
		events <- ev
	})
	require.NoError(t, err)

	payload, _ := json.Marshal(ChangeEvent{Type: "INSERT", Schema: "public", Table: "products"})
	r.dispatch(phoenixMessage{
		Topic:   "realtime:public:products",
		Event:   "INSERT",
		Payload: payload,
	})

	select {
	case ev := <-events:
		assert.Equal(t, "INSERT", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	unsubscribe()
	r.dispatch(phoenixMessage{
		Topic:   "realtime:public:products",
		Event:   "INSERT",
		Payload: payload,
	})

	select {
	case <-events:
		t.Fatal("event delivered after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeEventFilter(t *testing.T) {
	r := NewRealtimeClient("https://example.supabase.co", "anon-key")

	events := make(chan ChangeEvent, 4)
	_, err := r.Subscribe(context.Background(), ChangeFilter{Table: "products", Event: "DELETE"}, func(ev ChangeEvent) {
		events <- ev
	})
	require.NoError(t, err)

	insert, _ := json.Marshal(ChangeEvent{Type: "INSERT"})
	del, _ := json.Marshal(ChangeEvent{Type: "DELETE"})
	r.dispatch(phoenixMessage{Topic: "realtime:public:products", Event: "INSERT", Payload: insert})
	r.dispatch(phoenixMessage{Topic: "realtime:public:products", Event: "DELETE", Payload: del})

	select {
	case ev := <-events:
		assert.Equal(t, "DELETE", ev.Type, "only the subscribed event type is delivered")
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event %q", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	r := NewRealtimeClient("https://example.supabase.co", "anon-key")

	first, err := r.Subscribe(context.Background(), ChangeFilter{Table: "products"}, func(ChangeEvent) {})
	require.NoError(t, err)
	second, err := r.Subscribe(context.Background(), ChangeFilter{Table: "products"}, func(ChangeEvent) {})
	require.NoError(t, err)

	first()
	first() // double unsubscribe must not drop the other handler

	events := make(chan struct{}, 1)
	third, err := r.Subscribe(context.Background(), ChangeFilter{Table: "products"}, func(ChangeEvent) {
		events <- struct{}{}
	})
	require.NoError(t, err)
	defer third()
	defer second()

	payload, _ := json.Marshal(ChangeEvent{Type: "UPDATE"})
	r.dispatch(phoenixMessage{Topic: "realtime:public:products", Event: "UPDATE", Payload: payload})

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("surviving handler not invoked")
	}
}

func TestConnectJoinsEarlierSubscriptions(t *testing.T) {
	joins := make(chan phoenixMessage, 4)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg phoenixMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Event == "phx_join" {
				joins <- msg
			}
		}
	}))
	defer server.Close()

	r := NewRealtimeClient(server.URL, "anon-key")
	defer r.Close()

	_, err := r.Subscribe(context.Background(), ChangeFilter{Table: "products"}, func(ChangeEvent) {})
	require.NoError(t, err)

	require.NoError(t, r.Connect(context.Background()))

	select {
	case msg := <-joins:
		assert.Equal(t, "realtime:public:products", msg.Topic)
	case <-time.After(time.Second):
		t.Fatal("channel join not sent after connect")
	}
}

func TestSubscribeAfterCloseFails(t *testing.T) {
	r := NewRealtimeClient("https://example.supabase.co", "anon-key")
	require.NoError(t, r.Close())

	_, err := r.Subscribe(context.Background(), ChangeFilter{Table: "products"}, func(ChangeEvent) {})
	assert.Error(t, err)
}

func TestDispatchAfterCloseDropsEvents(t *testing.T) {
	r := NewRealtimeClient("https://example.supabase.co", "anon-key")

	events := make(chan struct{}, 1)
	_, err := r.Subscribe(context.Background(), ChangeFilter{Table: "products"}, func(ChangeEvent) {
		events <- struct{}{}
	})
	require.NoError(t, err)

	require.NoError(t, r.Close())

	payload, _ := json.Marshal(ChangeEvent{Type: "INSERT"})
	r.dispatch(phoenixMessage{Topic: "realtime:public:products", Event: "INSERT", Payload: payload})

	select {
	case <-events:
		t.Fatal("event delivered after close")
	case <-time.After(50 * time.Millisecond):
	}
}
