package quotes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestFeed_RecordsLastTradePrice(t *testing.T) {
	subscribed := make(chan subscribeMessage, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var sub subscribeMessage
		if err := json.Unmarshal(msg, &sub); err != nil {
			t.Errorf("unmarshal subscribe: %v", err)
			return
		}
		subscribed <- sub

		c.WriteMessage(websocket.TextMessage, []byte(`[
			{"event_type":"last_trade_price","asset_id":"tok1","price":"0.61","timestamp":"1704153600000"},
			{"event_type":"book","asset_id":"tok1"}
		]`))
		c.WriteMessage(websocket.TextMessage, []byte(
			`{"event_type":"price_change","timestamp":"1704240000000","price_changes":[{"asset_id":"tok2","price":"0.33"}]}`))

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	table := NewTable()
	updates := make(chan PriceUpdate, 4)

	feed, err := NewFeed(context.Background(), wsURL, table, nil, zerolog.Nop(), func(u PriceUpdate) { updates <- u })
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	defer feed.Close()

	if err := feed.Subscribe("tok1", "tok2"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case sub := <-subscribed:
		if sub.Type != "market" || len(sub.AssetIDs) != 2 {
			t.Errorf("Unexpected subscription %+v", sub)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for subscription")
	}

	for i := 0; i < 2; i++ {
		select {
		case <-updates:
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for update %d", i)
		}
	}

	ctx := context.Background()
	if p, ok := table.PriceAt(ctx, "tok1", "2024-01-02"); !ok || p != 0.61 {
		t.Errorf("tok1: expected 0.61, got %v (%v)", p, ok)
	}
	if p, ok := table.PriceAt(ctx, "tok2", "2024-01-03"); !ok || p != 0.33 {
		t.Errorf("tok2: expected 0.33, got %v (%v)", p, ok)
	}
	if feed.Updates() != 2 {
		t.Errorf("Expected 2 updates, got %d", feed.Updates())
	}
}

func TestFeed_SubscribeAfterClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	feed, err := NewFeed(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"), NewTable(), nil, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	feed.Close()
	if err := feed.Subscribe("tok"); err != ErrFeedClosed {
		t.Errorf("Expected ErrFeedClosed, got %v", err)
	}
}

func TestFeed_ReconnectRetriesFailedDial(t *testing.T) {
	var dials atomic.Int32
	resubscribed := make(chan subscribeMessage, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		if n == 2 {
			// The first redial hits an unavailable server.
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		if n == 1 {
			// Drop the connection once subscribed.
			return
		}
		var sub subscribeMessage
		if err := json.Unmarshal(msg, &sub); err != nil {
			t.Errorf("unmarshal subscribe: %v", err)
			return
		}
		select {
		case resubscribed <- sub:
		default:
		}
		c.WriteMessage(websocket.TextMessage, []byte(
			`{"event_type":"last_trade_price","asset_id":"tok1","price":"0.42","timestamp":"1704153600"}`))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := DefaultFeedConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 50 * time.Millisecond
	updates := make(chan PriceUpdate, 1)

	table := NewTable()
	feed, err := NewFeed(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"), table, &cfg, zerolog.Nop(),
		func(u PriceUpdate) { updates <- u })
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	defer feed.Close()

	if err := feed.Subscribe("tok1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case sub := <-resubscribed:
		if len(sub.AssetIDs) != 1 || sub.AssetIDs[0] != "tok1" {
			t.Errorf("Unexpected resubscription %+v", sub)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for resubscription after %d dials", dials.Load())
	}

	select {
	case u := <-updates:
		if u.TokenID != "tok1" || u.Price != 0.42 {
			t.Errorf("Unexpected update %+v", u)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for update after reconnect")
	}
	if n := dials.Load(); n < 3 {
		t.Errorf("Expected at least 3 dials, got %d", n)
	}
}
