package quotes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// DefaultMarketChannel is the public CLOB market websocket.
const DefaultMarketChannel = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

// ErrFeedClosed is returned when using a closed feed.
var ErrFeedClosed = errors.New("feed closed")

// FeedConfig configures the live market feed.
type FeedConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultFeedConfig returns default feed configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// PriceUpdate is one observed last-trade price.
type PriceUpdate struct {
	TokenID   string
	Price     float64
	Timestamp int64 // unix seconds
}

// Feed subscribes to the market channel and records last trade prices into a Table.
type Feed struct {
	endpoint string
	config   FeedConfig
	table    *Table
	log      zerolog.Logger
	onUpdate func(PriceUpdate)

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	assets   []string
	assetsMu sync.RWMutex

	updates      atomic.Int64
	reconnecting atomic.Bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewFeed connects to endpoint and starts reading. onUpdate may be nil.
func NewFeed(ctx context.Context, endpoint string, table *Table, config *FeedConfig, log zerolog.Logger, onUpdate func(PriceUpdate)) (*Feed, error) {
	cfg := DefaultFeedConfig()
	if config != nil {
		cfg = *config
	}
	f := &Feed{
		endpoint: endpoint,
		config:   cfg,
		table:    table,
		log:      log,
		onUpdate: onUpdate,
		done:     make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	f.wg.Add(2)
	go f.readLoop()
	go f.pingLoop()

	return f, nil
}

func (f *Feed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	if f.closed.Load() {
		conn.Close()
		return ErrFeedClosed
	}
	f.conn = conn
	return nil
}

// Subscribe adds token ids to the subscription.
func (f *Feed) Subscribe(assetIDs ...string) error {
	if f.closed.Load() {
		return ErrFeedClosed
	}
	f.assetsMu.Lock()
	f.assets = append(f.assets, assetIDs...)
	f.assetsMu.Unlock()
	return f.sendSubscription(assetIDs)
}

func (f *Feed) sendSubscription(assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	msg := subscribeMessage{AssetIDs: assetIDs, Type: "market"}
	if err := f.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Updates returns the number of price updates recorded.
func (f *Feed) Updates() int64 { return f.updates.Load() }

// Close stops the feed.
func (f *Feed) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	return nil
}

func (f *Feed) readLoop() {
	defer f.wg.Done()

	delay := f.config.ReconnectDelay
	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}
			if !f.reconnecting.Swap(true) {
				f.log.Warn().Err(err).Dur("delay", delay).Msg("market feed disconnected")
				f.wg.Add(1)
				go f.reconnect(delay)
			}
			delay *= 2
			if delay > f.config.MaxReconnectDelay {
				delay = f.config.MaxReconnectDelay
			}
			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		delay = f.config.ReconnectDelay
		f.handleMessage(message)
	}
}

// reconnect redials with backoff until a connection is up or the feed is
// closed, then restores the subscriptions.
func (f *Feed) reconnect(delay time.Duration) {
	defer f.wg.Done()
	defer f.reconnecting.Store(false)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()

	for attempt := 1; ; attempt++ {
		select {
		case <-f.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := f.connect(ctx)
		cancel()
		if err == nil {
			break
		}
		if errors.Is(err, ErrFeedClosed) {
			return
		}
		f.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("market feed reconnect failed")
		delay *= 2
		if f.config.MaxReconnectDelay > 0 && delay > f.config.MaxReconnectDelay {
			delay = f.config.MaxReconnectDelay
		}
	}

	f.assetsMu.RLock()
	assets := append([]string(nil), f.assets...)
	f.assetsMu.RUnlock()
	if err := f.sendSubscription(assets); err != nil {
		f.log.Warn().Err(err).Msg("market feed resubscribe failed")
	}
	f.log.Info().Int("assets", len(assets)).Msg("market feed reconnected")
}

// handleMessage accepts a single event object or an array of them.
func (f *Feed) handleMessage(message []byte) {
	if !gjson.ValidBytes(message) {
		return
	}
	root := gjson.ParseBytes(message)
	if root.IsArray() {
		for _, ev := range root.Array() {
			f.handleEvent(ev)
		}
		return
	}
	f.handleEvent(root)
}

func (f *Feed) handleEvent(ev gjson.Result) {
	ts := ev.Get("timestamp").Int()
	if ts >= 1_000_000_000_000 {
		ts /= 1000
	}

	switch ev.Get("event_type").String() {
	case "last_trade_price":
		f.record(ev.Get("asset_id").String(), ev.Get("price").Float(), ts)
	case "price_change":
		for _, ch := range ev.Get("price_changes").Array() {
			f.record(ch.Get("asset_id").String(), ch.Get("price").Float(), ts)
		}
	}
}

func (f *Feed) record(tokenID string, price float64, ts int64) {
	if tokenID == "" || ts <= 0 || price < 0 || price > 1 {
		return
	}
	f.table.SetAt(tokenID, ts, price)
	f.updates.Add(1)
	if f.onUpdate != nil {
		f.onUpdate(PriceUpdate{TokenID: tokenID, Price: price, Timestamp: ts})
	}
}

func (f *Feed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				// A dead connection surfaces as a read error.
				_ = f.conn.WriteMessage(websocket.PingMessage, nil)
			}
			f.connMu.Unlock()
		}
	}
}

type subscribeMessage struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}
