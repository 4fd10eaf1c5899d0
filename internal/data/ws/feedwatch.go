// Package ws tracks feed health over a websocket stream: last tick, last
// heartbeat, and measured feed latency per symbol. It backs the N0
// data-validity gate as its freshness provider.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/quantfall/tradegate/internal/domain/gates"
	"github.com/quantfall/tradegate/internal/models"
)

// feedMessage is the wire shape of the upstream feed. Tick messages may
// carry a microstructural feature snapshot alongside the timing fields.
type feedMessage struct {
	Type      string                         `json:"type"` // "tick" or "heartbeat"
	Symbol    string                         `json:"symbol,omitempty"`
	Timestamp time.Time                      `json:"ts"`
	Feature   *models.MicrostructuralFeature `json:"feature,omitempty"`
}

// FeatureFunc consumes feature snapshots embedded in tick messages.
type FeatureFunc func(models.MicrostructuralFeature)

// symbolState is the per-symbol freshness record.
type symbolState struct {
	lastTick    time.Time
	feedLatency time.Duration
}

// Watcher consumes the feed and answers freshness queries.
type Watcher struct {
	url               string
	heartbeatInterval time.Duration

	onFeature FeatureFunc

	mu            sync.RWMutex
	symbols       map[string]symbolState
	lastHeartbeat time.Time
}

var _ gates.FreshnessProvider = (*Watcher)(nil)

// NewWatcher creates a watcher for the given feed URL. heartbeatInterval
// is the upstream's advertised heartbeat cadence; a heartbeat older than
// twice the interval marks the feed unhealthy.
func NewWatcher(url string, heartbeatInterval time.Duration) *Watcher {
	return &Watcher{
		url:               url,
		heartbeatInterval: heartbeatInterval,
		symbols:           make(map[string]symbolState),
	}
}

// Run consumes the feed until ctx is cancelled, reconnecting with a
// doubling backoff capped at 30s.
func (w *Watcher) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := w.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Str("url", w.url).Dur("backoff", backoff).Msg("feed connection lost")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (w *Watcher) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.url, err)
	}
	defer conn.Close()

	log.Info().Str("url", w.url).Msg("feed connected")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read feed: %w", err)
		}

		var msg feedMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Warn().Err(err).Msg("malformed feed message dropped")
			continue
		}
		w.handle(msg, time.Now())
	}
}

func (w *Watcher) handle(msg feedMessage, received time.Time) {
	w.Apply(msg.Type, msg.Symbol, msg.Timestamp, received)
	if msg.Type == "tick" && msg.Feature != nil && w.onFeature != nil {
		w.onFeature(*msg.Feature)
	}
}

// OnFeature registers a consumer for embedded feature snapshots. Must be
// set before Run.
func (w *Watcher) OnFeature(fn FeatureFunc) { w.onFeature = fn }

// Apply folds one feed message into the freshness state. Split out from
// the socket loop so the freshness math is testable without a server.
func (w *Watcher) Apply(msgType, symbol string, sent, received time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch msgType {
	case "heartbeat":
		w.lastHeartbeat = received
	case "tick":
		latency := received.Sub(sent)
		if latency < 0 {
			latency = 0
		}
		w.symbols[symbol] = symbolState{lastTick: sent, feedLatency: latency}
	}
}

// Freshness answers the N0 data-quality query for one symbol.
func (w *Watcher) Freshness(_ context.Context, symbol string) (gates.Freshness, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	state, ok := w.symbols[symbol]
	if !ok {
		return gates.Freshness{}, fmt.Errorf("no feed data for %s", symbol)
	}

	heartbeatOK := !w.lastHeartbeat.IsZero() &&
		time.Since(w.lastHeartbeat) <= 2*w.heartbeatInterval

	return gates.Freshness{
		Symbol:      symbol,
		FeedLatency: state.feedLatency,
		LastTick:    state.lastTick,
		HeartbeatOK: heartbeatOK,
	}, nil
}
