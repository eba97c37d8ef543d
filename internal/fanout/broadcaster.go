// Package fanout pushes periodic balance snapshots to WebSocket subscribers.
package fanout

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"solana-wallet-watch/internal/domain"
	"solana-wallet-watch/internal/ledger"
	"solana-wallet-watch/internal/observability"
)

// DefaultInterval is how often the broadcaster checks for balance changes.
const DefaultInterval = time.Second

// subscriberBuffer bounds the per-subscriber send queue. A reader that falls
// this far behind starts losing frames rather than stalling the broadcaster.
const subscriberBuffer = 16

// LatestData is the newest history point attached to a wallet update.
type LatestData struct {
	Time           int64   `json:"time"`
	NativeBalance  float64 `json:"native_balance"`
	WrappedBalance float64 `json:"wrapped_balance"`
	TotalBalance   float64 `json:"total_balance"`
}

// WalletPayload is one wallet's state inside a push frame.
type WalletPayload struct {
	domain.AccountSummary
	LatestData *LatestData `json:"latest_data"`
}

// Update wraps a single changed wallet.
type Update struct {
	Type   string        `json:"type"`
	Wallet WalletPayload `json:"wallet"`
}

// BatchUpdate is the wire frame: every wallet that changed since the
// previous broadcast.
type BatchUpdate struct {
	Type    string   `json:"type"`
	Updates []Update `json:"updates"`
}

// Broadcaster samples the registry on a fixed interval and fans changed
// wallet states out to all subscribers. New subscribers receive a full
// snapshot immediately, then deltas only.
type Broadcaster struct {
	registry *ledger.Registry
	interval time.Duration
	logger   *log.Logger

	mu       sync.Mutex
	subs     map[int]chan []byte
	nextID   int
	lastSent map[string]domain.AccountSummary
}

// Options configures a Broadcaster.
type Options struct {
	Registry *ledger.Registry
	Interval time.Duration // defaults to DefaultInterval
	Logger   *log.Logger
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(opts Options) *Broadcaster {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Broadcaster{
		registry: opts.Registry,
		interval: interval,
		logger:   logger,
		subs:     make(map[int]chan []byte),
		lastSent: make(map[string]domain.AccountSummary),
	}
}

// Run drives the broadcast loop until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Printf("broadcaster started, interval %s", b.interval)
	for {
		select {
		case <-ctx.Done():
			b.logger.Println("broadcaster stopping...")
			return ctx.Err()
		case <-ticker.C:
			b.Refresh()
		}
	}
}

// Subscribe registers a push channel. The first frame on the channel is a
// full snapshot of every tracked wallet; the returned cancel func detaches
// the subscriber and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	n := len(b.subs)

	if frame, ok := b.buildFrame(b.registry.Summaries()); ok {
		ch <- frame
	}
	b.mu.Unlock()

	observability.SetPushClients(n)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			n := len(b.subs)
			b.mu.Unlock()
			close(ch)
			observability.SetPushClients(n)
		})
	}
	return ch, cancel
}

// Refresh performs one change-detection pass and publishes a frame if any
// wallet moved. Exposed so tests can drive the loop deterministically.
func (b *Broadcaster) Refresh() {
	start := time.Now()
	summaries := b.registry.Summaries()

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := make([]domain.AccountSummary, 0, len(summaries))
	for _, s := range summaries {
		if prev, ok := b.lastSent[s.Address]; !ok || prev != s {
			changed = append(changed, s)
		}
	}
	if len(changed) == 0 {
		return
	}

	frame, ok := b.buildFrame(changed)
	if !ok {
		return
	}
	for _, s := range changed {
		b.lastSent[s.Address] = s
	}

	dropped := 0
	for _, ch := range b.subs {
		select {
		case ch <- frame:
		default:
			dropped++
			observability.RecordPushDropped()
		}
	}
	if dropped > 0 {
		b.logger.Printf("broadcast: dropped frame for %d slow subscribers", dropped)
	}
	observability.RecordSnapshotBroadcast(time.Since(start).Seconds())
}

// Snapshot returns the full-state frame for every tracked wallet.
func (b *Broadcaster) Snapshot() []byte {
	frame, _ := b.buildFrame(b.registry.Summaries())
	return frame
}

func (b *Broadcaster) buildFrame(summaries []domain.AccountSummary) ([]byte, bool) {
	if len(summaries) == 0 {
		return nil, false
	}
	batch := BatchUpdate{Type: "batch_update", Updates: make([]Update, 0, len(summaries))}
	for _, s := range summaries {
		payload := WalletPayload{AccountSummary: s}
		if acct, ok := b.registry.Get(s.Address); ok {
			if p, ok := acct.LatestPoint(); ok {
				payload.LatestData = &LatestData{
					Time:           p.Timestamp.Unix(),
					NativeBalance:  p.Native,
					WrappedBalance: p.Wrapped,
					TotalBalance:   p.Total(),
				}
			}
		}
		batch.Updates = append(batch.Updates, Update{Type: "update", Wallet: payload})
	}

	frame, err := json.Marshal(batch)
	if err != nil {
		b.logger.Printf("broadcast: marshal frame: %v", err)
		return nil, false
	}
	return frame, true
}
