package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-wallet-watch/internal/domain"
	"solana-wallet-watch/internal/ledger"
	"solana-wallet-watch/internal/observability"
)

// ErrUnknownAccount is returned when a bootstrap result arrives for an
// address that was never configured.
var ErrUnknownAccount = errors.New("unknown account")

// nowFunc stamps bootstrap completions; swapped out in tests.
var nowFunc = time.Now

// Engine applies the transaction stream to the account registry. A single
// goroutine runs the event loop and fully applies one event before reading
// the next, so per-account apply order matches stream delivery order.
//
// Delivery order is taken as authoritative: there is no signature-based
// dedup and no reorder buffer, so a redelivered transaction double-counts
// its wrapped delta. This is a documented limitation of the upstream
// contract, not an accident.
type Engine struct {
	registry    *ledger.Registry
	tracked     map[string]bool
	wrappedMint string
	logger      *log.Logger
}

// Options configures an Engine.
type Options struct {
	Registry    *ledger.Registry
	WrappedMint string // defaults to domain.WSOLMint
	Logger      *log.Logger
}

// NewEngine creates a reconciliation engine over the given registry.
func NewEngine(opts Options) *Engine {
	mint := opts.WrappedMint
	if mint == "" {
		mint = domain.WSOLMint
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	tracked := make(map[string]bool)
	for _, addr := range opts.Registry.Addresses() {
		tracked[addr] = true
	}

	return &Engine{
		registry:    opts.Registry,
		tracked:     tracked,
		wrappedMint: mint,
		logger:      logger,
	}
}

// Run consumes decoded transaction events until the context is cancelled.
// Malformed events are counted and skipped; a closed channel ends the loop
// since the stream adapter owns reconnection and only closes on shutdown.
func (e *Engine) Run(ctx context.Context, events <-chan *domain.TransactionEvent) error {
	e.logger.Printf("engine started, tracking %d accounts", len(e.tracked))

	for {
		select {
		case <-ctx.Done():
			e.logger.Println("engine stopping...")
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				return errors.New("transaction events channel closed")
			}
			if err := e.ApplyEvent(event); err != nil {
				e.logger.Printf("dropping event %s: %v", eventSignature(event), err)
			}
		}
	}
}

// ApplyEvent extracts this transaction's balance movements and applies them
// to the touched accounts, one atomic update per account. Returns
// ErrMalformedEvent (wrapped) when the envelope is unusable; the caller keeps
// processing either way.
func (e *Engine) ApplyEvent(event *domain.TransactionEvent) error {
	deltas, err := ExtractWrappedDeltas(event, e.tracked, e.wrappedMint)
	if err != nil {
		observability.RecordEventDropped("malformed")
		return fmt.Errorf("extract deltas: %w", err)
	}

	updates := make(map[string]*ledger.Update)
	touch := func(addr string) *ledger.Update {
		u, ok := updates[addr]
		if !ok {
			u = &ledger.Update{At: event.Timestamp}
			updates[addr] = u
		}
		return u
	}

	for addr, l := range event.NativeLamports {
		if !e.tracked[addr] {
			continue
		}
		lamports := l
		touch(addr).NativeLamports = &lamports
	}
	for _, d := range deltas {
		u := touch(d.Owner)
		u.WrappedDelta += d.Amount
		u.HasWrappedDelta = true
	}

	for addr, u := range updates {
		acct, ok := e.registry.Get(addr)
		if !ok {
			continue
		}
		acct.Apply(*u)
		if u.HasWrappedDelta {
			observability.RecordWrappedDeltaApplied()
			e.logger.Printf("wrapped delta %s: %+.9f", shortAddr(addr), u.WrappedDelta)
		}
		if u.NativeLamports != nil {
			observability.RecordNativeUpdateApplied()
		}
	}

	observability.RecordEventProcessed()
	return nil
}

// BeginBootstrap marks the account's absolute-balance fetch as in flight.
func (e *Engine) BeginBootstrap(address string) error {
	acct, ok := e.registry.Get(address)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, address)
	}
	acct.BeginBootstrap()
	return nil
}

// CompleteBootstrap installs the authoritative absolute snapshot for an
// account, making its wrapped balance trustworthy from here on.
func (e *Engine) CompleteBootstrap(address string, lamports uint64, wrapped float64) error {
	acct, ok := e.registry.Get(address)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, address)
	}
	acct.CompleteBootstrap(lamports, wrapped, nowFunc())
	observability.RecordBootstrapCompleted()
	e.logger.Printf("bootstrap complete %s: native=%.6f wrapped=%.6f",
		shortAddr(address), float64(lamports)/domain.LamportsPerSOL, wrapped)
	return nil
}

func eventSignature(event *domain.TransactionEvent) string {
	if event == nil || event.Signature == "" {
		return "<unsigned>"
	}
	return shortAddr(event.Signature)
}

func shortAddr(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
