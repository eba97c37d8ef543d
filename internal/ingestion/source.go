// Package ingestion adapts raw stream notifications into domain transaction
// events for the reconciliation engine.
package ingestion

import (
	"context"
	"errors"
	"log"
	"time"

	"solana-wallet-watch/internal/domain"
	"solana-wallet-watch/internal/observability"
	"solana-wallet-watch/internal/solana"
)

// Stream is the notification feed the source consumes.
type Stream interface {
	Notifications() <-chan solana.TransactionNotification
}

// WSTransactionSource decodes stream notifications and emits transaction
// events on its output channel.
type WSTransactionSource struct {
	stream  Stream
	tracked map[string]bool
	out     chan *domain.TransactionEvent
	logger  *log.Logger
	nowFunc func() time.Time
}

// SourceOptions configures a WSTransactionSource.
type SourceOptions struct {
	Stream    Stream
	Addresses []string
	Logger    *log.Logger
	// BufferSize for the output channel; defaults to 1000.
	BufferSize int
}

// NewWSTransactionSource creates a source decoding events for the given
// addresses.
func NewWSTransactionSource(opts SourceOptions) *WSTransactionSource {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	tracked := make(map[string]bool, len(opts.Addresses))
	for _, a := range opts.Addresses {
		tracked[a] = true
	}

	return &WSTransactionSource{
		stream:  opts.Stream,
		tracked: tracked,
		out:     make(chan *domain.TransactionEvent, bufferSize),
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Events returns the decoded event channel. It is closed when Run exits.
func (s *WSTransactionSource) Events() <-chan *domain.TransactionEvent {
	return s.out
}

// Run consumes notifications until the context is cancelled or the stream
// closes. Failed transactions are skipped; everything else is forwarded,
// including events with missing meta, which the engine rejects and counts.
func (s *WSTransactionSource) Run(ctx context.Context) error {
	defer close(s.out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case notif, ok := <-s.stream.Notifications():
			if !ok {
				return errors.New("stream closed")
			}
			event := s.decode(notif)
			if event == nil {
				continue
			}
			select {
			case s.out <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// decode maps one notification to a transaction event. Returns nil for
// transactions that should not reach the engine at all.
func (s *WSTransactionSource) decode(notif solana.TransactionNotification) *domain.TransactionEvent {
	if notif.Signature == "" {
		observability.RecordDecodeError("missing_signature")
		return nil
	}

	// The subscription filters failed transactions out, but providers have
	// been seen leaking them through.
	if notif.Meta != nil && notif.Meta.Err != nil {
		observability.RecordDecodeError("failed_tx")
		return nil
	}

	event := &domain.TransactionEvent{
		Signature: notif.Signature,
		Slot:      notif.Slot,
		Timestamp: s.nowFunc(),
	}

	if notif.Meta == nil {
		// Forward as-is: the engine counts it as malformed.
		s.logger.Printf("notification %s has no meta", shortSig(notif.Signature))
		return event
	}

	event.NativeLamports = make(map[string]uint64)
	for i, key := range notif.AccountKeys {
		if !s.tracked[key] || i >= len(notif.Meta.PostBalances) {
			continue
		}
		event.NativeLamports[key] = notif.Meta.PostBalances[i]
	}

	event.PreTokenBalances = decodeTokenBalances(notif.Meta.PreTokenBalances)
	event.PostTokenBalances = decodeTokenBalances(notif.Meta.PostTokenBalances)
	return event
}

// decodeTokenBalances always materializes a slice so downstream can tell
// "no token accounts touched" apart from "meta was missing".
func decodeTokenBalances(in []solana.TokenBalanceInfo) []domain.TokenBalance {
	out := make([]domain.TokenBalance, 0, len(in))
	for _, b := range in {
		out = append(out, domain.TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Owner:        b.Owner,
			Amount:       b.UIAmount,
		})
	}
	return out
}

func shortSig(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
