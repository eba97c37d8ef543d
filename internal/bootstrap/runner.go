// Package bootstrap fetches authoritative absolute balances for every
// tracked wallet at startup.
package bootstrap

import (
	"context"
	"log"
	"sync"
	"time"

	"solana-wallet-watch/internal/domain"
	"solana-wallet-watch/internal/observability"
	"solana-wallet-watch/internal/solana"
)

// Default retry pacing for failed balance fetches.
const (
	DefaultRetryDelay = 2 * time.Second
	DefaultMaxDelay   = 30 * time.Second
)

// Reconciler receives the bootstrap lifecycle for each account.
type Reconciler interface {
	BeginBootstrap(address string) error
	CompleteBootstrap(address string, lamports uint64, wrapped float64) error
}

// Runner fetches each wallet's native and wrapped balances over RPC and
// hands them to the reconciler. Accounts are fetched concurrently and each
// retries independently until it succeeds or the context ends; an account
// that never succeeds simply stays uninitialized.
type Runner struct {
	client     solana.BalanceClient
	reconciler Reconciler
	addresses  []string
	mint       string
	retryDelay time.Duration
	maxDelay   time.Duration
	logger     *log.Logger

	// deriveATA is swappable in tests.
	deriveATA func(wallet, mint string) (string, error)
}

// Options configures a Runner.
type Options struct {
	Client     solana.BalanceClient
	Reconciler Reconciler
	Addresses  []string
	Mint       string // defaults to domain.WSOLMint
	RetryDelay time.Duration
	MaxDelay   time.Duration
	Logger     *log.Logger
}

// NewRunner creates a bootstrap runner.
func NewRunner(opts Options) *Runner {
	mint := opts.Mint
	if mint == "" {
		mint = domain.WSOLMint
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		client:     opts.Client,
		reconciler: opts.Reconciler,
		addresses:  opts.Addresses,
		mint:       mint,
		retryDelay: retryDelay,
		maxDelay:   maxDelay,
		logger:     logger,
		deriveATA:  solana.FindAssociatedTokenAddress,
	}
}

// Run bootstraps all accounts and returns when every account has either
// completed or the context ended.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Printf("bootstrapping %d accounts", len(r.addresses))

	var wg sync.WaitGroup
	for _, address := range r.addresses {
		wg.Add(1)
		go func(address string) {
			defer wg.Done()
			r.bootstrapAccount(ctx, address)
		}(address)
	}
	wg.Wait()
	return ctx.Err()
}

// bootstrapAccount retries the two balance reads until both succeed.
func (r *Runner) bootstrapAccount(ctx context.Context, address string) {
	if err := r.reconciler.BeginBootstrap(address); err != nil {
		r.logger.Printf("bootstrap %s: %v", address, err)
		return
	}

	tokenAccount, err := r.deriveATA(address, r.mint)
	if err != nil {
		// Config validation should make this unreachable; retrying a bad
		// address cannot help.
		r.logger.Printf("bootstrap %s: derive token account: %v", address, err)
		return
	}

	delay := r.retryDelay
	for {
		lamports, wrapped, err := r.fetch(ctx, address, tokenAccount)
		if err == nil {
			if err := r.reconciler.CompleteBootstrap(address, lamports, wrapped); err != nil {
				r.logger.Printf("bootstrap %s: %v", address, err)
			}
			return
		}

		observability.RecordBootstrapRetry()
		r.logger.Printf("bootstrap %s failed, retrying in %s: %v", address, delay, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > r.maxDelay {
			delay = r.maxDelay
		}
	}
}

// fetch reads both balances. A missing token account is a valid zero, not
// an error.
func (r *Runner) fetch(ctx context.Context, address, tokenAccount string) (uint64, float64, error) {
	lamports, err := r.client.GetBalance(ctx, address)
	if err != nil {
		return 0, 0, err
	}

	wrapped, exists, err := r.client.GetTokenAccountBalance(ctx, tokenAccount)
	if err != nil {
		return 0, 0, err
	}
	if !exists {
		wrapped = 0
	}
	return lamports, wrapped, nil
}
