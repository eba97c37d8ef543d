// Package ledger owns per-account balance state and the bounded history ring.
// All mutation goes through the reconciliation engine; readers receive copies.
package ledger

import (
	"sync"
	"time"

	"solana-wallet-watch/internal/domain"
)

// DefaultMaxPoints bounds the history ring when no capacity is configured.
const DefaultMaxPoints = 10_000

// State tracks the wrapped-balance bootstrap progress of one account.
type State int

const (
	// StateUninitialized means no bootstrap fetch has been issued yet.
	StateUninitialized State = iota
	// StateBootstrapping means the absolute-balance fetch is in flight.
	StateBootstrapping
	// StateInitialized means the wrapped balance is trustworthy.
	StateInitialized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBootstrapping:
		return "bootstrapping"
	case StateInitialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// HistoryPoint is one immutable observation of both balances at a moment in
// time. Points are append-only and non-decreasing in Timestamp.
type HistoryPoint struct {
	Timestamp time.Time
	Native    float64
	Wrapped   float64
}

// Total returns the combined balance recorded at this point.
func (p HistoryPoint) Total() float64 {
	return p.Native + p.Wrapped
}

// Update is one transaction's worth of balance movement for a single account.
// NativeLamports, when set, is the absolute post-transaction lamport balance.
// WrappedDelta is applied only when HasWrappedDelta is true, so a zero-valued
// delta can be told apart from "no wrapped movement".
type Update struct {
	NativeLamports  *uint64
	WrappedDelta    float64
	HasWrappedDelta bool
	At              time.Time
}

// Account holds the current balances and bounded history of one tracked
// wallet. A single RWMutex guards every field: the engine applies a whole
// Update under one write lock and appends at most one history point, so
// readers never observe a half-applied event.
type Account struct {
	address string
	name    string

	mu         sync.RWMutex
	native     float64
	wrapped    float64
	state      State
	lastUpdate time.Time

	// history ring: size entries starting at head, wrapping at maxPoints
	maxPoints int
	points    []HistoryPoint
	head      int
	size      int
}

// NewAccount creates an account with empty history and an uninitialized
// wrapped balance. A non-positive maxPoints falls back to DefaultMaxPoints.
func NewAccount(address, name string, maxPoints int) *Account {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Account{
		address:   address,
		name:      name,
		maxPoints: maxPoints,
	}
}

// Address returns the account's immutable wallet address.
func (a *Account) Address() string { return a.address }

// Name returns the configured display name.
func (a *Account) Name() string { return a.name }

// State returns the current bootstrap state.
func (a *Account) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Apply records one event's balance movement. The native absolute overwrites,
// the wrapped delta accumulates. Before bootstrap completes the wrapped total
// is still tracked (against a zero baseline) but no history point is appended;
// the bootstrap absolute later overwrites that speculative total.
func (a *Account) Apply(u Update) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if u.NativeLamports != nil {
		a.native = float64(*u.NativeLamports) / domain.LamportsPerSOL
	}
	if u.HasWrappedDelta {
		a.wrapped += u.WrappedDelta
	}
	a.lastUpdate = u.At

	if a.state == StateInitialized {
		a.appendPoint(HistoryPoint{Timestamp: u.At, Native: a.native, Wrapped: a.wrapped})
	}
}

// BeginBootstrap marks the absolute-balance fetch as in flight. It is a no-op
// once the account is initialized.
func (a *Account) BeginBootstrap() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateUninitialized {
		a.state = StateBootstrapping
	}
}

// CompleteBootstrap installs the authoritative absolute snapshot. The fetched
// values overwrite whatever speculative totals streaming deltas produced in
// the meantime, any history accumulated so far is discarded, and the first
// trustworthy point is appended.
func (a *Account) CompleteBootstrap(lamports uint64, wrapped float64, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.native = float64(lamports) / domain.LamportsPerSOL
	a.wrapped = wrapped
	a.state = StateInitialized
	a.lastUpdate = at

	a.head = 0
	a.size = 0
	a.appendPoint(HistoryPoint{Timestamp: at, Native: a.native, Wrapped: a.wrapped})
}

// appendPoint adds a point to the ring, evicting the oldest at capacity.
// Callers hold the write lock.
func (a *Account) appendPoint(p HistoryPoint) {
	if a.size < a.maxPoints {
		idx := (a.head + a.size) % a.maxPoints
		if idx == len(a.points) {
			a.points = append(a.points, p)
		} else {
			a.points[idx] = p
		}
		a.size++
		return
	}
	a.points[a.head] = p
	a.head = (a.head + 1) % a.maxPoints
}

// Summary returns a copy of the current externally visible state.
func (a *Account) Summary() domain.AccountSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := domain.AccountSummary{
		Address:            a.address,
		Name:               a.name,
		NativeBalance:      a.native,
		WrappedInitialized: a.state == StateInitialized,
		LastUpdate:         a.lastUpdate,
	}
	if s.WrappedInitialized {
		s.WrappedBalance = a.wrapped
		s.TotalBalance = a.native + a.wrapped
	} else {
		s.TotalBalance = a.native
	}
	return s
}

// History returns the retained points oldest-first as a copy.
func (a *Account) History() []HistoryPoint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.copyFrom(0)
}

// HistorySince returns the retained points with Timestamp >= cutoff,
// oldest-first, as a copy.
func (a *Account) HistorySince(cutoff time.Time) []HistoryPoint {
	a.mu.RLock()
	defer a.mu.RUnlock()

	// Points are time-ordered: scan back to the first one inside the window.
	start := a.size
	for i := a.size - 1; i >= 0; i-- {
		if a.at(i).Timestamp.Before(cutoff) {
			break
		}
		start = i
	}
	return a.copyFrom(start)
}

// LatestPoint returns the most recent history point, if any.
func (a *Account) LatestPoint() (HistoryPoint, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.size == 0 {
		return HistoryPoint{}, false
	}
	return a.at(a.size - 1), true
}

// HistoryLen returns the number of retained points.
func (a *Account) HistoryLen() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

func (a *Account) at(i int) HistoryPoint {
	return a.points[(a.head+i)%a.maxPoints]
}

func (a *Account) copyFrom(start int) []HistoryPoint {
	out := make([]HistoryPoint, 0, a.size-start)
	for i := start; i < a.size; i++ {
		out = append(out, a.at(i))
	}
	return out
}
