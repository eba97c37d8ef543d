package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-watch/internal/domain"
)

func lamports(v uint64) *uint64 { return &v }

func ts(sec int) time.Time {
	return time.Unix(1_700_000_000+int64(sec), 0).UTC()
}

func TestAccount_NativeAbsoluteOverwrites(t *testing.T) {
	a := NewAccount("Addr1", "trader", 100)
	a.CompleteBootstrap(0, 0, ts(0))

	// Any number of updates: balance equals the most recent absolute value.
	for i, l := range []uint64{5_000_000_000, 1_000_000_000, 7_500_000_000} {
		a.Apply(Update{NativeLamports: lamports(l), At: ts(i + 1)})
	}

	s := a.Summary()
	assert.InDelta(t, 7.5, s.NativeBalance, 1e-12)
	assert.Equal(t, ts(3), s.LastUpdate)
}

func TestAccount_WrappedEqualsBootstrapPlusDeltas(t *testing.T) {
	a := NewAccount("Addr1", "trader", 100)
	a.CompleteBootstrap(2_000_000_000, 5.0, ts(0))

	a.Apply(Update{WrappedDelta: -0.000005, HasWrappedDelta: true, At: ts(1)})
	a.Apply(Update{WrappedDelta: 0.000010, HasWrappedDelta: true, At: ts(2)})

	s := a.Summary()
	assert.InDelta(t, 5.000005, s.WrappedBalance, 1e-9)

	// Bootstrap point plus one per delta.
	require.Equal(t, 3, a.HistoryLen())
	last, ok := a.LatestPoint()
	require.True(t, ok)
	assert.InDelta(t, 5.000005, last.Wrapped, 1e-9)
}

func TestAccount_NoHistoryBeforeBootstrap(t *testing.T) {
	a := NewAccount("Addr1", "trader", 100)

	for i := 0; i < 50; i++ {
		a.Apply(Update{NativeLamports: lamports(uint64(i) * 1_000_000), At: ts(i)})
	}

	assert.Equal(t, 0, a.HistoryLen())
	assert.Equal(t, StateUninitialized, a.State())

	s := a.Summary()
	assert.False(t, s.WrappedInitialized)
	assert.Zero(t, s.WrappedBalance)
	// Total covers the native side only while degraded.
	assert.InDelta(t, s.NativeBalance, s.TotalBalance, 1e-12)
}

func TestAccount_BootstrapOverwritesSpeculativeDeltas(t *testing.T) {
	a := NewAccount("Addr1", "trader", 100)
	a.BeginBootstrap()
	assert.Equal(t, StateBootstrapping, a.State())

	// Deltas arriving before the bootstrap response accumulate internally
	// but the absolute read wins once it lands.
	a.Apply(Update{WrappedDelta: 1.5, HasWrappedDelta: true, At: ts(1)})
	a.Apply(Update{WrappedDelta: 0.25, HasWrappedDelta: true, At: ts(2)})
	assert.Equal(t, 0, a.HistoryLen())

	a.CompleteBootstrap(1_000_000_000, 3.0, ts(3))

	s := a.Summary()
	assert.Equal(t, StateInitialized, a.State())
	assert.InDelta(t, 3.0, s.WrappedBalance, 1e-12)
	require.Equal(t, 1, a.HistoryLen())

	pts := a.History()
	assert.Equal(t, ts(3), pts[0].Timestamp)
	assert.InDelta(t, 1.0, pts[0].Native, 1e-12)
}

func TestAccount_BootstrapClearsEarlierHistory(t *testing.T) {
	a := NewAccount("Addr1", "trader", 100)
	a.CompleteBootstrap(0, 1.0, ts(0))
	a.Apply(Update{WrappedDelta: 1.0, HasWrappedDelta: true, At: ts(1)})
	require.Equal(t, 2, a.HistoryLen())

	// A re-bootstrap (e.g. operator-triggered) starts the record over.
	a.CompleteBootstrap(0, 9.0, ts(2))
	require.Equal(t, 1, a.HistoryLen())
	last, _ := a.LatestPoint()
	assert.InDelta(t, 9.0, last.Wrapped, 1e-12)
}

func TestAccount_EvictionKeepsNewestPoints(t *testing.T) {
	const capacity = 16
	a := NewAccount("Addr1", "trader", capacity)
	a.CompleteBootstrap(0, 0, ts(0))

	const total = 100
	for i := 1; i <= total; i++ {
		a.Apply(Update{WrappedDelta: 1, HasWrappedDelta: true, At: ts(i)})
	}

	require.Equal(t, capacity, a.HistoryLen())

	pts := a.History()
	require.Len(t, pts, capacity)
	// Exactly the most recent capacity points, in timestamp order.
	for i, p := range pts {
		want := ts(total - capacity + 1 + i)
		assert.Equal(t, want, p.Timestamp, "point %d", i)
	}
	for i := 1; i < len(pts); i++ {
		assert.False(t, pts[i].Timestamp.Before(pts[i-1].Timestamp))
	}
}

func TestAccount_OneEventOnePoint(t *testing.T) {
	a := NewAccount("Addr1", "trader", 100)
	a.CompleteBootstrap(1_000_000_000, 2.0, ts(0))

	// Native absolute and wrapped delta from the same transaction land as a
	// single fully defined point.
	a.Apply(Update{
		NativeLamports:  lamports(3_000_000_000),
		WrappedDelta:    -0.5,
		HasWrappedDelta: true,
		At:              ts(1),
	})

	require.Equal(t, 2, a.HistoryLen())
	last, _ := a.LatestPoint()
	assert.InDelta(t, 3.0, last.Native, 1e-12)
	assert.InDelta(t, 1.5, last.Wrapped, 1e-12)
	assert.InDelta(t, 4.5, last.Total(), 1e-12)
}

func TestAccount_HistorySince(t *testing.T) {
	a := NewAccount("Addr1", "trader", 100)
	a.CompleteBootstrap(0, 0, ts(0))
	for i := 1; i <= 10; i++ {
		a.Apply(Update{WrappedDelta: 1, HasWrappedDelta: true, At: ts(i)})
	}

	pts := a.HistorySince(ts(7))
	require.Len(t, pts, 4) // ts(7)..ts(10)
	assert.Equal(t, ts(7), pts[0].Timestamp)

	assert.Empty(t, a.HistorySince(ts(11)))
	assert.Len(t, a.HistorySince(ts(0)), 11)
}

func TestRegistry(t *testing.T) {
	a1 := NewAccount("Addr1", "alpha", 10)
	a2 := NewAccount("Addr2", "beta", 10)
	r := NewRegistry([]*Account{a1, a2})

	got, ok := r.Get("Addr2")
	require.True(t, ok)
	assert.Equal(t, "beta", got.Name())

	_, ok = r.Get("AddrX")
	assert.False(t, ok)

	assert.Equal(t, []string{"Addr1", "Addr2"}, r.Addresses())

	sums := r.Summaries()
	require.Len(t, sums, 2)
	assert.Equal(t, domain.AccountSummary{Address: "Addr1", Name: "alpha"}, sums[0])
}
