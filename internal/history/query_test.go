package history

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-watch/internal/ledger"
)

func newTestService(t *testing.T, points int) (*Service, time.Time) {
	t.Helper()
	base := time.Unix(1_700_000_000, 0).UTC()

	a := ledger.NewAccount("Addr1", "trader", 10_000)
	a.CompleteBootstrap(1_000_000_000, 2.0, base)
	for i := 1; i < points; i++ {
		a.Apply(ledger.Update{
			WrappedDelta:    0.5,
			HasWrappedDelta: true,
			At:              base.Add(time.Duration(i) * time.Minute),
		})
	}

	svc := NewService(ledger.NewRegistry([]*ledger.Account{a}))
	now := base.Add(time.Duration(points-1) * time.Minute)
	svc.now = func() time.Time { return now }
	return svc, base
}

func TestRange_AllReturnsEverything(t *testing.T) {
	svc, base := newTestService(t, 30)

	pts, err := svc.Range("Addr1", AssetTotal, IntervalAll)
	require.NoError(t, err)
	require.Len(t, pts, 30)
	assert.Equal(t, base.Unix(), pts[0].Time)
	// total = native 1 SOL + wrapped 2.0 at bootstrap
	assert.InDelta(t, 3.0, pts[0].Value, 1e-12)
}

func TestRange_WindowCutsOlderPoints(t *testing.T) {
	svc, _ := newTestService(t, 30)

	// One point per minute, so a 5M window keeps the cutoff point plus five.
	pts, err := svc.Range("Addr1", AssetTotal, "5M")
	require.NoError(t, err)
	assert.Len(t, pts, 6)

	all, err := svc.Range("Addr1", AssetTotal, "1D")
	require.NoError(t, err)
	assert.Len(t, all, 30)
}

func TestRange_AssetSelection(t *testing.T) {
	svc, _ := newTestService(t, 2)

	native, err := svc.Range("Addr1", AssetNative, IntervalAll)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, native[0].Value, 1e-12)

	wrapped, err := svc.Range("Addr1", AssetWrapped, IntervalAll)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, wrapped[0].Value, 1e-12)

	// Anything else falls back to total.
	total, err := svc.Range("Addr1", "bogus", IntervalAll)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, total[0].Value, 1e-12)
}

func TestRange_Errors(t *testing.T) {
	svc, _ := newTestService(t, 2)

	_, err := svc.Range("AddrX", AssetTotal, IntervalAll)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Range("Addr1", AssetTotal, "3Y")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRange_SameSecondKeepsFirst(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	a := ledger.NewAccount("Addr1", "trader", 100)
	a.CompleteBootstrap(0, 1.0, base)
	// Two more updates inside the same second as the bootstrap point.
	a.Apply(ledger.Update{WrappedDelta: 1, HasWrappedDelta: true, At: base.Add(200 * time.Millisecond)})
	a.Apply(ledger.Update{WrappedDelta: 1, HasWrappedDelta: true, At: base.Add(900 * time.Millisecond)})
	a.Apply(ledger.Update{WrappedDelta: 1, HasWrappedDelta: true, At: base.Add(2 * time.Second)})

	svc := NewService(ledger.NewRegistry([]*ledger.Account{a}))
	pts, err := svc.Range("Addr1", AssetWrapped, IntervalAll)
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.InDelta(t, 1.0, pts[0].Value, 1e-12) // first point of the second wins
	assert.InDelta(t, 4.0, pts[1].Value, 1e-12)
}

func TestRange_SkipsNonFiniteValues(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	a := ledger.NewAccount("Addr1", "trader", 100)
	a.CompleteBootstrap(0, 1.0, base)
	a.Apply(ledger.Update{WrappedDelta: math.Inf(1), HasWrappedDelta: true, At: base.Add(time.Second)})

	svc := NewService(ledger.NewRegistry([]*ledger.Account{a}))
	pts, err := svc.Range("Addr1", AssetWrapped, IntervalAll)
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.InDelta(t, 1.0, pts[0].Value, 1e-12)
}

func TestIntervals(t *testing.T) {
	assert.Contains(t, Intervals(), "1W")
	assert.Contains(t, Intervals(), IntervalAll)
}
