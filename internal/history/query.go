// Package history serves windowed chart series from the in-memory ledger.
package history

import (
	"errors"
	"math"
	"time"

	"solana-wallet-watch/internal/ledger"
)

var (
	// ErrNotFound indicates the requested account is not tracked.
	ErrNotFound = errors.New("account not found")

	// ErrInvalidArgument indicates an unrecognized query parameter value.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Asset selects which balance component a series is built from.
const (
	AssetNative  = "native"
	AssetWrapped = "wrapped"
	AssetTotal   = "total"
)

// IntervalAll selects the whole retained history.
const IntervalAll = "ALL"

// windows maps interval tags to their lookback duration. IntervalAll is
// handled separately.
var windows = map[string]time.Duration{
	"5M":  5 * time.Minute,
	"10M": 10 * time.Minute,
	"30M": 30 * time.Minute,
	"1H":  time.Hour,
	"2H":  2 * time.Hour,
	"4H":  4 * time.Hour,
	"8H":  8 * time.Hour,
	"12H": 12 * time.Hour,
	"1D":  24 * time.Hour,
	"1W":  7 * 24 * time.Hour,
}

// Intervals lists the supported interval tags in ascending window order.
func Intervals() []string {
	return []string{"5M", "10M", "30M", "1H", "2H", "4H", "8H", "12H", "1D", "1W", IntervalAll}
}

// Point is one chart sample: unix seconds and the selected balance in SOL.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// Service answers chart queries over the registry's retained history.
type Service struct {
	registry *ledger.Registry
	now      func() time.Time
}

// NewService creates a query service over the given registry.
func NewService(registry *ledger.Registry) *Service {
	return &Service{registry: registry, now: time.Now}
}

// Range returns the chart series for one account. asset picks the balance
// component (an empty or unrecognized value falls back to total, matching
// the chart frontend's lenient contract); interval must be a known tag or
// IntervalAll. Points are emitted oldest first; non-finite values are
// skipped, and when several points share the same second only the first
// survives.
func (s *Service) Range(address, asset, interval string) ([]Point, error) {
	acct, ok := s.registry.Get(address)
	if !ok {
		return nil, ErrNotFound
	}

	var pts []ledger.HistoryPoint
	if interval == "" || interval == IntervalAll {
		pts = acct.History()
	} else {
		window, ok := windows[interval]
		if !ok {
			return nil, ErrInvalidArgument
		}
		pts = acct.HistorySince(s.now().Add(-window))
	}

	series := make([]Point, 0, len(pts))
	var lastSec int64 = math.MinInt64
	for _, p := range pts {
		v := selectValue(p, asset)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sec := p.Timestamp.Unix()
		if sec == lastSec {
			continue
		}
		lastSec = sec
		series = append(series, Point{Time: sec, Value: v})
	}
	return series, nil
}

func selectValue(p ledger.HistoryPoint, asset string) float64 {
	switch asset {
	case AssetNative:
		return p.Native
	case AssetWrapped:
		return p.Wrapped
	default:
		return p.Total()
	}
}
