package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-watch/internal/domain"
	"solana-wallet-watch/internal/fanout"
	"solana-wallet-watch/internal/history"
	"solana-wallet-watch/internal/ledger"
)

func newTestServer(t *testing.T) (*httptest.Server, *ledger.Account) {
	t.Helper()

	a := ledger.NewAccount("Addr1", "alpha", 100)
	a.CompleteBootstrap(2_000_000_000, 1.5, time.Unix(1_700_000_000, 0).UTC())
	reg := ledger.NewRegistry([]*ledger.Account{a})

	s := New(Options{
		Registry:    reg,
		Query:       history.NewService(reg),
		Broadcaster: fanout.NewBroadcaster(fanout.Options{Registry: reg}),
	})
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts, a
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func TestWalletsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var sums []domain.AccountSummary
	code := getJSON(t, ts.URL+"/api/wallets", &sums)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, sums, 1)
	assert.Equal(t, "Addr1", sums[0].Address)
	assert.InDelta(t, 3.5, sums[0].TotalBalance, 1e-12)
}

func TestWalletEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var sum domain.AccountSummary
	code := getJSON(t, ts.URL+"/api/wallets/Addr1", &sum)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alpha", sum.Name)
	assert.True(t, sum.WrappedInitialized)

	var errBody map[string]string
	code = getJSON(t, ts.URL+"/api/wallets/Nope", &errBody)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, errBody, "error")
}

func TestChartEndpoint(t *testing.T) {
	ts, acct := newTestServer(t)
	acct.Apply(ledger.Update{
		WrappedDelta:    0.5,
		HasWrappedDelta: true,
		At:              time.Unix(1_700_000_060, 0).UTC(),
	})

	var pts []history.Point
	code := getJSON(t, ts.URL+"/api/chart?wallet=Addr1&data_type=wrapped&interval=ALL", &pts)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, pts, 2)
	assert.InDelta(t, 1.5, pts[0].Value, 1e-12)
	assert.InDelta(t, 2.0, pts[1].Value, 1e-12)
}

func TestChartEndpointErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	var errBody map[string]string
	code := getJSON(t, ts.URL+"/api/chart", &errBody)
	assert.Equal(t, http.StatusBadRequest, code)

	code = getJSON(t, ts.URL+"/api/chart?wallet=Nope", &errBody)
	assert.Equal(t, http.StatusNotFound, code)

	code = getJSON(t, ts.URL+"/api/chart?wallet=Addr1&interval=3Y", &errBody)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketPush(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// First frame is the full snapshot.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var batch fanout.BatchUpdate
	require.NoError(t, json.Unmarshal(raw, &batch))
	assert.Equal(t, "batch_update", batch.Type)
	require.Len(t, batch.Updates, 1)
	assert.Equal(t, "Addr1", batch.Updates[0].Wallet.Address)
}
