package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"solana-wallet-watch/internal/observability"
)

// WSClientConfig configures WebSocket stream behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// TransactionNotification is one confirmed transaction touching a watched
// account, as delivered by transactionSubscribe.
type TransactionNotification struct {
	Signature   string
	Slot        int64
	AccountKeys []string
	Meta        *TransactionMeta
}

// TransactionMeta carries the balance-relevant parts of transaction meta.
type TransactionMeta struct {
	Err               interface{}
	PostBalances      []uint64
	PreTokenBalances  []TokenBalanceInfo
	PostTokenBalances []TokenBalanceInfo
}

// TokenBalanceInfo is one SPL token account balance inside transaction meta.
type TokenBalanceInfo struct {
	AccountIndex  int
	Mint          string
	Owner         string
	UIAmount      float64
	UIAmountIsSet bool
}

// StreamClient maintains a single transactionSubscribe subscription over a
// WebSocket connection, reconnecting and resubscribing on failure.
type StreamClient struct {
	endpoint string
	accounts []string
	config   WSClientConfig
	logger   *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subID is the active subscription; zero means none.
	subID atomic.Int64

	// pendingSubs maps request ID to channel waiting for subscription ID.
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	notifications chan TransactionNotification

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewStreamClient connects to the endpoint and subscribes to transactions
// touching any of the given accounts.
func NewStreamClient(ctx context.Context, endpoint string, accounts []string, config *WSClientConfig, logger *log.Logger) (*StreamClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts to subscribe")
	}

	c := &StreamClient{
		endpoint:    endpoint,
		accounts:    accounts,
		config:      cfg,
		logger:      logger,
		pendingSubs: make(map[uint64]chan int64),
		// Blocking send downstream; the buffer absorbs bursts.
		notifications: make(chan TransactionNotification, 10000),
		done:          make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	if err := c.subscribe(ctx); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// Notifications returns the stream of decoded transaction notifications.
// The channel is closed on Close.
func (c *StreamClient) Notifications() <-chan TransactionNotification {
	return c.notifications
}

// connect establishes the WebSocket connection.
func (c *StreamClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// subscribe issues the transactionSubscribe request and waits for the
// subscription ID.
func (c *StreamClient) subscribe(ctx context.Context) error {
	if c.closed.Load() {
		return fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "transactionSubscribe",
		Params: []interface{}{
			map[string]interface{}{
				"accountInclude": c.accounts,
				"failed":         false,
			},
			map[string]interface{}{
				"commitment":                     "confirmed",
				"encoding":                       "jsonParsed",
				"transactionDetails":             "full",
				"maxSupportedTransactionVersion": 0,
			},
		},
	}

	confirmCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingSubsMu.Unlock()

	removePending := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		removePending()
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		removePending()
		return fmt.Errorf("write subscribe: %w", err)
	}

	// 30s confirmation timeout for slow providers.
	select {
	case subID := <-confirmCh:
		c.subID.Store(subID)
		c.logger.Printf("stream subscribed: id=%d accounts=%d", subID, len(c.accounts))
		return nil
	case <-time.After(30 * time.Second):
		removePending()
		return fmt.Errorf("subscription timeout after 30s")
	case <-c.done:
		return fmt.Errorf("client closed")
	case <-ctx.Done():
		removePending()
		return ctx.Err()
	}
}

// Close closes the WebSocket connection and the notification channel.
func (c *StreamClient) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, ch := range c.pendingSubs {
		close(ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.wg.Wait()
	close(c.notifications)
	return nil
}

// readLoop reads messages and triggers reconnects on failure.
func (c *StreamClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			// Exponential backoff for the next attempt.
			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect re-establishes the connection and the subscription.
func (c *StreamClient) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	observability.RecordStreamReconnect()
	c.logger.Printf("stream reconnecting in %s", delay)

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
	c.subID.Store(0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Will retry on next read error
		c.logger.Printf("stream reconnect failed: %v", err)
		return
	}

	if err := c.subscribe(ctx); err != nil {
		c.logger.Printf("stream resubscribe failed: %v", err)
	}
}

// handleMessage processes one incoming WebSocket message.
func (c *StreamClient) handleMessage(message []byte) {
	observability.RecordStreamMessage()

	// Subscription confirmation first.
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		c.handleSubscribeResponse(&resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "transactionNotification" {
		c.handleTransactionNotification(&notif)
		return
	}

	var errResp struct {
		JSONRPC string `json:"jsonrpc"`
		ID      uint64 `json:"id"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		// Logged only; a pending subscription will time out on its own.
		c.logger.Printf("stream error response: code=%d msg=%s", errResp.Error.Code, errResp.Error.Message)
	}
}

// handleSubscribeResponse completes a pending subscribe call.
func (c *StreamClient) handleSubscribeResponse(resp *wsSubscribeResponse) {
	c.pendingSubsMu.Lock()
	ch, ok := c.pendingSubs[resp.ID]
	if ok {
		delete(c.pendingSubs, resp.ID)
	}
	c.pendingSubsMu.Unlock()

	if ok {
		select {
		case ch <- resp.Result:
		default:
		}
	}
}

// handleTransactionNotification decodes the payload and forwards it.
func (c *StreamClient) handleTransactionNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}
	if sub := c.subID.Load(); sub != 0 && notif.Params.Subscription != sub {
		return
	}

	result := notif.Params.Result

	out := TransactionNotification{
		Signature: result.Signature,
		Slot:      result.Slot,
	}
	if result.Transaction != nil {
		if msg := result.Transaction.Transaction.Message; msg != nil {
			out.AccountKeys = make([]string, 0, len(msg.AccountKeys))
			for _, k := range msg.AccountKeys {
				out.AccountKeys = append(out.AccountKeys, k.Pubkey)
			}
		}
		if meta := result.Transaction.Meta; meta != nil {
			out.Meta = &TransactionMeta{
				Err:               meta.Err,
				PostBalances:      meta.PostBalances,
				PreTokenBalances:  decodeTokenBalances(meta.PreTokenBalances),
				PostTokenBalances: decodeTokenBalances(meta.PostTokenBalances),
			}
		}
	}

	// Block until delivered: losing a delta silently corrupts the running
	// wrapped balance downstream.
	select {
	case c.notifications <- out:
	case <-c.done:
	}
}

func decodeTokenBalances(in []wsTokenBalance) []TokenBalanceInfo {
	if in == nil {
		return nil
	}
	out := make([]TokenBalanceInfo, 0, len(in))
	for _, b := range in {
		info := TokenBalanceInfo{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Owner:        b.Owner,
		}
		if b.UITokenAmount.UIAmount != nil {
			info.UIAmount = *b.UITokenAmount.UIAmount
			info.UIAmountIsSet = true
		}
		out = append(out, info)
	}
	return out
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *StreamClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Signature   string         `json:"signature"`
	Slot        int64          `json:"slot"`
	Transaction *wsTransaction `json:"transaction"`
}

type wsTransaction struct {
	Transaction wsTransactionBody `json:"transaction"`
	Meta        *wsMeta           `json:"meta"`
}

type wsTransactionBody struct {
	Message *wsMessage `json:"message"`
}

type wsMessage struct {
	AccountKeys []wsAccountKey `json:"accountKeys"`
}

// wsAccountKey is one entry of jsonParsed accountKeys.
type wsAccountKey struct {
	Pubkey string `json:"pubkey"`
}

type wsMeta struct {
	Err               interface{}      `json:"err"`
	PostBalances      []uint64         `json:"postBalances"`
	PreTokenBalances  []wsTokenBalance `json:"preTokenBalances"`
	PostTokenBalances []wsTokenBalance `json:"postTokenBalances"`
}

type wsTokenBalance struct {
	AccountIndex  int             `json:"accountIndex"`
	Mint          string          `json:"mint"`
	Owner         string          `json:"owner"`
	UITokenAmount wsUITokenAmount `json:"uiTokenAmount"`
}

type wsUITokenAmount struct {
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
	Decimals       int      `json:"decimals"`
}
