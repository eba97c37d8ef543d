package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func rpcServer(t *testing.T, method string, result interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		if req.Method != method {
			t.Errorf("expected method %s, got %s", method, req.Method)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_GetBalance(t *testing.T) {
	server := rpcServer(t, "getBalance", map[string]interface{}{
		"context": map[string]interface{}{"slot": int64(123456)},
		"value":   uint64(5_000_000_000),
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx := context.Background()

	balance, err := client.GetBalance(ctx, "SomeWalletAddress")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}

	if balance != 5_000_000_000 {
		t.Errorf("expected 5000000000 lamports, got %d", balance)
	}
}

func TestHTTPClient_GetTokenAccountBalance(t *testing.T) {
	ui := 12.345678
	server := rpcServer(t, "getTokenAccountBalance", map[string]interface{}{
		"context": map[string]interface{}{"slot": int64(123456)},
		"value": map[string]interface{}{
			"amount":         "12345678000",
			"decimals":       9,
			"uiAmount":       ui,
			"uiAmountString": "12.345678",
		},
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx := context.Background()

	amount, exists, err := client.GetTokenAccountBalance(ctx, "SomeTokenAccount")
	if err != nil {
		t.Fatalf("GetTokenAccountBalance: %v", err)
	}

	if !exists {
		t.Fatal("expected exists=true")
	}

	if amount != ui {
		t.Errorf("expected amount %v, got %v", ui, amount)
	}
}

func TestHTTPClient_GetTokenAccountBalance_NullUIAmount(t *testing.T) {
	server := rpcServer(t, "getTokenAccountBalance", map[string]interface{}{
		"context": map[string]interface{}{"slot": int64(123456)},
		"value": map[string]interface{}{
			"amount":         "0",
			"decimals":       9,
			"uiAmount":       nil,
			"uiAmountString": "0",
		},
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx := context.Background()

	amount, exists, err := client.GetTokenAccountBalance(ctx, "SomeTokenAccount")
	if err != nil {
		t.Fatalf("GetTokenAccountBalance: %v", err)
	}

	if !exists {
		t.Fatal("expected exists=true")
	}

	if amount != 0 {
		t.Errorf("expected amount 0, got %v", amount)
	}
}

func TestHTTPClient_GetTokenAccountBalance_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]interface{}{
				"code":    -32602,
				"message": "Invalid param: could not find account",
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx := context.Background()

	amount, exists, err := client.GetTokenAccountBalance(ctx, "MissingTokenAccount")
	if err != nil {
		t.Fatalf("expected no error for missing account, got %v", err)
	}

	if exists {
		t.Error("expected exists=false for missing account")
	}

	if amount != 0 {
		t.Errorf("expected amount 0, got %v", amount)
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  int64(999),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
	)
	ctx := context.Background()

	slot, err := client.GetSlot(ctx)
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}

	if slot != 999 {
		t.Errorf("expected slot 999, got %d", slot)
	}

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]interface{}{
				"code":    -32600,
				"message": "Invalid Request",
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx := context.Background()

	_, err := client.GetBalance(ctx, "SomeWalletAddress")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithTimeout(10*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetBalance(ctx, "SomeWalletAddress")
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
