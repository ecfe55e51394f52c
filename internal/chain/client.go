package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Transaction terminal states as reported by the ledger node.
const (
	TxStatusPending = "pending"
	TxStatusSuccess = "success"
	TxStatusFailed  = "failed"
)

var (
	// ErrChainUnavailable wraps transport-level failures. Callers may retry;
	// the core never assumes a submitted-but-unconfirmed operation succeeded.
	ErrChainUnavailable = errors.New("Ledger node unavailable")
	ErrTxFailed         = errors.New("Ledger transaction failed")
)

// CircleState is the committed on-chain view of a circle: only status and
// round, never membership or commitments (those stay locally authoritative).
type CircleState struct {
	CircleID     string `json:"circle_id"`
	Status       string `json:"status"`
	CurrentRound int    `json:"current_round"`
}

// Operation is a signed state-changing call to broadcast.
type Operation struct {
	Kind     string                 `json:"kind"`
	CircleID string                 `json:"circle_id"`
	Sender   string                 `json:"sender"`
	Nonce    uint64                 `json:"nonce"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

// Client reads committed ledger facts and broadcasts operations. Calls may be
// slow, fail, or be retried; every method honors the caller's context.
type Client interface {
	CircleState(ctx context.Context, circleID string) (*CircleState, error)
	Submit(ctx context.Context, op Operation) (txID string, err error)
	TxStatus(ctx context.Context, txID string) (string, error)
}

// HTTPClient talks JSON to a ledger RPC node.
type HTTPClient struct {
	BaseURL string
	Client  *http.Client
}

func (c *HTTPClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c *HTTPClient) CircleState(ctx context.Context, circleID string) (*CircleState, error) {
	var state CircleState
	if err := c.getJSON(ctx, fmt.Sprintf("%s/v1/circles/%s", c.BaseURL, circleID), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *HTTPClient) Submit(ctx context.Context, op Operation) (string, error) {
	bs, err := json.Marshal(op)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/txs", bytes.NewReader(bs))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: status %d", ErrChainUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: status %d", ErrTxFailed, resp.StatusCode)
	}

	var out struct {
		TxID string `json:"tx_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	return out.TxID, nil
}

func (c *HTTPClient) TxStatus(ctx context.Context, txID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/v1/txs/%s", c.BaseURL, txID), &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrChainUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	return nil
}

// WaitForTx polls a transaction until it reaches a terminal status or the
// context ends. No ledger state is held while waiting; cancellation leaves no
// partial side effect.
func WaitForTx(ctx context.Context, client Client, txID string, interval time.Duration) (string, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := client.TxStatus(ctx, txID)
		if err == nil && status != TxStatusPending {
			return status, nil
		}
		if err != nil && !errors.Is(err, ErrChainUnavailable) {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
