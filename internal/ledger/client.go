// Package ledger talks to the settlement ledger: account state reads and raw
// transaction submission, plus the admin nonce coordination built on top.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrSubmitRejected    = errors.New("ledger rejected submission")
)

const defaultRequestTimeout = 10 * time.Second

// Account is the ledger's view of a public key.
type Account struct {
	Nonce   uint64 `json:"nonce"`
	Balance uint64 `json:"balance"`
}

// Client is a thin HTTP client for the ledger node. The wire format is
// owned by the ledger; we treat responses as opaque beyond the fields here.
type Client struct {
	base    string
	httpc   *http.Client
	timeout time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// AccountNonce fetches the current on-ledger nonce for a public key.
func (c *Client) AccountNonce(ctx context.Context, publicKeyHex string) (uint64, error) {
	acct, err := c.Account(ctx, publicKeyHex)
	if err != nil {
		return 0, err
	}
	return acct.Nonce, nil
}

func (c *Client) Account(ctx context.Context, publicKeyHex string) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/account/"+publicKeyHex, nil)
	if err != nil {
		return Account{}, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Account{}, fmt.Errorf("%w: account status %d", ErrLedgerUnavailable, resp.StatusCode)
	}
	var acct Account
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&acct); err != nil {
		return Account{}, fmt.Errorf("%w: decode account: %v", ErrLedgerUnavailable, err)
	}
	return acct, nil
}

// Submit posts a signed transaction as an opaque byte blob.
func (c *Client) Submit(ctx context.Context, raw []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/submit", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: submit status %d", ErrLedgerUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", ErrSubmitRejected, resp.StatusCode)
	}
}
