// Package chain is the program client layer for a slot-clocked account ledger
// reached over Solana-compatible JSON-RPC.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/R3E-Network/ledger_client/internal/metrics"
	"github.com/R3E-Network/ledger_client/pkg/logger"
)

// maxResponseSize caps JSON-RPC response bodies.
const maxResponseSize = 8 << 20

// Client is a JSON-RPC client for a ledger node.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
	nextID     atomic.Uint64
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
	// RateLimit is requests per second; zero disables limiting.
	RateLimit  float64
	RateBurst  int
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// NewClient creates a new ledger RPC client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("chain.rpc")
	}

	c := &Client{
		rpcURL:     cfg.RPCURL,
		httpClient: httpClient,
		log:        log,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// Call makes a JSON-RPC call. Network and decoding failures are returned as
// *TransportError; error objects from the node are returned as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	start := time.Now()
	result, err := c.call(ctx, method, params)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
		var te *TransportError
		if errors.As(err, &te) {
			outcome = metrics.OutcomeTransport
		}
		c.log.WithError(err).WithField("method", method).Debug("rpc call failed")
	}
	metrics.RecordRPC(method, outcome, time.Since(start))
	return result, err
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Method: method, Err: fmt.Errorf("rate limit: %w", err)}
		}
	}
	if params == nil {
		params = []interface{}{}
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	body, err := json.Marshal(RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  rawParams,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Method: method, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Method: method, Err: fmt.Errorf("read response: %w", err)}
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &TransportError{Method: method, Err: fmt.Errorf("http status %d", resp.StatusCode)}
		}
		return nil, &TransportError{Method: method, Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func (c *Client) callInto(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	result, err := c.Call(ctx, method, params...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(result, out); err != nil {
		return &TransportError{Method: method, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}
