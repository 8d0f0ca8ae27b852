package upstream

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

	"github.com/batchkit/batchkit/pkg/common"
	"github.com/smartcontractkit/chainlink-common/pkg/logger"
)

const (
	userAgent       = "batchkit-batchproxy/1.0"
	jsonContentType = "application/json"
)

// ClientConfig configures the upstream JSON-RPC batch client.
type ClientConfig struct {
	URL            string        // Endpoint accepting JSON-RPC 2.0 batch arrays
	RequestTimeout time.Duration // Timeout for HTTP requests (default: 10s)
	HTTPClient     *http.Client  // Custom HTTP client (optional)
	Logger         logger.Logger // Logger instance (required)
}

// Client posts batches of JSON-RPC requests to a single upstream endpoint
// and maps the responses back to positional per-request outcomes.
//
// JSON-RPC servers may answer a batch in any order, so requests are
// re-keyed with wire-level ids before sending and matched back by id. A
// response the server never produced is a per-request failure; transport
// and decode failures fail the whole batch.
type Client struct {
	url        string
	httpClient *http.Client
	lggr       logger.Logger
	nextID     atomic.Uint64
}

// NewClient creates an upstream batch client. The URL and logger are required.
func NewClient(config ClientConfig) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("upstream URL is required")
	}

	if config.Logger == nil {
		return nil, errors.New("logger is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.RequestTimeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		url:        config.URL,
		httpClient: httpClient,
		lggr:       logger.Named(config.Logger, "UpstreamClient"),
	}, nil
}

// Call posts reqs as one JSON-RPC batch and returns one outcome per
// request, positionally aligned with reqs. The returned error is a
// whole-batch failure; per-request failures (error members, missing
// responses) are carried inside the outcome slice.
func (c *Client) Call(ctx context.Context, reqs []Request) ([]common.Result[Response], error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	// Re-key with wire ids so caller-supplied ids can collide freely
	// across independent callers.
	wire := make([]Request, len(reqs))
	byWireID := make(map[uint64]int, len(reqs))
	for i, req := range reqs {
		wire[i] = req
		wire[i].ID = c.nextID.Add(1)
		if wire[i].JSONRPC == "" {
			wire[i].JSONRPC = "2.0"
		}
		byWireID[wire[i].ID] = i
	}

	responses, err := c.post(ctx, wire)
	if err != nil {
		return nil, err
	}

	results := make([]common.Result[Response], len(reqs))
	matched := make([]bool, len(reqs))
	for _, resp := range responses {
		i, ok := byWireID[resp.ID]
		if !ok {
			c.lggr.Warnw("Upstream returned a response for an unknown id", "id", resp.ID)
			continue
		}
		if matched[i] {
			c.lggr.Warnw("Upstream returned a duplicate response, keeping the first", "id", resp.ID)
			continue
		}
		matched[i] = true

		// Restore the caller's id before handing the response back.
		resp.ID = reqs[i].ID
		if resp.Error != nil {
			results[i] = common.Err[Response](resp.Error)
			continue
		}
		results[i] = common.Ok(resp)
	}

	for i := range reqs {
		if !matched[i] {
			results[i] = common.Err[Response](fmt.Errorf("upstream returned no response for method %q", reqs[i].Method))
		}
	}

	return results, nil
}

// Handler adapts the client to the engine's batch handler contract.
func (c *Client) Handler() common.Handler[Request, Response] {
	return c.Call
}

func (c *Client) post(ctx context.Context, batch []Request) ([]Response, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build batch request: %w", err)
	}
	req.Header.Set("Content-Type", jsonContentType)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to post batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch response: %w", err)
	}

	var responses []Response
	if err := json.Unmarshal(data, &responses); err != nil {
		// A server rejecting the whole batch answers with a single
		// error object instead of an array.
		var single Response
		if err2 := json.Unmarshal(data, &single); err2 == nil && single.Error != nil {
			return nil, fmt.Errorf("upstream rejected batch: %w", single.Error)
		}
		return nil, fmt.Errorf("failed to decode batch response: %w", err)
	}

	return responses, nil
}
