package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		URL:    url,
		Logger: logger.Test(t),
	})
	require.NoError(t, err)
	return client
}

func decodeBatch(t *testing.T, r *http.Request) []Request {
	t.Helper()
	var batch []Request
	require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
	return batch
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(ClientConfig{Logger: logger.Test(t)})
	require.Error(t, err)

	_, err = NewClient(ClientConfig{URL: "http://localhost:8545"})
	require.Error(t, err)
}

func TestClient_MatchesUnorderedResponsesByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		batch := decodeBatch(t, r)
		require.Len(t, batch, 3)

		// Answer in reverse order; the client must still route each
		// response to the request that produced it.
		responses := make([]Response, 0, len(batch))
		for i := len(batch) - 1; i >= 0; i-- {
			result, _ := json.Marshal(batch[i].Method)
			responses = append(responses, Response{JSONRPC: "2.0", ID: batch[i].ID, Result: result})
		}
		require.NoError(t, json.NewEncoder(w).Encode(responses))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	reqs := []Request{
		{ID: 7, Method: "eth_blockNumber"},
		{ID: 7, Method: "eth_chainId"}, // caller ids may collide across callers
		{ID: 9, Method: "eth_gasPrice"},
	}

	results, err := client.Call(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, req := range reqs {
		require.NoError(t, results[i].Err())
		assert.JSONEq(t, `"`+req.Method+`"`, string(results[i].Value().Result))
		// The wire-level id is internal; callers see their own id back.
		assert.Equal(t, req.ID, results[i].Value().ID)
	}
}

func TestClient_ErrorMemberIsPerRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		batch := decodeBatch(t, r)
		responses := []Response{
			{JSONRPC: "2.0", ID: batch[0].ID, Result: json.RawMessage(`"ok"`)},
			{JSONRPC: "2.0", ID: batch[1].ID, Error: &RPCError{Code: -32601, Message: "method not found"}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(responses))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	results, err := client.Call(context.Background(), []Request{
		{Method: "eth_blockNumber"},
		{Method: "eth_doesNotExist"},
	})
	require.NoError(t, err)

	require.NoError(t, results[0].Err())

	var rpcErr *RPCError
	require.ErrorAs(t, results[1].Err(), &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestClient_MissingResponseIsPerRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		batch := decodeBatch(t, r)
		// Only answer the first request.
		responses := []Response{
			{JSONRPC: "2.0", ID: batch[0].ID, Result: json.RawMessage(`"ok"`)},
		}
		require.NoError(t, json.NewEncoder(w).Encode(responses))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	results, err := client.Call(context.Background(), []Request{
		{Method: "eth_blockNumber"},
		{Method: "eth_gasPrice"},
	})
	require.NoError(t, err)

	require.NoError(t, results[0].Err())
	require.Error(t, results[1].Err())
	assert.Contains(t, results[1].Err().Error(), "eth_gasPrice")
}

func TestClient_HTTPErrorFailsWholeBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	results, err := client.Call(context.Background(), []Request{{Method: "eth_blockNumber"}})
	require.Error(t, err)
	assert.Nil(t, results)
}

func TestClient_BatchRejectionObjectFailsWholeBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Some servers reject an oversized batch with a single error
		// object instead of an array.
		resp := Response{JSONRPC: "2.0", Error: &RPCError{Code: -32600, Message: "batch too large"}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Call(context.Background(), []Request{{Method: "eth_blockNumber"}})
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32600, rpcErr.Code)
}

func TestClient_EmptyBatchIsNoop(t *testing.T) {
	client := newTestClient(t, "http://localhost:0")
	results, err := client.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Call(ctx, []Request{{Method: "eth_blockNumber"}})
	require.ErrorIs(t, err, context.Canceled)
}
