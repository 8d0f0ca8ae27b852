package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchkit/batchkit/pkg/common"
	"github.com/batchkit/batchkit/pkg/engine"
	"github.com/batchkit/batchkit/pkg/upstream"
	"github.com/smartcontractkit/chainlink-common/pkg/logger"
)

// newTestRouter backs the RPC endpoint with an engine that flushes every
// submission immediately into the given handler.
func newTestRouter(t *testing.T, handler common.Handler[upstream.Request, upstream.Response]) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	lggr := logger.Test(t)

	eng, err := engine.New(lggr, engine.Config{BatchInterval: time.Millisecond, BatchMax: 1}, handler)
	require.NoError(t, err)
	eng.Start(context.Background())
	t.Cleanup(func() { _ = eng.Close() })

	router := gin.New()
	router.POST("/v1/rpc", NewRPCHandler(eng, lggr).Handle)
	return router
}

func postRPC(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/rpc", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func echoHandler(ctx context.Context, reqs []upstream.Request) ([]common.Result[upstream.Response], error) {
	results := make([]common.Result[upstream.Response], len(reqs))
	for i, req := range reqs {
		result, _ := json.Marshal(req.Method)
		results[i] = common.Ok(upstream.Response{JSONRPC: "2.0", ID: req.ID, Result: result})
	}
	return results, nil
}

func TestRPCHandler_ReturnsUpstreamResult(t *testing.T) {
	router := newTestRouter(t, echoHandler)

	w := postRPC(t, router, `{"jsonrpc":"2.0","id":42,"method":"eth_blockNumber"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp upstream.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(42), resp.ID)
	assert.JSONEq(t, `"eth_blockNumber"`, string(resp.Result))
	assert.Nil(t, resp.Error)
}

func TestRPCHandler_ParseErrorIs400(t *testing.T) {
	router := newTestRouter(t, echoHandler)

	w := postRPC(t, router, `{not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp upstream.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)
}

func TestRPCHandler_MissingMethodIs400(t *testing.T) {
	router := newTestRouter(t, echoHandler)

	w := postRPC(t, router, `{"jsonrpc":"2.0","id":1}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp upstream.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32600, resp.Error.Code)
}

func TestRPCHandler_UpstreamErrorObjectPassesThrough(t *testing.T) {
	router := newTestRouter(t, func(ctx context.Context, reqs []upstream.Request) ([]common.Result[upstream.Response], error) {
		results := make([]common.Result[upstream.Response], len(reqs))
		for i := range reqs {
			results[i] = common.Err[upstream.Response](&upstream.RPCError{Code: -32601, Message: "method not found"})
		}
		return results, nil
	})

	w := postRPC(t, router, `{"jsonrpc":"2.0","id":3,"method":"eth_doesNotExist"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp upstream.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(3), resp.ID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
	assert.Equal(t, "method not found", resp.Error.Message)
}

func TestRPCHandler_HandlerFailureMapsToInternalError(t *testing.T) {
	router := newTestRouter(t, func(ctx context.Context, reqs []upstream.Request) ([]common.Result[upstream.Response], error) {
		return nil, assert.AnError
	})

	w := postRPC(t, router, `{"jsonrpc":"2.0","id":5,"method":"eth_blockNumber"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp upstream.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32603, resp.Error.Code)
}

func TestRPCHandler_CallersInOneWindowShareOneBatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	lggr := logger.Test(t)

	batchSizes := make(chan int, 4)
	handler := func(ctx context.Context, reqs []upstream.Request) ([]common.Result[upstream.Response], error) {
		batchSizes <- len(reqs)
		return echoHandler(ctx, reqs)
	}

	// A long window with a size trigger of 3 makes the flush happen
	// exactly when the third caller has submitted.
	eng, err := engine.New(lggr, engine.Config{BatchInterval: time.Hour, BatchMax: 3}, handler)
	require.NoError(t, err)
	eng.Start(context.Background())
	t.Cleanup(func() { _ = eng.Close() })

	router := gin.New()
	router.POST("/v1/rpc", NewRPCHandler(eng, lggr).Handle)

	done := make(chan *httptest.ResponseRecorder, 3)
	for i := 0; i < 3; i++ {
		go func() {
			done <- postRPC(t, router, `{"jsonrpc":"2.0","id":1,"method":"eth_blockNumber"}`)
		}()
	}

	for i := 0; i < 3; i++ {
		select {
		case w := <-done:
			assert.Equal(t, http.StatusOK, w.Code)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for HTTP responses")
		}
	}

	select {
	case size := <-batchSizes:
		assert.Equal(t, 3, size)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the batch dispatch")
	}
}
