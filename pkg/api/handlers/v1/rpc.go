package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/batchkit/batchkit/pkg/engine"
	"github.com/batchkit/batchkit/pkg/upstream"
	"github.com/smartcontractkit/chainlink-common/pkg/logger"
)

// RPCHandler accepts one JSON-RPC request per HTTP call and submits it to
// the batching engine. The HTTP response is held open until the request's
// batch has been dispatched and its own outcome delivered, so independent
// callers hitting this endpoint within one debounce window share a single
// upstream batch call.
type RPCHandler struct {
	engine *engine.Engine[upstream.Request, upstream.Response]
	lggr   logger.Logger
}

func NewRPCHandler(eng *engine.Engine[upstream.Request, upstream.Response], lggr logger.Logger) *RPCHandler {
	return &RPCHandler{
		engine: eng,
		lggr:   logger.Named(lggr, "RPCHandler"),
	}
}

func (h *RPCHandler) Handle(c *gin.Context) {
	var req upstream.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, upstream.Response{
			JSONRPC: "2.0",
			Error:   &upstream.RPCError{Code: -32700, Message: "parse error"},
		})
		return
	}

	if req.Method == "" {
		c.JSON(http.StatusBadRequest, upstream.Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &upstream.RPCError{Code: -32600, Message: "invalid request: method is required"},
		})
		return
	}

	select {
	case result := <-h.engine.Submit(req):
		if err := result.Err(); err != nil {
			h.lggr.Debugw("Request rejected", "method", req.Method, "error", err)
			c.JSON(http.StatusOK, errorResponse(req, err))
			return
		}
		c.JSON(http.StatusOK, result.Value())
	case <-c.Request.Context().Done():
		// The caller went away; its entry stays in the batch, delivery
		// is simply suppressed.
		c.Status(http.StatusRequestTimeout)
	}
}

// errorResponse maps a completion rejection to a JSON-RPC error response,
// passing upstream error objects through unchanged.
func errorResponse(req upstream.Request, err error) upstream.Response {
	var rpcErr *upstream.RPCError
	if !errors.As(err, &rpcErr) {
		rpcErr = &upstream.RPCError{Code: -32603, Message: err.Error()}
	}

	return upstream.Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error:   rpcErr,
	}
}
