package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/batchkit/batchkit/pkg/api/middleware"
	"github.com/batchkit/batchkit/pkg/common"
	"github.com/batchkit/batchkit/pkg/engine"
	"github.com/batchkit/batchkit/pkg/upstream"
	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	v1 "github.com/batchkit/batchkit/pkg/api/handlers/v1"
)

// NewV1API builds the gin router fronting the batching engine: a single
// JSON-RPC submission endpoint plus liveness probes.
func NewV1API(lggr logger.Logger, eng *engine.Engine[upstream.Request, upstream.Response], monitoring common.EngineMonitoring) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ActiveRequestsMiddleware(monitoring, lggr))

	v1Group := router.Group("/v1")

	v1Group.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	rpcHandler := v1.NewRPCHandler(eng, lggr)
	v1Group.POST("/rpc", rpcHandler.Handle)

	healthHandler := v1.NewHealthHandler(lggr)
	v1Group.GET("/health", healthHandler.Handle)

	return router
}

func Serve(router *gin.Engine, port int) error {
	return router.Run(fmt.Sprintf(":%d", port))
}
