package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"
)

type HealthHandler struct {
	lggr logger.Logger
}

func NewHealthHandler(lggr logger.Logger) *HealthHandler {
	return &HealthHandler{lggr: logger.Named(lggr, "HealthHandler")}
}

func (h *HealthHandler) Handle(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
