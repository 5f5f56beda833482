package controllers

import (
	"errors"
	"net/http"

	"Gin_postgres_redis_tool_crib/app"
	"Gin_postgres_redis_tool_crib/ledger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusOf 把台账错误映射成 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrItemNotFound), errors.Is(err, ledger.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientStock), errors.Is(err, ledger.ErrDuplicateItemID):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrLockTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail 统一错误响应；批次错误附带出错的物品和行号
func fail(c *gin.Context, err error) {
	code := statusOf(err)
	body := app.H{"error": err.Error()}

	var be *ledger.BatchError
	if errors.As(err, &be) {
		body["itemId"] = be.ItemID
		body["line"] = be.Line
		body["phase"] = be.Phase
	}
	switch code {
	case http.StatusInternalServerError:
		zap.L().Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		_ = c.Error(err)
	case http.StatusServiceUnavailable:
		c.Header("Retry-After", "2")
	}
	c.JSON(code, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, app.H{"error": msg})
}
