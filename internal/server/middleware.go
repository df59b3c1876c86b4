package server

import (
	"fmt"
	"net/http"
	"time"

	"option-desk-go/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

const (
	headerRequestID = "X-Request-ID"
	ctxRequestID    = "request_id"
)

// requestID 为每个请求分配 ULID，已有 X-Request-ID 时沿用。
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = ulid.Make().String()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// accessLog 请求结束后写一条 http_request 日志
func accessLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.LogHTTP(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), c.GetString(ctxRequestID))
	}
}

// recovery 把 panic 转成 500 {status:error}
func recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec interface{}) {
		log.LogError(fmt.Errorf("panic: %v", rec), map[string]interface{}{
			"path":       c.Request.URL.Path,
			"request_id": c.GetString(ctxRequestID),
		})
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("internal server error"))
	})
}

func errorBody(msg string) gin.H {
	return gin.H{"status": "error", "message": msg}
}
