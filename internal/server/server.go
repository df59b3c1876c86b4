package server

import (
	"context"
	"net/http"

	"option-desk-go/gateway"
	"option-desk-go/infrastructure/logger"
	"option-desk-go/internal/settings"
	"option-desk-go/order"

	"github.com/gin-gonic/gin"
)

// Broker 只读的券商查询
type Broker interface {
	PositionBook(ctx context.Context) ([]gateway.Position, error)
	Ping(ctx context.Context) error
}

// Deps 路由依赖
type Deps struct {
	Broker   Broker
	Ledger   *order.Ledger
	Orders   *order.Manager
	Settings *settings.Store
	Stream   http.Handler // /api/stream，可为空
	Metrics  http.Handler // /metrics，可为空
	Logger   *logger.Logger
}

// Server 下单台 HTTP 接口
type Server struct {
	deps   Deps
	log    *logger.Logger
	engine *gin.Engine
}

func New(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{
		deps: deps,
		log:  log.WithFields(map[string]interface{}{"component": "http"}),
	}
	s.engine = s.routes()
	return s
}

// Handler 返回 gin engine
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), recovery(s.log), accessLog(s.log))

	r.GET("/healthz", s.health)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	api := r.Group("/api")
	api.GET("/positions", s.positions)
	api.GET("/pending_orders", s.pendingOrders)
	api.GET("/orders", s.orders)
	api.GET("/sync_order_status", s.syncOrderStatus)
	api.POST("/sync_order_status", s.syncOrderStatus)
	api.POST("/cancel_order", s.cancelOrder)
	api.POST("/smart_order", s.smartOrder)

	api.GET("/settings", s.getSettings)
	api.POST("/settings", s.saveSettings)
	api.POST("/update_strike", s.updateStrike)
	api.GET("/instruments", s.instruments)

	if s.deps.Stream != nil {
		api.GET("/stream", gin.WrapH(s.deps.Stream))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody("not found"))
	})
	return r
}

func (s *Server) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorBody(err.Error()))
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.log.LogError(err, map[string]interface{}{
		"path":       c.Request.URL.Path,
		"request_id": c.GetString(ctxRequestID),
	})
	c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
}
