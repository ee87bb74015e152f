package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"venue/engine"
	"venue/feed"
	"venue/metrics"
)

const tradeStreamBuffer = 32

type adminConfig struct {
	authToken  string // empty disables auth
	corsOrigin string
}

type adminAPI struct {
	cfg      adminConfig
	engine   *engine.Engine
	prices   feed.Prices
	upgrader websocket.Upgrader
	log      *zap.SugaredLogger
}

func newAdminAPI(cfg adminConfig, e *engine.Engine, prices feed.Prices, logger *zap.SugaredLogger) *adminAPI {
	if cfg.corsOrigin == "" {
		cfg.corsOrigin = "*"
	}
	return &adminAPI{
		cfg:      cfg,
		engine:   e,
		prices:   prices,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      logger,
	}
}

func (a *adminAPI) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), metrics.GinMiddleware(), a.withCORS)

	r.GET("/health", a.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := r.Group("/", a.withAuth)
	authed.GET("/book", a.dump)
	authed.GET("/book/levels", a.levels)
	authed.GET("/stats", a.stats)
	authed.GET("/ws/trades", a.tradeStream)
	return r
}

func (a *adminAPI) withCORS(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Access-Control-Allow-Origin", a.cfg.corsOrigin)
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

// withAuth accepts the token as a bearer header or, for websocket clients that
// cannot set headers, a token query parameter.
func (a *adminAPI) withAuth(c *gin.Context) {
	if a.cfg.authToken == "" {
		c.Next()
		return
	}
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		token = c.Query("token")
	}
	if token != a.cfg.authToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
		return
	}
	c.Next()
}

func (a *adminAPI) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *adminAPI) dump(c *gin.Context) {
	out, err := a.engine.Dump(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, out)
}

func (a *adminAPI) levels(c *gin.Context) {
	snap, err := a.engine.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (a *adminAPI) stats(c *gin.Context) {
	s := a.engine.Stats()
	c.JSON(http.StatusOK, gin.H{
		"orders":            s.Orders,
		"trades":            s.Trades,
		"volume":            s.Volume,
		"elapsed_seconds":   s.Elapsed.Seconds(),
		"trades_per_second": s.TradesPerSecond,
	})
}

type tradeMessage struct {
	Type  string `json:"type"`
	Price int64  `json:"price"`
}

func (a *adminAPI) tradeStream(c *gin.Context) {
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.log.Debugw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := a.prices.Subscribe(tradeStreamBuffer)
	defer a.prices.Unsubscribe(sub)

	// reader detects the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		case price, ok := <-sub.C():
			if !ok {
				return
			}
			if err := conn.WriteJSON(tradeMessage{Type: "trade", Price: price}); err != nil {
				return
			}
		}
	}
}
