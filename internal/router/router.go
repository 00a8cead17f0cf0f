package router

import (
	"context"
	"net/http"
	"strconv"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/handlers"
	"github.com/chav-jf/speedy-green-flash/internal/relay"
)

// Options carries what the routes need.
type Options struct {
	// Ctx bounds websocket connections; cancel it to drop all peers.
	Ctx          context.Context
	Hub          *relay.Hub
	Results      handlers.ResultsStore
	RateLimit    uint
	AllowedHosts []string
	Production   bool
}

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.Header("Retry-After", strconv.Itoa(int(time.Until(info.ResetTime).Seconds())+1))
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Try again later."})
}

func Setup(log *zap.Logger, o Options) *gin.Engine {
	if o.Ctx == nil {
		o.Ctx = context.Background()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	secureMiddleware := secure.New(secure.Options{
		AllowedHosts:          o.AllowedHosts,
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'self'; script-src 'self' https://go-echarts.github.io 'unsafe-inline'; style-src 'self' 'unsafe-inline'",
		IsDevelopment:         !o.Production,
	})
	router.Use(func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	})

	relayHandler := handlers.NewRelayHandler(o.Ctx, log, o.Hub)
	roomsHandler := handlers.NewRoomsHandler(log, o.Hub)
	resultsHandler := handlers.NewResultsHandler(log, o.Results)
	statusHandler := handlers.NewStatusHandler(log, o.Hub)

	limit := o.RateLimit
	if limit == 0 {
		limit = 5
	}
	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Second,
		Limit: limit,
	})
	limiter := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	router.GET("/", statusHandler.Index)
	router.GET("/healthz", statusHandler.Health)
	router.GET("/ws", limiter, relayHandler.ServeWS)

	rooms := router.Group("/rooms")
	{
		rooms.GET("", roomsHandler.List)
		rooms.POST("", limiter, roomsHandler.Create)
		rooms.GET("/:code", roomsHandler.Get)
		rooms.GET("/:code/results", resultsHandler.Summary)
		rooms.GET("/:code/chart", resultsHandler.Chart)
	}

	return router
}
