package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/undercity-games/presence-server/internal/auth"
	"github.com/undercity-games/presence-server/internal/config"
	"github.com/undercity-games/presence-server/internal/core"
	"github.com/undercity-games/presence-server/internal/log"
	"github.com/undercity-games/presence-server/internal/metrics"
	"github.com/undercity-games/presence-server/internal/store"
)

// ServerOptions collects the collaborators the HTTP layer exposes.
type ServerOptions struct {
	Hub      *core.Hub
	Verifier *auth.Verifier
	// Directory resolves players for handshakes and roster queries.
	Directory Directory
	// Friends loads a player's friend list during the handshake.
	Friends store.FriendGraph
	Metrics *metrics.Metrics
	// Gatherer, when set, enables the /metrics endpoint.
	Gatherer prometheus.Gatherer
	Logger   *zerolog.Logger
}

// NewServer builds the HTTP server: the player-facing websocket
// endpoint plus the service-facing internal API.
func NewServer(opts ServerOptions, cfg config.Config) *stdhttp.Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))

	ws := NewWSHandler(opts.Hub, opts.Verifier, opts.Directory, opts.Friends, cfg.Session.SendQueueSize, logger)
	r.GET("/ws", ws.Handle)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, gin.H{
			"status": "ok",
			"online": opts.Hub.OnlineCount(),
		})
	})

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	ih := NewInternalHandlers(opts.Hub, opts.Directory, opts.Metrics, logger)
	internal := r.Group("/internal", ServiceKeyMiddleware(cfg.Push.ServiceKeys, logger))
	internal.POST("/push", ih.Push)
	internal.POST("/district", ih.SetDistrict)
	internal.POST("/crew", ih.SetCrew)
	internal.GET("/presence", ih.Presence)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
