package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/fourline-project/fourline/internal/client"
	"github.com/fourline-project/fourline/internal/config"
	"github.com/fourline-project/fourline/internal/db"
	"github.com/fourline-project/fourline/internal/events"
	"github.com/fourline-project/fourline/internal/history"
)

const apiRateLimitRPS = 20

// Server is the local REST API server.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	client   *client.Client
	database *db.Database
	hist     *history.Client

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server. database and hist may be nil; their
// routes report unavailable.
func NewServer(cfg *config.Config, eventBus *events.EventBus, cl *client.Client,
	database *db.Database, hist *history.Client) *Server {

	if cfg.GetApplicationData().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:      cfg,
		eventBus: eventBus,
		client:   cl,
		database: database,
		hist:     hist,
	}
}

// Start runs the API server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.GetApplicationData().API.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.GetApplicationData().API.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(apiRateLimitRPS)
	router.Use(rateLimiter.Middleware())

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	{
		api.GET("/session", s.handleGetSession)
		api.GET("/board", s.handleGetBoard)
		api.GET("/system", s.handleGetSystem)
		api.GET("/profile", s.handleGetProfile)
		api.GET("/leaderboard", s.handleLeaderboard)
		api.GET("/history", s.handleHistory)

		api.POST("/queue", s.handleJoinQueue)
		api.DELETE("/queue", s.handleLeaveQueue)
		api.POST("/move", s.handleMove)
		api.POST("/abandon", s.handleAbandon)
		api.POST("/spectate", s.handleSpectate)
		api.DELETE("/spectate", s.handleLeaveSpectate)
		api.POST("/rematch", s.handleRequestRematch)
		api.POST("/rematch/response", s.handleRematchResponse)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}
