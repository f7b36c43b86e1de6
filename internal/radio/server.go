package radio

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wavify-audio/wavify-core/config"
	"github.com/wavify-audio/wavify-core/internal/auth"
	"github.com/wavify-audio/wavify-core/internal/eqsettings"
	"github.com/wavify-audio/wavify-core/internal/radio/handler"
	"github.com/wavify-audio/wavify-core/internal/radio/service"
)

// Server is the control/admin HTTP plane: status, transport controls,
// queue manipulation, EQ settings, behind a JWT-protected admin login.
// Structurally a much smaller descendant of the station's own HTTP
// surface — no stream serving, since a client audio pipeline has no
// listeners to broadcast to. When WebDir is set, unmatched routes fall
// back to the SPA handler.
type Server struct {
	cfg        *config.Config
	auth       *auth.Auth
	httpServer *http.Server
}

// NewServer builds the control-plane HTTP server wired to player (the
// Queue/Playback Service/Crossfade Engine coordinator) and eq (the EQ
// Settings Store).
func NewServer(cfg *config.Config, player *service.Player, eq *eqsettings.Store) *Server {
	authInstance := auth.New(auth.Config{
		Username:           cfg.AdminUser,
		Password:           cfg.AdminPass,
		JWTSecret:          cfg.JWTSecret,
		TokenTTL:           24 * time.Hour,
		MaxLoginAttempts:   5,
		LoginWindowSeconds: 900,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())

	authHandlers := handler.NewAuthHandlers(authInstance)
	playerHandlers := handler.NewPlayerHandlers(player)
	eqHandlers := handler.NewEQHandlers(eq)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/api/auth/login", authHandlers.Login)

	api := router.Group("/api")
	api.Use(AuthRequired(authInstance))
	{
		api.GET("/auth/verify", authHandlers.VerifyToken)

		api.GET("/status", playerHandlers.Status)

		api.POST("/playback/toggle", playerHandlers.Toggle)
		api.POST("/playback/next", playerHandlers.Next)
		api.POST("/playback/previous", playerHandlers.Previous)
		api.POST("/playback/seek", playerHandlers.Seek)

		api.POST("/queue", playerHandlers.Enqueue)
		api.POST("/queue/play-now", playerHandlers.PlayNow)
		api.POST("/queue/loop-mode", playerHandlers.CycleLoopMode)
		api.PUT("/queue/shuffle", playerHandlers.SetShuffle)

		api.GET("/eq", eqHandlers.Get)
		api.PUT("/eq/enabled", eqHandlers.SetEnabled)
		api.PUT("/eq/bands/:band", eqHandlers.SetBand)
		api.PUT("/eq/preset", eqHandlers.ApplyPreset)
	}

	if cfg.WebDir != "" {
		spa := handler.NewSPAHandler(cfg.WebDir)
		router.NoRoute(spa.Handle)
	}

	return &Server{
		cfg:  cfg,
		auth: authInstance,
		httpServer: &http.Server{
			Addr:           cfg.ListenAddr,
			Handler:        router,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
	}
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		slog.Info("control plane HTTP server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
