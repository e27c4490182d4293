package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pdf_unmark/session"
)

// Config holds the HTTP layer configuration
type Config struct {
	MaxFileSize    int64
	DefaultWidth   int
	AllowedOrigins []string
}

// Handler serves the region editor API on top of a session manager.
type Handler struct {
	config   *Config
	sessions *session.Manager
	logger   zerolog.Logger
}

// NewHandler creates the API handlers over sessions.
func NewHandler(config *Config, sessions *session.Manager, logger zerolog.Logger) *Handler {
	return &Handler{
		config:   config,
		sessions: sessions,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// SetupRoutes registers the health check and the session API on r.
func SetupRoutes(r *gin.Engine, h *Handler) {
	r.Use(CORS(h.config.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"service":  "pdf_unmark",
			"sessions": h.sessions.Len(),
		})
	})

	apiGroup := r.Group("/api/sessions")
	{
		apiGroup.POST("", h.CreateSession)

		s := apiGroup.Group("/:id", h.loadSession)
		s.GET("", h.GetSession)
		s.DELETE("", h.DeleteSession)

		s.POST("/document", h.LoadDocument)
		s.DELETE("/document", h.ResetDocument)
		s.PUT("/page", h.Navigate)
		s.GET("/render", h.Render)

		s.GET("/overlay", h.Scene)
		s.GET("/overlay/preview", h.Preview)
		s.POST("/overlay/pointer", h.Pointer)
		s.PUT("/overlay/selected", h.Select)
		s.DELETE("/overlay/selected", h.DeleteSelected)

		s.GET("/selections", h.ListSelections)
		s.POST("/selections", h.AddSelection)
		s.DELETE("/selections", h.ClearSelections)
		s.PATCH("/selections/:sid", h.UpdateSelection)
		s.DELETE("/selections/:sid", h.RemoveSelection)

		s.POST("/actions", h.CompileActions)
		s.POST("/process", h.Process)
	}
}
