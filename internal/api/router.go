package api

import (
	"io/fs"
	"net/http"
	"slices"
	"time"

	"github.com/RichardoC/sentichat/web"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires the JSON API, the health probe and the embedded page.
func NewRouter(h *Handler, allowedOrigins []string, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(requestLogger(logger.Named("http")), gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = allowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/", servePage)
	r.StaticFS("/static", http.FS(web.Static()))
	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	api.POST("/conversation/new", h.NewConversation)
	api.GET("/conversation/:id", h.GetConversation)
	api.GET("/conversations", h.ListConversations)
	api.POST("/chat", h.Chat)
	api.POST("/sentiment/:id", h.AnalyzeConversation)

	return r
}

func servePage(c *gin.Context) {
	page, err := fs.ReadFile(web.FS(), "index.html")
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "page unavailable"})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("clientIP", c.ClientIP()))
	}
}
