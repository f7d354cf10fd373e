package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"riskai/internal/analysis"
	"riskai/internal/cache"
	"riskai/internal/config"
)

// Server is the HTTP API for the analysis service.
type Server struct {
	engine    *analysis.Engine
	formatter *analysis.Formatter
	store     *cache.Store
	cfg       config.Config
	log       *zap.Logger
	router    *gin.Engine
}

// New assembles the API server. store may be nil when caching is
// disabled.
func New(engine *analysis.Engine, formatter *analysis.Formatter, store *cache.Store, cfg config.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:    engine,
		formatter: formatter,
		store:     store,
		cfg:       cfg,
		log:       log,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))
	router.Use(corsMiddleware())

	router.POST("/analyze", s.handleAnalyze)
	router.POST("/analyze_requirements", s.handleAnalyzeRequirements)
	router.POST("/preprocess", s.handlePreprocess)
	router.POST("/format_document", s.handleFormatDocument)
	router.POST("/format_document/continue", s.handleFormatDocumentContinue)
	router.GET("/cache/stats", s.handleCacheStats)
	router.POST("/cache/clear", s.handleCacheClear)
	router.GET("/health", s.handleHealth)

	s.router = router
	return s
}

// Router exposes the underlying handler, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Run serves the API on the configured port until the listener fails.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.log.Info("starting API server", zap.String("addr", addr))
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}

// requestLogger logs each request with method, path, status and latency.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// corsMiddleware allows any origin, mirroring the permissive deployment
// this service replaces.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
