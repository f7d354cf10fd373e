package server

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"riskai/internal/analysis"
	"riskai/internal/cache"
	"riskai/internal/errors"
)

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analysis.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.NewInvalidInput("invalid request body: "+err.Error()))
		return
	}
	if err := s.checkInputSize(len(req.Story) + len(req.Requirements) + len(req.Code) + len(req.TestCases)); err != nil {
		s.writeError(c, err)
		return
	}

	result, err := s.engine.Analyze(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleAnalyzeRequirements(c *gin.Context) {
	var req analysis.RequirementsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.NewInvalidInput("invalid request body: "+err.Error()))
		return
	}
	if req.Requirements == "" {
		s.writeError(c, errors.NewInvalidInput("requirements must not be empty"))
		return
	}
	if err := s.checkInputSize(len(req.Requirements) + len(req.Guidelines)); err != nil {
		s.writeError(c, err)
		return
	}

	result, err := s.engine.AnalyzeRequirements(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handlePreprocess(c *gin.Context) {
	var req analysis.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.NewInvalidInput("invalid request body: "+err.Error()))
		return
	}

	in := analysis.Inputs{
		Story:        req.Story,
		Requirements: req.Requirements,
		Code:         req.Code,
		TestCases:    req.TestCases,
	}
	out := s.engine.Preprocess(c.Request.Context(), in, req.ExtremeMode)

	c.JSON(http.StatusOK, gin.H{
		"story":        out.Story,
		"requirements": out.Requirements,
		"code":         out.Code,
		"test_cases":   out.TestCases,
		"extreme_mode": req.ExtremeMode,
	})
}

func (s *Server) handleFormatDocument(c *gin.Context) {
	var req analysis.FormatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.NewInvalidInput("invalid request body: "+err.Error()))
		return
	}

	result, err := s.formatter.Format(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type continueRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *Server) handleFormatDocumentContinue(c *gin.Context) {
	var req continueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.NewInvalidInput("invalid request body: "+err.Error()))
		return
	}

	result, err := s.formatter.Continue(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleCacheStats(c *gin.Context) {
	stats := cache.Stats{}
	if s.store != nil {
		var err error
		stats, err = s.store.Stats(c.Request.Context())
		if err != nil {
			s.writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"cache_hits":   stats.Hits,
		"cache_misses": stats.Misses,
		"cache_saves":  stats.Saves,
		"records":      stats.Records,
		"hit_rate":     stats.HitRate(),
	})
}

func (s *Server) handleCacheClear(c *gin.Context) {
	removed := 0
	if s.store != nil {
		var err error
		removed, err = s.store.Clear(c.Request.Context())
		if err != nil {
			s.writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) checkInputSize(size int) error {
	if s.cfg.MaxInputBytes > 0 && size > s.cfg.MaxInputBytes {
		return errors.NewInvalidInput("request inputs exceed the size limit")
	}
	return nil
}

// writeError maps domain errors onto HTTP responses. Unknown errors
// become opaque 500s.
func (s *Server) writeError(c *gin.Context, err error) {
	var domainErr *errors.Error
	if stderrors.As(err, &domainErr) {
		if domainErr.Status >= 500 {
			s.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		}
		body := gin.H{
			"code":    domainErr.Code,
			"message": domainErr.Message,
		}
		if len(domainErr.Details) > 0 {
			body["details"] = domainErr.Details
		}
		c.JSON(domainErr.Status, gin.H{"error": body})
		return
	}

	s.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{"code": errors.ErrInternal, "message": "internal error"},
	})
}
