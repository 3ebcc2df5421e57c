package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/lingobridge/lingobridge/internal/provider"
	"github.com/lingobridge/lingobridge/internal/translate"
)

const (
	entriesDefaultLimit = 50
	entriesMaxLimit     = 200
)

// translateRequest is the client payload for both translation endpoints.
// Provider, APIKey and Model fall back to the config defaults when omitted.
type translateRequest struct {
	Texts    []string `json:"texts"`
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Provider string   `json:"provider"`
	APIKey   string   `json:"apiKey"`
	Model    string   `json:"model"`
}

// toServiceRequest fills config defaults into the wire request.
func (s *Server) toServiceRequest(req translateRequest) translate.Request {
	kind := provider.Kind(req.Provider)
	if req.Provider == "" {
		kind = provider.KindOpenAI
	}
	out := translate.Request{
		Texts:      req.Texts,
		SourceLang: req.Source,
		TargetLang: req.Target,
		Provider:   kind,
		APIKey:     req.APIKey,
		Model:      req.Model,
	}
	defaults := s.store.Load().Provider(kind)
	if out.APIKey == "" {
		out.APIKey = defaults.APIKey
	}
	if out.Model == "" {
		out.Model = defaults.Model
	}
	if out.BaseURL == "" {
		out.BaseURL = defaults.BaseURL
	}
	return out
}

// errorResponse maps a pipeline error onto the wire shape and HTTP status.
func errorResponse(err error) (int, gin.H) {
	var ve *translate.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, gin.H{"success": false, "error": ve.Message}
	}
	if errors.Is(err, provider.ErrUnknownProvider) {
		return http.StatusBadRequest, gin.H{"success": false, "error": err.Error()}
	}
	if pe, ok := provider.AsError(err); ok {
		return provider.StatusFor(pe.Code), gin.H{"success": false, "error": pe.Message, "errorCode": pe.Code}
	}
	return http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()}
}

func (s *Server) handleTranslate(c *gin.Context) {
	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body: " + err.Error()})
		return
	}

	translations, err := s.service.Translate(c.Request.Context(), s.toServiceRequest(req))
	if err != nil {
		log.Debugf("translate request failed: %v", err)
		c.JSON(errorResponse(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "translations": translations})
}

func (s *Server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.cache.Stats())
}

func (s *Server) handleCacheEntries(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "page must be a positive integer"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(entriesDefaultLimit)))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "limit must be a positive integer"})
		return
	}
	if limit > entriesMaxLimit {
		limit = entriesMaxLimit
	}

	entries, hasMore, total, err := s.cache.Entries(page-1, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"page":    page,
		"limit":   limit,
		"total":   total,
		"hasMore": hasMore,
	})
}

func (s *Server) handleCacheClear(c *gin.Context) {
	if err := s.cache.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	log.Info("translation cache cleared")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
