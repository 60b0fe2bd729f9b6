package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cds-reasoning-server/internal/domain"
	"github.com/cds-reasoning-server/internal/middleware"
	"github.com/cds-reasoning-server/internal/service"
)

// RedFlagInfo describes one red flag for client pick lists.
type RedFlagInfo struct {
	Type    domain.RedFlagType `json:"type"`
	Label   string             `json:"label"`
	Message string             `json:"message"`
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req service.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	req.UserID = middleware.UserID(c)

	resp, err := s.service.AnalyzeEncounter(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleAnalyzeStoredEncounter(c *gin.Context) {
	resp, err := s.service.AnalyzeStoredEncounter(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListAnalyses(c *gin.Context) {
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		s.writeError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.writeError(c, err)
		return
	}

	entries, err := s.service.ListAnalyses(c.Request.Context(), middleware.UserID(c), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"analyses": entries,
		"count":    len(entries),
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	entry, err := s.service.GetAnalysis(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleDeleteHistory(c *gin.Context) {
	removed, err := s.service.DeleteUserHistory(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": removed})
}

func (s *Server) handleInterpretLab(c *gin.Context) {
	var test domain.LabTest
	if err := c.ShouldBindJSON(&test); err != nil {
		s.badRequest(c, err)
		return
	}

	result, err := s.service.InterpretLab(c.Request.Context(), test)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleInterpretPanel(c *gin.Context) {
	var req service.PanelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	req.UserID = middleware.UserID(c)

	resp, err := s.service.InterpretPanel(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleReferenceRanges(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reference_ranges": s.service.ReferenceRanges()})
}

func (s *Server) handleRedFlags(c *gin.Context) {
	flags := make([]RedFlagInfo, 0, len(domain.RedFlagTypes))
	for _, f := range domain.RedFlagTypes {
		message, _ := service.RedFlagMessage(f)
		flags = append(flags, RedFlagInfo{Type: f, Label: f.Label(), Message: message})
	}
	c.JSON(http.StatusOK, gin.H{"red_flags": flags})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	abort(c, domain.NewAPIError(domain.ErrInvalidInput, "Malformed request body", err.Error(), middleware.RequestID(c)))
}

func abort(c *gin.Context, apiErr *domain.APIError) {
	c.AbortWithStatusJSON(apiErr.HTTPStatus(), apiErr)
}

// writeError maps service errors onto HTTP responses.
func (s *Server) writeError(c *gin.Context, err error) {
	requestID := middleware.RequestID(c)

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		abort(c, domain.NewAPIError(domain.ErrValidation, verr.Message, verr.Field, requestID))
	case errors.Is(err, domain.ErrNotFound):
		abort(c, domain.NewAPIError(domain.ErrNotFoundCode, "Resource not found", "", requestID))
	case errors.Is(err, service.ErrRepositoryUnavailable):
		abort(c, domain.NewAPIError(domain.ErrUnavailable, "Encounter records are not available on this server", "", requestID))
	default:
		s.logger.WithError(err).WithField("correlation_id", requestID).Error("Request failed")
		abort(c, domain.NewAPIError(domain.ErrInternalServer, "Internal server error", "", requestID))
	}
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(name, "must be a non-negative integer", raw)
	}
	return n, nil
}
