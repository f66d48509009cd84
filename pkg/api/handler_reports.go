package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/proxima-health/oracle/pkg/models"
	"github.com/proxima-health/oracle/pkg/reports"
)

func (s *Server) reportAnalyze(c *gin.Context) {
	var req reports.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := s.deps.Reports.Analyze(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":               "success",
		"analysis_id":          result.AnalysisID,
		"recommended_type":     result.RecommendedType,
		"recommended_endpoint": result.Endpoint,
		"report_config":        result.Config,
	})
}

// generateReport builds the handler for one fixed report type.
func (s *Server) generateReport(reportType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reports.GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		req.Specialty = ""
		s.respondGenerated(c, reportType, req)
	}
}

// generateSpecialist builds the handler for one specialist report. An
// empty specialty means the body names it.
func (s *Server) generateSpecialist(specialty string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reports.GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if specialty != "" {
			req.Specialty = specialty
		}
		s.respondGenerated(c, reports.TypeSpecialist, req)
	}
}

func (s *Server) respondGenerated(c *gin.Context, reportType string, req reports.GenerateRequest) {
	result, err := s.deps.Reports.Generate(c.Request.Context(), reportType, req)
	if err != nil {
		s.fail(c, err)
		return
	}

	body := gin.H{
		"status":      "success",
		"report_id":   result.ReportID,
		"report_type": result.ReportType,
		"report_data": result.ReportData,
		"model_used":  result.Model,
	}
	if result.Specialty != "" {
		body["specialty"] = result.Specialty
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) reportList(c *gin.Context) {
	list, err := s.deps.Reports.ListReports(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "reports": list, "count": len(list)})
}

func (s *Server) reportGet(c *gin.Context) {
	report, err := s.deps.Reports.GetReport(c.Request.Context(), c.Param("id"), c.Query("user_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "report": report})
}

// reportShared resolves an unexpired share token to its report.
func (s *Server) reportShared(c *gin.Context) {
	report, err := s.deps.Reports.ResolveShare(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "report": report})
}

type doctorNotesRequest struct {
	Notes models.JSONMap `json:"notes" binding:"required"`
}

func (s *Server) reportDoctorNotes(c *gin.Context) {
	var req doctorNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := s.deps.Reports.AddDoctorNotes(c.Request.Context(), c.Param("id"), req.Notes); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

type shareRequest struct {
	ExpiresInDays int `json:"expires_in_days,omitempty"`
}

func (s *Server) reportShare(c *gin.Context) {
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	share, err := s.deps.Reports.Share(c.Request.Context(), c.Param("id"),
		time.Duration(req.ExpiresInDays)*24*time.Hour)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"share_id":   share.ShareID,
		"url":        share.URL,
		"expires_at": share.ExpiresAt,
	})
}

type rateRequest struct {
	Rating float64 `json:"rating" binding:"required"`
}

func (s *Server) reportRate(c *gin.Context) {
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	average, err := s.deps.Reports.Rate(c.Request.Context(), c.Param("id"), req.Rating)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "average_rating": average})
}

type triageRequest struct {
	UserID       string `json:"user_id" binding:"required"`
	SymptomFocus string `json:"symptom_focus,omitempty"`
}

func (s *Server) reportSpecialtyTriage(c *gin.Context) {
	var req triageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := s.deps.Reports.SpecialtyTriage(c.Request.Context(), req.UserID, req.SymptomFocus)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             "success",
		"specialty":          result.Specialty,
		"reasoning":          result.Reasoning,
		"alternatives":       result.Alternatives,
		"urgency_level":      result.UrgencyLevel,
		"records_considered": result.GeneratedFrom,
	})
}
