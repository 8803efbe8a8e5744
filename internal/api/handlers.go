package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xerolink/xerolink/internal/errors"
	"github.com/xerolink/xerolink/internal/models"
)

const dateLayout = "2006-01-02"

// handleAuthURL returns the Xero consent URL for a company.
func (s *Server) handleAuthURL(c *gin.Context) {
	companyID := c.Param("company_id")

	authURL, err := s.tokens.GenerateAuthURL(c.Request.Context(), companyID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"company_id": companyID,
		"auth_url":   authURL,
	})
}

// handleCallback completes the OAuth flow. Xero redirects here with a
// code and the state token we issued; the state identifies the company.
func (s *Server) handleCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")

	if errParam := c.Query("error"); errParam != "" {
		s.logger.WarnCtx(c.Request.Context(), "consent denied",
			"error", errParam,
			"description", c.Query("error_description"),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "consent_denied",
			"message": errParam,
		})
		return
	}

	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.CodeInvalidState,
			"message": "missing code or state parameter",
		})
		return
	}

	companyID, err := s.tokens.HandleCallback(c.Request.Context(), code, state)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"company_id": companyID,
		"status":     models.StatusConnected,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.tokens.Status(c.Param("company_id")))
}

// handleTenants lists the authorised organisations for a company. With
// live=true the list is re-fetched from Xero instead of served from the
// stored connection.
func (s *Server) handleTenants(c *gin.Context) {
	companyID := c.Param("company_id")
	live := c.Query("live") == "true"

	tenants, err := s.tokens.Tenants(c.Request.Context(), companyID, live)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"company_id": companyID,
		"tenants":    tenants,
	})
}

func (s *Server) handleSelectTenant(c *gin.Context) {
	companyID := c.Param("company_id")

	var body struct {
		TenantID string `json:"tenant_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_request",
			"message": "tenant_id is required",
		})
		return
	}

	if err := s.tokens.SelectTenant(c.Request.Context(), companyID, body.TenantID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"company_id": companyID,
		"tenant_id":  body.TenantID,
	})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	companyID := c.Param("company_id")

	if err := s.tokens.Disconnect(c.Request.Context(), companyID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"company_id": companyID,
		"status":     models.StatusDisconnected,
	})
}

func (s *Server) handleRefreshToken(c *gin.Context) {
	companyID := c.Param("company_id")

	if err := s.tokens.Refresh(c.Request.Context(), companyID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.tokens.Status(companyID))
}

// handleSaveSettings stores per-company OAuth app credentials. The secret
// is never echoed back.
func (s *Server) handleSaveSettings(c *gin.Context) {
	companyID := c.Param("company_id")

	var body struct {
		ClientID     string `json:"client_id" binding:"required"`
		ClientSecret string `json:"client_secret" binding:"required"`
		RedirectURI  string `json:"redirect_uri"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_request",
			"message": "client_id and client_secret are required",
		})
		return
	}

	if err := s.tokens.SaveSettings(c.Request.Context(), companyID, body.ClientID, body.ClientSecret, body.RedirectURI); err != nil {
		writeError(c, err)
		return
	}

	settings, err := s.tokens.GetSettings(companyID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleGetSettings(c *gin.Context) {
	settings, err := s.tokens.GetSettings(c.Param("company_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// handleData serves any catalogued resource type as the raw upstream
// payload, read through the cache.
func (s *Server) handleData(c *gin.Context) {
	companyID := c.Param("company_id")

	rt, err := models.ParseResourceType(c.Param("resource_type"))
	if err != nil {
		writeError(c, &errors.ErrUnsupportedResourceType{Type: c.Param("resource_type")})
		return
	}

	query, err := parseListQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_request",
			"message": err.Error(),
		})
		return
	}

	payload, err := s.fetcher.Fetch(c.Request.Context(), companyID, rt, query)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", payload)
}

func (s *Server) handleInvoices(c *gin.Context) {
	s.serveResource(c, models.ResourceInvoices)
}

func (s *Server) handleContacts(c *gin.Context) {
	s.serveResource(c, models.ResourceContacts)
}

func (s *Server) serveResource(c *gin.Context, rt models.ResourceType) {
	query, err := parseListQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_request",
			"message": err.Error(),
		})
		return
	}

	payload, err := s.fetcher.Fetch(c.Request.Context(), c.Param("company_id"), rt, query)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", payload)
}

// handleBAS assembles a Business Activity Statement estimate. Without an
// explicit period the current calendar quarter is used.
func (s *Server) handleBAS(c *gin.Context) {
	period, err := parsePeriod(c, currentQuarter(time.Now()))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_request",
			"message": err.Error(),
		})
		return
	}

	report, err := s.reports.BAS(c.Request.Context(), c.Param("company_id"), period)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// handleFAS assembles a Fringe benefits Activity Statement estimate.
// Without an explicit period the current FBT year (April to March) is used.
func (s *Server) handleFAS(c *gin.Context) {
	period, err := parsePeriod(c, currentFBTYear(time.Now()))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_request",
			"message": err.Error(),
		})
		return
	}

	report, err := s.reports.FAS(c.Request.Context(), c.Param("company_id"), period)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// parseListQuery reads pagination and filtering parameters from the request.
func parseListQuery(c *gin.Context) (models.ListQuery, error) {
	var q models.ListQuery

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return q, &errors.ErrInvalidParam{Param: "page", Value: raw}
		}
		q.Page = page
	}
	if raw := c.Query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return q, &errors.ErrInvalidParam{Param: "page_size", Value: raw}
		}
		q.PageSize = size
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return q, &errors.ErrInvalidParam{Param: "from", Value: raw}
		}
		q.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return q, &errors.ErrInvalidParam{Param: "to", Value: raw}
		}
		q.To = &to
	}
	q.Where = strings.TrimSpace(c.Query("where"))

	return q, nil
}

// parsePeriod reads an explicit report period, falling back to the given
// default. Both bounds must be supplied together.
func parsePeriod(c *gin.Context, fallback models.ReportPeriod) (models.ReportPeriod, error) {
	fromRaw := c.Query("from")
	toRaw := c.Query("to")

	if fromRaw == "" && toRaw == "" {
		return fallback, nil
	}
	if fromRaw == "" || toRaw == "" {
		return models.ReportPeriod{}, &errors.ErrInvalidParam{Param: "from/to", Value: "both bounds required"}
	}

	from, err := time.Parse(dateLayout, fromRaw)
	if err != nil {
		return models.ReportPeriod{}, &errors.ErrInvalidParam{Param: "from", Value: fromRaw}
	}
	to, err := time.Parse(dateLayout, toRaw)
	if err != nil {
		return models.ReportPeriod{}, &errors.ErrInvalidParam{Param: "to", Value: toRaw}
	}
	if to.Before(from) {
		return models.ReportPeriod{}, &errors.ErrInvalidParam{Param: "to", Value: "must not precede from"}
	}

	return models.ReportPeriod{From: from, To: to}, nil
}

// currentQuarter returns the calendar quarter containing now.
func currentQuarter(now time.Time) models.ReportPeriod {
	quarterStartMonth := time.Month(((int(now.Month())-1)/3)*3 + 1)
	from := time.Date(now.Year(), quarterStartMonth, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 3, 0).Add(-24 * time.Hour)
	return models.ReportPeriod{From: from, To: to}
}

// currentFBTYear returns the FBT year containing now (1 April to 31 March).
func currentFBTYear(now time.Time) models.ReportPeriod {
	year := now.Year()
	if now.Month() < time.April {
		year--
	}
	from := time.Date(year, time.April, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year+1, time.March, 31, 0, 0, 0, 0, time.UTC)
	return models.ReportPeriod{From: from, To: to}
}
