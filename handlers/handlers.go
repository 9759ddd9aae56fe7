// Package handlers exposes the HTTP surface over the report service.
package handlers

import (
	"encoding/xml"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"honest-report-service/affiliate"
	"honest-report-service/config"
	"honest-report-service/middleware"
	"honest-report-service/models"
	"honest-report-service/parser"
	"honest-report-service/service"
)

const adminSessionTTL = 12 * time.Hour

// Handlers holds the service and the config bits the HTTP layer needs.
type Handlers struct {
	svc *service.Service
	cfg *config.Config
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(svc *service.Service, cfg *config.Config) *Handlers {
	return &Handlers{svc: svc, cfg: cfg}
}

// reportView is a report plus the affiliate links rendered alongside it.
type reportView struct {
	*models.Report
	AffiliateLinks []affiliate.Link `json:"affiliate_links,omitempty"`
}

func (h *Handlers) view(r *models.Report) reportView {
	return reportView{
		Report:         r,
		AffiliateLinks: affiliate.Links(r.Content.Products, r.Content.AmazonSearchQuery, h.cfg.AffiliateTag),
	}
}

// GenerateReport handles POST /api/v1/generate-report.
func (h *Handlers) GenerateReport(c *gin.Context) {
	var req models.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.userError(c, http.StatusBadRequest, "Veuillez fournir un mot-clé.", err)
		return
	}

	resp, err := h.svc.GenerateReport(c.Request.Context(), req.Keyword)
	if err != nil {
		var offTopic *parser.OffTopicError
		switch {
		case errors.Is(err, service.ErrEmptyKeyword):
			h.userError(c, http.StatusBadRequest, "Veuillez fournir un mot-clé.", err)
		case errors.Is(err, service.ErrNoDiscussions):
			h.userError(c, http.StatusNotFound, "Aucune discussion trouvée pour ce produit. Essayez un autre mot-clé.", err)
		case errors.As(err, &offTopic):
			h.userError(c, http.StatusBadRequest, "Ce mot-clé ne semble pas correspondre à un produit ou service.", err)
		default:
			h.userError(c, http.StatusInternalServerError, "La génération du rapport a échoué. Réessayez plus tard.", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  resp.Success,
		"report":   h.view(resp.Report),
		"cached":   resp.Cached,
		"redirect": resp.Redirect,
	})
}

// GetReportByID handles GET /api/v1/reports/:id.
func (h *Handlers) GetReportByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.userError(c, http.StatusBadRequest, "Identifiant de rapport invalide.", err)
		return
	}

	report, err := h.svc.GetReportByID(id)
	if err != nil {
		h.reportFetchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": h.view(report)})
}

// GetReportBySlug handles GET /api/v1/rapports/:slug.
func (h *Handlers) GetReportBySlug(c *gin.Context) {
	slug := c.Param("slug")
	report, err := h.svc.GetReportBySlug(slug)
	if err != nil {
		h.reportFetchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": h.view(report)})
}

func (h *Handlers) reportFetchError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrNotFound) {
		h.userError(c, http.StatusNotFound, "Ce rapport n'existe pas.", err)
		return
	}
	h.userError(c, http.StatusInternalServerError, "Impossible de charger le rapport.", err)
}

// ListReports handles GET /api/v1/reports with page/page_size query params.
func (h *Handlers) ListReports(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	reports, total, err := h.svc.ListReports(page, pageSize)
	if err != nil {
		h.userError(c, http.StatusInternalServerError, "Impossible de charger les rapports.", err)
		return
	}

	views := make([]reportView, 0, len(reports))
	for i := range reports {
		views = append(views, h.view(&reports[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"reports":   views,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Subscribe handles POST /api/v1/subscribe.
func (h *Handlers) Subscribe(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.userError(c, http.StatusBadRequest, "Veuillez fournir une adresse email.", err)
		return
	}

	created, err := h.svc.Subscribe(req.Email)
	if err != nil {
		if errors.Is(err, service.ErrInvalidEmail) {
			h.userError(c, http.StatusBadRequest, "Adresse email invalide.", err)
			return
		}
		h.userError(c, http.StatusInternalServerError, "L'inscription a échoué. Réessayez plus tard.", err)
		return
	}

	message := "Inscription confirmée !"
	if !created {
		message = "Vous êtes déjà inscrit."
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "created": created, "message": message})
}

// sitemap XML types per the sitemaps.org protocol.
type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// Sitemap handles GET /sitemap.xml.
func (h *Handlers) Sitemap(c *gin.Context) {
	entries, err := h.svc.ListSlugs()
	if err != nil {
		h.userError(c, http.StatusInternalServerError, "sitemap unavailable", err)
		return
	}

	base := h.cfg.SiteBaseURL
	set := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  []sitemapURL{{Loc: base + "/"}},
	}
	for _, e := range entries {
		if e.Slug == "" {
			continue
		}
		set.URLs = append(set.URLs, sitemapURL{
			Loc:     base + "/rapports/" + e.Slug,
			LastMod: e.UpdatedAt.Format("2006-01-02"),
		})
	}

	c.XML(http.StatusOK, set)
}

// Health handles GET /api/v1/health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "honest-report-service"})
}

// Stats handles GET /api/v1/stats.
func (h *Handlers) Stats(c *gin.Context) {
	stats, err := h.svc.Stats()
	if err != nil {
		h.userError(c, http.StatusInternalServerError, "stats unavailable", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

// AdminLogin handles POST /api/v1/admin/login. The password is checked
// against the bcrypt hash from config; success issues a session JWT as both
// body token and cookie.
func (h *Handlers) AdminLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.userError(c, http.StatusBadRequest, "Mot de passe requis.", err)
		return
	}
	if h.cfg.AdminPasswordHash == "" || h.cfg.JWTSecret == "" {
		h.userError(c, http.StatusServiceUnavailable, "admin login not configured", nil)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.cfg.AdminPasswordHash), []byte(req.Password)); err != nil {
		h.userError(c, http.StatusUnauthorized, "Mot de passe incorrect.", err)
		return
	}

	token, err := middleware.IssueSessionToken(h.cfg.JWTSecret, adminSessionTTL)
	if err != nil {
		h.userError(c, http.StatusInternalServerError, "login failed", err)
		return
	}
	c.SetCookie(middleware.SessionCookieName, token, int(adminSessionTTL.Seconds()), "/", "", !h.cfg.DevMode, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}

// AdminRegenerate handles POST /api/v1/admin/reports/:id/regenerate.
func (h *Handlers) AdminRegenerate(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.userError(c, http.StatusBadRequest, "invalid report id", err)
		return
	}

	report, err := h.svc.RegenerateReport(c.Request.Context(), id)
	if err != nil {
		var offTopic *parser.OffTopicError
		switch {
		case errors.Is(err, service.ErrNotFound):
			h.userError(c, http.StatusNotFound, "report not found", err)
		case errors.Is(err, service.ErrNoDiscussions):
			h.userError(c, http.StatusNotFound, "no discussions found", err)
		case errors.As(err, &offTopic):
			h.userError(c, http.StatusBadRequest, "summarizer rejected the keyword", err)
		default:
			h.userError(c, http.StatusInternalServerError, "regeneration failed", err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": h.view(report)})
}

// AdminSetImage handles POST /api/v1/admin/reports/:id/image.
func (h *Handlers) AdminSetImage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.userError(c, http.StatusBadRequest, "invalid report id", err)
		return
	}
	var req struct {
		ImageURL string `json:"image_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.userError(c, http.StatusBadRequest, "image_url required", err)
		return
	}

	switch err := h.svc.SetReportImage(id, req.ImageURL); {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true})
	case errors.Is(err, service.ErrNotFound):
		h.userError(c, http.StatusNotFound, "report not found", err)
	case errors.Is(err, service.ErrInvalidImageURL):
		h.userError(c, http.StatusBadRequest, "image_url must be http(s)", err)
	default:
		h.userError(c, http.StatusInternalServerError, "update failed", err)
	}
}

// AdminSetCategory handles PATCH /api/v1/admin/reports/:id/category.
func (h *Handlers) AdminSetCategory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.userError(c, http.StatusBadRequest, "invalid report id", err)
		return
	}
	var req struct {
		Category string `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.userError(c, http.StatusBadRequest, "category required", err)
		return
	}

	switch err := h.svc.SetReportCategory(id, req.Category); {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true})
	case errors.Is(err, service.ErrNotFound):
		h.userError(c, http.StatusNotFound, "report not found", err)
	case errors.Is(err, service.ErrInvalidCategory):
		h.userError(c, http.StatusBadRequest, "unknown category", err)
	default:
		h.userError(c, http.StatusInternalServerError, "update failed", err)
	}
}

// AdminBackfillImages handles POST /api/v1/admin/backfill/images.
func (h *Handlers) AdminBackfillImages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	n, err := h.svc.BackfillImages(limit)
	if err != nil {
		h.userError(c, http.StatusInternalServerError, "backfill failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "enqueued": n})
}

// AdminBackfillCategories handles POST /api/v1/admin/backfill/categories.
func (h *Handlers) AdminBackfillCategories(c *gin.Context) {
	n, err := h.svc.BackfillCategories()
	if err != nil {
		h.userError(c, http.StatusInternalServerError, "backfill failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": n})
}

// userError sends a stable user-facing message; internal detail is only
// exposed in dev mode.
func (h *Handlers) userError(c *gin.Context, status int, message string, err error) {
	if err != nil && status >= 500 {
		log.WithError(err).Errorf("%s %s failed", c.Request.Method, c.FullPath())
	}
	body := gin.H{"success": false, "error": message}
	if h.cfg.DevMode && err != nil {
		body["detail"] = err.Error()
	}
	c.JSON(status, body)
}
