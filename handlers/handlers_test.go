package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"honest-report-service/config"
	"honest-report-service/database"
	"honest-report-service/middleware"
	"honest-report-service/models"
	"honest-report-service/serper"
	"honest-report-service/service"
	"honest-report-service/stubllm"
)

type memStore struct {
	mu      sync.Mutex
	nextID  int64
	reports map[int64]*models.Report
	subs    map[string]bool
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, reports: map[int64]*models.Report{}, subs: map[string]bool{}}
}

func (m *memStore) GetReportByNormalizedName(name string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.NormalizedProductName == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetReportByID(id int64) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reports[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) GetReportBySlug(slug string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.Content.Slug == slug {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) InsertReport(r *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reports {
		if existing.NormalizedProductName == r.NormalizedProductName {
			r.ID = existing.ID
			return nil
		}
	}
	r.ID = m.nextID
	m.nextID++
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *memStore) UpdateReportImage(id int64, imageURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reports[id]; ok {
		r.ImageURL = &imageURL
	}
	return nil
}

func (m *memStore) UpdateReportContent(id int64, content models.ReportContent, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reports[id]; ok {
		r.Content = content
		r.Score = score
	}
	return nil
}

func (m *memStore) UpdateReportSlug(id int64, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reports[id]; ok {
		r.Content.Slug = slug
	}
	return nil
}

func (m *memStore) UpdateReportCategory(id int64, cat string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reports[id]; ok {
		r.Category = cat
	}
	return nil
}

func (m *memStore) ListReports(page, pageSize int) ([]models.Report, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Report
	for id := int64(1); id < m.nextID; id++ {
		if r, ok := m.reports[id]; ok {
			out = append(out, *r)
		}
	}
	return out, len(out), nil
}

func (m *memStore) ListSlugs() ([]database.SlugEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.SlugEntry
	for id := int64(1); id < m.nextID; id++ {
		if r, ok := m.reports[id]; ok && r.Content.Slug != "" {
			out = append(out, database.SlugEntry{Slug: r.Content.Slug, UpdatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})
		}
	}
	return out, nil
}

func (m *memStore) ListReportsMissingImage(limit int) ([]models.Report, error) {
	return nil, nil
}

func (m *memStore) GetStats() (*database.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &database.Stats{TotalReports: len(m.reports)}, nil
}

func (m *memStore) InsertSubscriber(email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[email] {
		return false, nil
	}
	m.subs[email] = true
	return true, nil
}

type fakeSearcher struct {
	results []serper.Result
}

func (f *fakeSearcher) SearchDiscussions(context.Context, string) ([]serper.Result, error) {
	return f.results, nil
}

func newTestRouter(store *memStore, searcher *fakeSearcher, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.New(store, searcher, stubllm.NewClient(), nil, nil, cfg.SiteBaseURL)
	h := NewHandlers(svc, cfg)

	r := gin.New()
	api := r.Group("/api/v1")
	api.POST("/generate-report", h.GenerateReport)
	api.GET("/reports", h.ListReports)
	api.GET("/reports/:id", h.GetReportByID)
	api.GET("/rapports/:slug", h.GetReportBySlug)
	api.POST("/subscribe", h.Subscribe)
	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)
	r.GET("/sitemap.xml", h.Sitemap)

	admin := api.Group("/admin")
	admin.POST("/login", h.AdminLogin)
	protected := admin.Group("", middleware.AdminAuth(cfg.AdminSecret, cfg.JWTSecret))
	protected.POST("/reports/:id/regenerate", h.AdminRegenerate)
	protected.PATCH("/reports/:id/category", h.AdminSetCategory)
	return r
}

func testConfig() *config.Config {
	return &config.Config{
		SiteBaseURL: "https://rapport-honnete.fr",
		AdminSecret: "s3cret",
		JWTSecret:   "jwt-key",
	}
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]any
	if strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

func TestGenerateReportEndpoint(t *testing.T) {
	store := newMemStore()
	searcher := &fakeSearcher{results: []serper.Result{
		{Title: "Avis iPhone 13", Link: "https://www.reddit.com/r/france/1", Snippet: "solide"},
	}}
	r := newTestRouter(store, searcher, testConfig())

	w, body := doJSON(t, r, http.MethodPost, "/api/v1/generate-report", `{"keyword": "iphone 13"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if body["cached"] != false || body["success"] != true {
		t.Fatalf("body: %v", body)
	}
	report, ok := body["report"].(map[string]any)
	if !ok {
		t.Fatalf("missing report: %v", body)
	}
	if report["image_url"] != nil {
		t.Fatalf("image_url must be null on first response: %v", report["image_url"])
	}

	// Same keyword again is served from the store.
	w, body = doJSON(t, r, http.MethodPost, "/api/v1/generate-report", `{"keyword": "IPHONE-13"}`, nil)
	if w.Code != http.StatusOK || body["cached"] != true {
		t.Fatalf("expected cache hit: %d %v", w.Code, body)
	}
}

func TestGenerateReportEndpointErrors(t *testing.T) {
	store := newMemStore()
	r := newTestRouter(store, &fakeSearcher{results: nil}, testConfig())

	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/generate-report", `{"keyword": "   "}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty keyword: status %d", w.Code)
	}

	w, body := doJSON(t, r, http.MethodPost, "/api/v1/generate-report", `{"keyword": "produit inconnu"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("no discussions: status %d", w.Code)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "Aucune discussion") {
		t.Fatalf("error message: %v", body)
	}
	if len(store.reports) != 0 {
		t.Fatal("nothing should be stored on 404")
	}
}

func TestGetReportRoutes(t *testing.T) {
	store := newMemStore()
	_ = store.InsertReport(&models.Report{
		NormalizedProductName: "dyson v15",
		ProductName:           "Dyson V15",
		Content:               models.ReportContent{Title: "Dyson V15", Slug: "dyson-v15"},
		Category:              "Électronique",
	})
	r := newTestRouter(store, &fakeSearcher{}, testConfig())

	w, _ := doJSON(t, r, http.MethodGet, "/api/v1/reports/1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("by id: status %d", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/rapports/dyson-v15", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("by slug: status %d", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/rapports/introuvable", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing slug: status %d", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/reports/abc", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status %d", w.Code)
	}
}

func TestSubscribeEndpoint(t *testing.T) {
	r := newTestRouter(newMemStore(), &fakeSearcher{}, testConfig())

	w, body := doJSON(t, r, http.MethodPost, "/api/v1/subscribe", `{"email": "lecteur@example.com"}`, nil)
	if w.Code != http.StatusOK || body["created"] != true {
		t.Fatalf("subscribe: %d %v", w.Code, body)
	}
	w, body = doJSON(t, r, http.MethodPost, "/api/v1/subscribe", `{"email": "lecteur@example.com"}`, nil)
	if w.Code != http.StatusOK || body["created"] != false {
		t.Fatalf("duplicate subscribe: %d %v", w.Code, body)
	}
	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/subscribe", `{"email": "pas-un-email"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid email: status %d", w.Code)
	}
}

func TestSitemap(t *testing.T) {
	store := newMemStore()
	_ = store.InsertReport(&models.Report{
		NormalizedProductName: "dyson v15",
		Content:               models.ReportContent{Title: "Dyson V15", Slug: "dyson-v15"},
	})
	r := newTestRouter(store, &fakeSearcher{}, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/sitemap.xml", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	out := w.Body.String()
	if !strings.Contains(out, "<urlset") || !strings.Contains(out, "https://rapport-honnete.fr/rapports/dyson-v15") {
		t.Fatalf("sitemap body: %s", out)
	}
	if !strings.Contains(out, "<lastmod>2024-06-01</lastmod>") {
		t.Fatalf("missing lastmod: %s", out)
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	store := newMemStore()
	_ = store.InsertReport(&models.Report{
		NormalizedProductName: "dyson v15",
		Content:               models.ReportContent{Title: "Dyson V15", Slug: "dyson-v15"},
		Category:              "Services",
	})
	r := newTestRouter(store, &fakeSearcher{}, testConfig())

	w, _ := doJSON(t, r, http.MethodPatch, "/api/v1/admin/reports/1/category", `{"category": "Électronique"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no auth: status %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodPatch, "/api/v1/admin/reports/1/category", `{"category": "Électronique"}`,
		map[string]string{"X-Admin-Token": "s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("with secret: status %d body %s", w.Code, w.Body.String())
	}
	got, _ := store.GetReportByID(1)
	if got.Category != "Électronique" {
		t.Fatalf("category not updated: %q", got.Category)
	}

	w, _ = doJSON(t, r, http.MethodPatch, "/api/v1/admin/reports/1/category", `{"category": "Gadgets"}`,
		map[string]string{"X-Admin-Token": "s3cret"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid category: status %d", w.Code)
	}
}

func TestHealthAndStats(t *testing.T) {
	r := newTestRouter(newMemStore(), &fakeSearcher{}, testConfig())

	w, body := doJSON(t, r, http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", w.Code, body)
	}
	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: %d", w.Code)
	}
}
