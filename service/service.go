// Package service orchestrates the report generation pipeline: keyword
// normalization, cache lookup, Reddit discussion search, LLM summarization,
// persistence and asynchronous image enrichment.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/apex/log"

	"honest-report-service/category"
	"honest-report-service/database"
	"honest-report-service/enrichment"
	"honest-report-service/keyword"
	"honest-report-service/llm"
	"honest-report-service/metrics"
	"honest-report-service/models"
	"honest-report-service/parser"
	"honest-report-service/serper"
)

var (
	// ErrEmptyKeyword is returned when the request carries no usable keyword.
	ErrEmptyKeyword = errors.New("empty keyword")
	// ErrNoDiscussions is returned when no Reddit discussions were found.
	ErrNoDiscussions = errors.New("no discussions found")
	// ErrNotFound is returned when the requested report does not exist.
	ErrNotFound = errors.New("report not found")
	// ErrInvalidEmail is returned for a malformed subscription address.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidCategory is returned for an unknown category value.
	ErrInvalidCategory = errors.New("invalid category")
	// ErrInvalidImageURL is returned for a non-http(s) image URL.
	ErrInvalidImageURL = errors.New("invalid image url")
)

// Store is the persistence surface the service needs. *database.Database
// satisfies it; tests use an in-memory fake.
type Store interface {
	GetReportByNormalizedName(name string) (*models.Report, error)
	GetReportByID(id int64) (*models.Report, error)
	GetReportBySlug(slug string) (*models.Report, error)
	InsertReport(r *models.Report) error
	UpdateReportImage(id int64, imageURL string) error
	UpdateReportContent(id int64, content models.ReportContent, score int) error
	UpdateReportSlug(id int64, slug string) error
	UpdateReportCategory(id int64, cat string) error
	ListReports(page, pageSize int) ([]models.Report, int, error)
	ListSlugs() ([]database.SlugEntry, error)
	ListReportsMissingImage(limit int) ([]models.Report, error)
	GetStats() (*database.Stats, error)
	InsertSubscriber(email string) (bool, error)
}

// Searcher is the discussion search surface. *serper.Client satisfies it.
type Searcher interface {
	SearchDiscussions(ctx context.Context, kw string) ([]serper.Result, error)
}

// WelcomeMailer sends the newsletter welcome email.
type WelcomeMailer interface {
	SendWelcomeEmail(recipientEmail, siteURL string) error
}

const maxSourcesPerReport = 5

// Service runs the generation pipeline and the admin operations around it.
type Service struct {
	store      Store
	searcher   Searcher
	summarizer llm.Summarizer
	queue      enrichment.Queue
	mailer     WelcomeMailer
	siteURL    string
}

// New wires the pipeline. mailer may be nil when SendGrid is not configured.
func New(store Store, searcher Searcher, summarizer llm.Summarizer, queue enrichment.Queue, mailer WelcomeMailer, siteURL string) *Service {
	return &Service{
		store:      store,
		searcher:   searcher,
		summarizer: summarizer,
		queue:      queue,
		mailer:     mailer,
		siteURL:    strings.TrimRight(siteURL, "/"),
	}
}

// GenerateReport runs the full pipeline for a raw user keyword. An existing
// report for the same normalized name is returned as-is without touching the
// search or LLM gateways.
func (s *Service) GenerateReport(ctx context.Context, rawKeyword string) (*models.GenerateResponse, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.GenerationsTotal.WithLabelValues(outcome).Inc()
		metrics.GenerationDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	rawKeyword = strings.TrimSpace(rawKeyword)
	if rawKeyword == "" {
		outcome = "empty_keyword"
		return nil, ErrEmptyKeyword
	}

	kw := keyword.ExtractMainKeyword(rawKeyword)
	norm := keyword.Normalize(kw)
	if norm == "" {
		outcome = "empty_keyword"
		return nil, ErrEmptyKeyword
	}

	existing, err := s.store.GetReportByNormalizedName(norm)
	if err != nil {
		outcome = "store_error"
		return nil, fmt.Errorf("lookup report: %w", err)
	}
	if existing != nil {
		outcome = "cached"
		metrics.CacheHitsTotal.Inc()
		log.Infof("report for %q already exists (id=%d), returning cached", norm, existing.ID)
		return &models.GenerateResponse{
			Success:  true,
			Report:   existing,
			Cached:   true,
			Redirect: s.reportPath(existing),
		}, nil
	}

	discussions, err := s.searcher.SearchDiscussions(ctx, kw)
	if err != nil {
		outcome = "search_error"
		metrics.SearchRequestsTotal.WithLabelValues("discussions", "error").Inc()
		return nil, fmt.Errorf("search discussions: %w", err)
	}
	metrics.SearchRequestsTotal.WithLabelValues("discussions", "success").Inc()
	if len(discussions) == 0 {
		outcome = "no_discussions"
		return nil, ErrNoDiscussions
	}

	response, err := s.summarizer.Summarize(ctx, kw, discussions)
	if err != nil {
		outcome = "llm_error"
		metrics.LLMRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("summarize with %s: %w", s.summarizer.SourceName(), err)
	}
	metrics.LLMRequestsTotal.WithLabelValues("success").Inc()

	summary, err := parser.ParseSummary(response, kw)
	if err != nil {
		var offTopic *parser.OffTopicError
		if errors.As(err, &offTopic) {
			outcome = "off_topic"
		} else {
			outcome = "parse_error"
		}
		return nil, err
	}

	summary.Content.Sources = sourcesFromDiscussions(discussions)

	report := &models.Report{
		NormalizedProductName: norm,
		ProductName:           summary.Content.Title,
		Keyword:               kw,
		Content:               summary.Content,
		Score:                 summary.Score,
		Category:              summary.Content.Category,
	}
	if err := s.store.InsertReport(report); err != nil {
		outcome = "store_error"
		return nil, fmt.Errorf("insert report: %w", err)
	}

	s.enqueueImageJob(report)

	outcome = "success"
	log.Infof("report generated for %q (id=%d, score=%d, category=%s)", kw, report.ID, report.Score, report.Category)
	return &models.GenerateResponse{
		Success:  true,
		Report:   report,
		Cached:   false,
		Redirect: s.reportPath(report),
	}, nil
}

// RegenerateReport re-runs search and summarization for an existing report,
// keeping its slug so published URLs do not break.
func (s *Service) RegenerateReport(ctx context.Context, id int64) (*models.Report, error) {
	report, err := s.store.GetReportByID(id)
	if err != nil {
		return nil, fmt.Errorf("lookup report: %w", err)
	}
	if report == nil {
		return nil, ErrNotFound
	}

	kw := report.Keyword
	if kw == "" {
		kw = report.ProductName
	}

	discussions, err := s.searcher.SearchDiscussions(ctx, kw)
	if err != nil {
		return nil, fmt.Errorf("search discussions: %w", err)
	}
	if len(discussions) == 0 {
		return nil, ErrNoDiscussions
	}

	response, err := s.summarizer.Summarize(ctx, kw, discussions)
	if err != nil {
		return nil, fmt.Errorf("summarize with %s: %w", s.summarizer.SourceName(), err)
	}
	summary, err := parser.ParseSummary(response, kw)
	if err != nil {
		return nil, err
	}

	// Published URL stays stable across regenerations.
	hadSlug := report.Content.Slug != ""
	if hadSlug {
		summary.Content.Slug = report.Content.Slug
	}
	summary.Content.Sources = sourcesFromDiscussions(discussions)

	if err := s.store.UpdateReportContent(id, summary.Content, summary.Score); err != nil {
		return nil, fmt.Errorf("update report content: %w", err)
	}
	// A report stored without a slug gets the freshly derived one written to
	// the slug column too, so slug lookups can find it.
	if !hadSlug && summary.Content.Slug != "" {
		if err := s.store.UpdateReportSlug(id, summary.Content.Slug); err != nil {
			return nil, fmt.Errorf("update report slug: %w", err)
		}
	}
	if summary.Content.Category != report.Category {
		if err := s.store.UpdateReportCategory(id, summary.Content.Category); err != nil {
			return nil, fmt.Errorf("update report category: %w", err)
		}
	}

	updated, err := s.store.GetReportByID(id)
	if err != nil {
		return nil, fmt.Errorf("reload report: %w", err)
	}
	if updated == nil {
		return nil, ErrNotFound
	}
	if updated.ImageURL == nil {
		s.enqueueImageJob(updated)
	}
	log.Infof("report %d regenerated (score=%d)", id, summary.Score)
	return updated, nil
}

// GetReportByID fetches a report or ErrNotFound.
func (s *Service) GetReportByID(id int64) (*models.Report, error) {
	report, err := s.store.GetReportByID(id)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, ErrNotFound
	}
	return report, nil
}

// GetReportBySlug fetches a report by its URL slug or ErrNotFound.
func (s *Service) GetReportBySlug(slug string) (*models.Report, error) {
	report, err := s.store.GetReportBySlug(slug)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, ErrNotFound
	}
	return report, nil
}

// ListReports returns one page of reports plus the total count.
func (s *Service) ListReports(page, pageSize int) ([]models.Report, int, error) {
	return s.store.ListReports(page, pageSize)
}

// ListSlugs returns slug/update pairs for the sitemap.
func (s *Service) ListSlugs() ([]database.SlugEntry, error) {
	return s.store.ListSlugs()
}

// Stats returns aggregate counters for the admin dashboard.
func (s *Service) Stats() (*database.Stats, error) {
	return s.store.GetStats()
}

// SetReportImage sets the image URL on a report, overriding enrichment.
func (s *Service) SetReportImage(id int64, imageURL string) error {
	imageURL = strings.TrimSpace(imageURL)
	if !strings.HasPrefix(imageURL, "http://") && !strings.HasPrefix(imageURL, "https://") {
		return ErrInvalidImageURL
	}
	report, err := s.store.GetReportByID(id)
	if err != nil {
		return err
	}
	if report == nil {
		return ErrNotFound
	}
	return s.store.UpdateReportImage(id, imageURL)
}

// SetReportCategory overrides a report's category, keeping column and
// content in sync.
func (s *Service) SetReportCategory(id int64, cat string) error {
	if !category.Valid(cat) {
		return ErrInvalidCategory
	}
	report, err := s.store.GetReportByID(id)
	if err != nil {
		return err
	}
	if report == nil {
		return ErrNotFound
	}
	report.Content.Category = cat
	if err := s.store.UpdateReportContent(id, report.Content, report.Score); err != nil {
		return err
	}
	return s.store.UpdateReportCategory(id, cat)
}

// BackfillImages enqueues enrichment jobs for reports without an image.
// Returns the number of jobs enqueued.
func (s *Service) BackfillImages(limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	reports, err := s.store.ListReportsMissingImage(limit)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for i := range reports {
		if s.tryEnqueueImageJob(&reports[i]) {
			enqueued++
		}
	}
	return enqueued, nil
}

// BackfillCategories re-detects the category for reports whose stored value
// is missing or unknown. Returns the number of reports updated.
func (s *Service) BackfillCategories() (int, error) {
	updated := 0
	pageSize := 100
	for page := 1; ; page++ {
		reports, total, err := s.store.ListReports(page, pageSize)
		if err != nil {
			return updated, err
		}
		for i := range reports {
			r := &reports[i]
			if category.Valid(r.Category) {
				continue
			}
			detected := category.Detect(r.Keyword + " " + r.ProductName)
			if err := s.store.UpdateReportCategory(r.ID, detected); err != nil {
				log.WithError(err).Warnf("category backfill failed for report %d", r.ID)
				continue
			}
			updated++
		}
		if page*pageSize >= total || len(reports) == 0 {
			return updated, nil
		}
	}
}

// Subscribe registers a newsletter address. Returns false when the address
// was already registered. The welcome email is sent asynchronously.
func (s *Service) Subscribe(address string) (bool, error) {
	address = strings.TrimSpace(strings.ToLower(address))
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return false, ErrInvalidEmail
	}

	created, err := s.store.InsertSubscriber(address)
	if err != nil {
		return false, fmt.Errorf("insert subscriber: %w", err)
	}
	if created && s.mailer != nil {
		go func() {
			if err := s.mailer.SendWelcomeEmail(address, s.siteURL); err != nil {
				log.WithError(err).Warnf("welcome email failed for %s", address)
			}
		}()
	}
	return created, nil
}

func (s *Service) reportPath(r *models.Report) string {
	if r.Content.Slug != "" {
		return "/rapports/" + r.Content.Slug
	}
	return fmt.Sprintf("/rapports/%d", r.ID)
}

func (s *Service) enqueueImageJob(r *models.Report) {
	s.tryEnqueueImageJob(r)
}

func (s *Service) tryEnqueueImageJob(r *models.Report) bool {
	if s.queue == nil {
		return false
	}
	job := enrichment.Job{
		ReportID:   r.ID,
		Candidates: imageCandidates(r),
	}
	if len(job.Candidates) == 0 {
		return false
	}
	if err := s.queue.Enqueue(job); err != nil {
		log.WithError(err).Warnf("image enrichment enqueue failed for report %d", r.ID)
		return false
	}
	return true
}

func imageCandidates(r *models.Report) []string {
	candidates := []string{r.Content.Title, r.Keyword}
	if len(r.Content.Products) > 0 {
		candidates = append(candidates, r.Content.Products[0])
	}
	candidates = append(candidates, r.Content.AmazonSearchQuery)

	seen := make(map[string]bool)
	var out []string
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || seen[strings.ToLower(candidate)] {
			continue
		}
		seen[strings.ToLower(candidate)] = true
		out = append(out, candidate)
	}
	return out
}

func sourcesFromDiscussions(discussions []serper.Result) []models.Source {
	n := len(discussions)
	if n > maxSourcesPerReport {
		n = maxSourcesPerReport
	}
	sources := make([]models.Source, 0, n)
	for _, d := range discussions[:n] {
		sources = append(sources, models.Source{
			Title:   d.Title,
			Link:    d.Link,
			Snippet: d.Snippet,
		})
	}
	return sources
}
