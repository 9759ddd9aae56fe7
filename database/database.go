package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"

	"honest-report-service/config"
	"honest-report-service/models"
)

// Database represents the database connection.
type Database struct {
	db *sql.DB
}

// NewDatabase opens the MySQL connection and waits for it to become
// reachable with exponential backoff.
func NewDatabase(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	waitInterval := 1 * time.Second
	for {
		if err := db.Ping(); err == nil {
			break
		} else {
			log.WithError(err).Warnf("Database connection failed, retrying in %v", waitInterval)
		}
		time.Sleep(waitInterval)
		if waitInterval < 30*time.Second {
			waitInterval *= 2
		}
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Database{db: db}, nil
}

// NewFromDB wraps an existing connection; used by tests with sqlmock.
func NewFromDB(db *sql.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// GetDB returns the underlying sql.DB for health checks.
func (d *Database) GetDB() *sql.DB {
	return d.db
}

const reportColumns = `id, normalized_product_name, product_name, keyword, content, score, category, image_url, created_at, updated_at`

// scanReport reads one row into a Report, decoding the JSON content blob
// and mapping a NULL image_url onto a nil pointer.
func scanReport(row interface{ Scan(...any) error }) (*models.Report, error) {
	var (
		r          models.Report
		contentRaw []byte
		imageURL   sql.NullString
	)
	err := row.Scan(
		&r.ID,
		&r.NormalizedProductName,
		&r.ProductName,
		&r.Keyword,
		&contentRaw,
		&r.Score,
		&r.Category,
		&imageURL,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(contentRaw, &r.Content); err != nil {
		return nil, fmt.Errorf("failed to decode report content: %w", err)
	}
	if imageURL.Valid {
		r.ImageURL = &imageURL.String
	}
	return &r, nil
}

// GetReportByNormalizedName is the cache lookup of the pipeline. A missing
// row returns (nil, nil): a cache miss is an expected state, not an error.
func (d *Database) GetReportByNormalizedName(name string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE normalized_product_name = ?`
	report, err := scanReport(d.db.QueryRow(query, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report by normalized name: %w", err)
	}
	return report, nil
}

// GetReportByID fetches a report by primary key.
func (d *Database) GetReportByID(id int64) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = ?`
	report, err := scanReport(d.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report by id: %w", err)
	}
	return report, nil
}

// GetReportBySlug fetches a report by its URL slug.
func (d *Database) GetReportBySlug(slug string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE slug = ?`
	report, err := scanReport(d.db.QueryRow(query, slug))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report by slug: %w", err)
	}
	return report, nil
}

// InsertReport persists a freshly generated report without an image. The
// normalized name carries a unique constraint and the insert upserts on it,
// so two concurrent generations of the same keyword converge on a single
// row instead of creating duplicates; the report ID is filled in either way.
func (d *Database) InsertReport(r *models.Report) error {
	contentRaw, err := json.Marshal(r.Content)
	if err != nil {
		return fmt.Errorf("failed to encode report content: %w", err)
	}

	query := `
	INSERT INTO reports (normalized_product_name, product_name, keyword, slug, content, score, category)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id)`

	res, err := d.db.Exec(query,
		r.NormalizedProductName,
		r.ProductName,
		r.Keyword,
		r.Content.Slug,
		contentRaw,
		r.Score,
		r.Category,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted report id: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	r.ID = id

	// MySQL reports exactly 1 affected row for a fresh insert. Anything else
	// means the unique key already existed and a concurrent generation won
	// the race; load the stored row so the caller returns what the winner
	// actually persisted, not its own discarded content.
	if affected != 1 {
		winner, err := d.GetReportByID(id)
		if err != nil {
			return fmt.Errorf("failed to load existing report: %w", err)
		}
		if winner != nil {
			*r = *winner
		}
	}
	return nil
}

// UpdateReportImage records the image found by background enrichment.
func (d *Database) UpdateReportImage(id int64, imageURL string) error {
	_, err := d.db.Exec(`UPDATE reports SET image_url = ? WHERE id = ?`, imageURL, id)
	if err != nil {
		return fmt.Errorf("failed to update report image: %w", err)
	}
	return nil
}

// UpdateReportContent replaces the content blob and score of an existing
// report. The stored slug is intentionally left untouched: URLs must never
// change once a report has been published.
func (d *Database) UpdateReportContent(id int64, content models.ReportContent, score int) error {
	contentRaw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to encode report content: %w", err)
	}
	_, err = d.db.Exec(`UPDATE reports SET content = ?, score = ? WHERE id = ?`, contentRaw, score, id)
	if err != nil {
		return fmt.Errorf("failed to update report content: %w", err)
	}
	return nil
}

// UpdateReportSlug backfills the slug column for a report that was stored
// without one, so slug lookups find it under its advertised URL.
func (d *Database) UpdateReportSlug(id int64, slug string) error {
	_, err := d.db.Exec(`UPDATE reports SET slug = ? WHERE id = ?`, slug, id)
	if err != nil {
		return fmt.Errorf("failed to update report slug: %w", err)
	}
	return nil
}

// UpdateReportCategory corrects the category of an existing report.
func (d *Database) UpdateReportCategory(id int64, cat string) error {
	_, err := d.db.Exec(`UPDATE reports SET category = ? WHERE id = ?`, cat, id)
	if err != nil {
		return fmt.Errorf("failed to update report category: %w", err)
	}
	return nil
}

// ListReports returns one page of reports, newest first, plus the total
// count for pagination.
func (d *Database) ListReports(page, pageSize int) ([]models.Report, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM reports`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := d.db.Query(query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, *r)
	}
	return reports, total, rows.Err()
}

// SlugEntry is one sitemap entry.
type SlugEntry struct {
	Slug      string
	UpdatedAt time.Time
}

// ListSlugs returns every report slug with its last update time, for the
// sitemap.
func (d *Database) ListSlugs() ([]SlugEntry, error) {
	rows, err := d.db.Query(`SELECT slug, updated_at FROM reports ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list slugs: %w", err)
	}
	defer rows.Close()

	var entries []SlugEntry
	for rows.Next() {
		var e SlugEntry
		if err := rows.Scan(&e.Slug, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListReportsMissingImage returns up to limit reports without an image, for
// the admin image backfill.
func (d *Database) ListReportsMissingImage(limit int) ([]models.Report, error) {
	if limit < 1 {
		limit = 100
	}
	query := `SELECT ` + reportColumns + ` FROM reports WHERE image_url IS NULL ORDER BY created_at ASC LIMIT ?`
	rows, err := d.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports missing image: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// Stats summarizes the report corpus for the admin dashboard.
type Stats struct {
	TotalReports    int            `json:"total_reports"`
	WithImage       int            `json:"with_image"`
	MissingImage    int            `json:"missing_image"`
	ByCategory      map[string]int `json:"by_category"`
	SubscriberCount int            `json:"subscriber_count"`
}

// GetStats gathers counts for the stats endpoint.
func (d *Database) GetStats() (*Stats, error) {
	s := &Stats{ByCategory: make(map[string]int)}

	if err := d.db.QueryRow(`SELECT COUNT(*) FROM reports`).Scan(&s.TotalReports); err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM reports WHERE image_url IS NOT NULL`).Scan(&s.WithImage); err != nil {
		return nil, fmt.Errorf("failed to count reports with image: %w", err)
	}
	s.MissingImage = s.TotalReports - s.WithImage

	rows, err := d.db.Query(`SELECT category, COUNT(*) FROM reports GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var count int
		if err := rows.Scan(&cat, &count); err != nil {
			continue
		}
		s.ByCategory[cat] = count
	}

	if err := d.db.QueryRow(`SELECT COUNT(*) FROM subscribers`).Scan(&s.SubscriberCount); err != nil {
		// The subscribers table is optional; report zero rather than fail.
		log.WithError(err).Debug("subscriber count unavailable")
	}
	return s, nil
}

// InsertSubscriber stores a newsletter signup. Returns false when the email
// was already subscribed.
func (d *Database) InsertSubscriber(email string) (bool, error) {
	res, err := d.db.Exec(`INSERT IGNORE INTO subscribers (email) VALUES (?)`, email)
	if err != nil {
		return false, fmt.Errorf("failed to insert subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read subscriber insert result: %w", err)
	}
	return n > 0, nil
}
