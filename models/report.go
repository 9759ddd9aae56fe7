package models

import (
	"time"
)

// Source is one Reddit discussion the summarizer worked from.
type Source struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// TargetAudience describes who the product is and is not for.
type TargetAudience struct {
	Yes string `json:"yes"`
	No  string `json:"no"`
}

// ReportContent is the structured document produced by the summarizer.
//
// Two schema generations are stored side by side: the current contract
// (consensus/pros/cons/target_audience/final_verdict) and the legacy field
// set (choice/defects/article/userProfiles/punchline) that older rendering
// code still reads. The parser fills both from a single LLM response.
type ReportContent struct {
	Title string `json:"title"`
	Slug  string `json:"slug"`

	// Current generation.
	Consensus      string          `json:"consensus,omitempty"`
	Pros           []string        `json:"pros,omitempty"`
	Cons           []string        `json:"cons,omitempty"`
	TargetAudience *TargetAudience `json:"target_audience,omitempty"`
	FinalVerdict   string          `json:"final_verdict,omitempty"`

	// Legacy generation, derived from the fields above.
	Choice       string   `json:"choice,omitempty"`
	Defects      []string `json:"defects,omitempty"`
	Article      string   `json:"article,omitempty"`
	UserProfiles []string `json:"userProfiles,omitempty"`
	Punchline    string   `json:"punchline,omitempty"`

	Recommendations   []string `json:"recommendations,omitempty"`
	Products          []string `json:"products,omitempty"`
	AmazonSearchQuery string   `json:"amazonSearchQuery,omitempty"`
	Category          string   `json:"category,omitempty"`
	Sources           []Source `json:"sources,omitempty"`
}

// Report is a persisted honesty report, one row per normalized product name.
type Report struct {
	ID                    int64         `json:"id"`
	NormalizedProductName string        `json:"normalized_product_name"`
	ProductName           string        `json:"product_name"`
	Keyword               string        `json:"keyword"`
	Content               ReportContent `json:"content"`
	Score                 int           `json:"score"`
	Category              string        `json:"category"`
	// ImageURL stays nil until background enrichment finds an image.
	// A nil value is a normal state, not an error.
	ImageURL  *string   `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscriber is a newsletter signup.
type Subscriber struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerateRequest is the body of POST /generate-report.
type GenerateRequest struct {
	Keyword string `json:"keyword"`
}

// GenerateResponse is the success body of POST /generate-report.
type GenerateResponse struct {
	Success  bool    `json:"success"`
	Report   *Report `json:"report"`
	Cached   bool    `json:"cached"`
	Redirect string  `json:"redirect,omitempty"`
}
