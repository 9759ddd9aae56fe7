package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"honest-report-service/category"
	"honest-report-service/keyword"
	"honest-report-service/models"
)

// defaultScore is used when the summarizer omits the score or returns
// something non-numeric.
const defaultScore = 50

// OffTopicError is returned when the summarizer refused to produce a report
// because the discussions did not actually cover the requested product.
type OffTopicError struct {
	Reason string
}

func (e *OffTopicError) Error() string {
	if e.Reason == "" {
		return "summarizer rejected the request as off-topic"
	}
	return "summarizer rejected the request: " + e.Reason
}

// Summary is the validated result of parsing a summarizer response.
type Summary struct {
	Content models.ReportContent
	Score   int
}

// llmReport mirrors the summarizer's JSON contract. Score is declared as
// json.RawMessage so that non-numeric values degrade to the default instead
// of failing the whole parse.
type llmReport struct {
	Error             string                 `json:"error"`
	Title             string                 `json:"title"`
	Consensus         string                 `json:"consensus"`
	Pros              []string               `json:"pros"`
	Cons              []string               `json:"cons"`
	TargetAudience    *models.TargetAudience `json:"target_audience"`
	Recommendations   []string               `json:"recommendations"`
	FinalVerdict      string                 `json:"final_verdict"`
	Score             json.RawMessage        `json:"score"`
	Category          string                 `json:"category"`
	Products          []string               `json:"products"`
	AmazonSearchQuery string                 `json:"amazonSearchQuery"`
}

// ExtractJSONFromMarkdown strips markdown code fences around a JSON payload.
// The response format is forced to JSON, but models still occasionally wrap
// the object in ``` markers.
func ExtractJSONFromMarkdown(response string) string {
	const marker = "```"

	startIdx := strings.Index(response, marker)
	if startIdx == -1 {
		startIdx = strings.Index(response, "{")
		if startIdx == -1 {
			return response
		}
		endIdx := strings.LastIndex(response, "}")
		if endIdx == -1 {
			return response
		}
		return strings.TrimSpace(response[startIdx : endIdx+1])
	}

	endIdx := strings.Index(response[startIdx+len(marker):], marker)
	if endIdx == -1 {
		return response
	}
	endIdx += startIdx + len(marker)

	content := response[startIdx+len(marker) : endIdx]
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 && (strings.TrimSpace(lines[0]) == "json" || strings.TrimSpace(lines[0]) == "") {
		content = strings.Join(lines[1:], "\n")
	}
	return strings.TrimSpace(content)
}

// ParseSummary parses a summarizer response into report content. kw is the
// user's keyword, used for the category fallback classifier. A response
// carrying the sentinel "error" field yields an *OffTopicError; any other
// parse failure is a hard error and nothing should be persisted.
func ParseSummary(response, kw string) (*Summary, error) {
	cleaned := ExtractJSONFromMarkdown(strings.TrimSpace(response))

	var raw llmReport
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse summarizer JSON: %w", err)
	}

	if raw.Error != "" {
		return nil, &OffTopicError{Reason: raw.Error}
	}
	if raw.Title == "" {
		return nil, errors.New("summarizer response missing title")
	}

	content := models.ReportContent{
		Title:             raw.Title,
		Slug:              keyword.Slugify(raw.Title),
		Consensus:         raw.Consensus,
		Pros:              raw.Pros,
		Cons:              raw.Cons,
		TargetAudience:    raw.TargetAudience,
		Recommendations:   raw.Recommendations,
		FinalVerdict:      raw.FinalVerdict,
		Products:          raw.Products,
		AmazonSearchQuery: raw.AmazonSearchQuery,
		Category:          category.Sanitize(raw.Category, kw),
	}
	applyLegacyFields(&content)

	return &Summary{
		Content: content,
		Score:   clampScore(raw.Score),
	}, nil
}

// applyLegacyFields materializes the older schema generation from the
// current one. The rendering layer still reads choice/defects/article/
// userProfiles/punchline, so both generations are stored side by side.
func applyLegacyFields(c *models.ReportContent) {
	c.Choice = c.Consensus
	c.Defects = c.Cons
	c.Punchline = c.FinalVerdict

	switch {
	case c.TargetAudience != nil:
		c.UserProfiles = []string{
			"Recommandé : " + c.TargetAudience.Yes,
			"À éviter : " + c.TargetAudience.No,
		}
	case len(c.Recommendations) > 0:
		c.UserProfiles = c.Recommendations
	}

	c.Article = assembleArticle(c)
}

// assembleArticle builds the long-form markdown narrative legacy pages
// render as the report body.
func assembleArticle(c *models.ReportContent) string {
	var sb strings.Builder

	if c.Consensus != "" {
		sb.WriteString("## Le consensus\n\n")
		sb.WriteString(c.Consensus)
		sb.WriteString("\n\n")
	}
	if len(c.Pros) > 0 {
		sb.WriteString("## Points forts\n\n")
		for _, p := range c.Pros {
			sb.WriteString("- ")
			sb.WriteString(p)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if len(c.Cons) > 0 {
		sb.WriteString("## Points faibles\n\n")
		for _, d := range c.Cons {
			sb.WriteString("- ")
			sb.WriteString(d)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if c.TargetAudience != nil {
		sb.WriteString("## Pour qui ?\n\n")
		fmt.Fprintf(&sb, "**Oui** : %s\n\n**Non** : %s\n\n", c.TargetAudience.Yes, c.TargetAudience.No)
	}
	if c.FinalVerdict != "" {
		sb.WriteString("## Verdict final\n\n")
		sb.WriteString(c.FinalVerdict)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// clampScore converts the raw score value to an int in [0,100]. Absent or
// non-numeric values default to 50.
func clampScore(raw json.RawMessage) int {
	if len(raw) == 0 || string(raw) == "null" {
		return defaultScore
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		// Some models quote the number; tolerate a numeric string.
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return defaultScore
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return defaultScore
		}
		f = parsed
	}

	score := int(f)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
