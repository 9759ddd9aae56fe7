package stubllm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"honest-report-service/category"
	"honest-report-service/serper"
)

// Client is a deterministic, no-network Summarizer stub intended for CI and
// local end-to-end tests. It returns schema-valid JSON so downstream parsing
// + DB writes exercise the full pipeline.
type Client struct{}

func NewClient() *Client { return &Client{} }

func (c *Client) SourceName() string { return "Stub" }

func (c *Client) Summarize(ctx context.Context, keyword string, discussions []serper.Result) (string, error) {
	// Deterministic per-input output so the pipeline is stable in CI.
	var seed string
	for _, d := range discussions {
		seed += d.Title + d.Snippet
	}
	sum := sha256.Sum256([]byte(keyword + seed))
	short := hex.EncodeToString(sum[:8])

	out := map[string]any{
		"title":     fmt.Sprintf("Rapport stub : %s (%s)", keyword, short),
		"consensus": fmt.Sprintf("Consensus stub généré à partir de %d discussions.", len(discussions)),
		"pros":      []string{`Point fort stub : "extrait positif"`},
		"cons":      []string{`Point faible stub : "extrait négatif"`},
		"target_audience": map[string]string{
			"yes": "Profils de test",
			"no":  "Environnements de production",
		},
		"final_verdict":     "Verdict stub.",
		"score":             55,
		"category":          category.Detect(keyword),
		"products":          []string{keyword},
		"amazonSearchQuery": keyword,
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
