package llm

import (
	"context"

	"honest-report-service/serper"
)

// Summarizer abstracts the LLM provider used to turn Reddit discussions into
// an honesty report. Implementations must be concurrency-safe.
type Summarizer interface {
	// Summarize takes the search keyword and the discussion snippets and
	// returns a single JSON document per the report schema.
	Summarize(ctx context.Context, keyword string, discussions []serper.Result) (string, error)
	// SourceName returns a short provider label (e.g. "ChatGPT", "Stub").
	SourceName() string
}
