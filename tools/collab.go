package tools

import "context"

// The interfaces below are the narrow seams to the collaborating services
// that own retrieval, the paper library, and the analysis tables. The engine
// treats them as opaque; tests use in-memory fakes.

// PaperHit is one ranked retrieval result.
type PaperHit struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Snippet  string            `json:"snippet,omitempty"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Searcher is the retrieval collaborator.
type Searcher interface {
	Search(ctx context.Context, query string, filters map[string]string, topK int) ([]PaperHit, error)
}

// Paper is a stored item with its extracted content.
type Paper struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Authors  string `json:"authors,omitempty"`
	Year     int    `json:"year,omitempty"`
	Abstract string `json:"abstract,omitempty"`
	Body     string `json:"body,omitempty"`
}

// Library is the collaborator that owns projects and their saved items.
// Every call is scoped by owner; implementations must not leak items across
// owners.
type Library interface {
	GetPaper(ctx context.Context, owner, paperID string) (*Paper, error)
	ListItems(ctx context.Context, owner string, scope []string) ([]string, error)
}

// AnalysisRow is one cell write into a structured analysis table.
type AnalysisRow struct {
	ItemID string `json:"item_id"`
	Column string `json:"column"`
	Value  string `json:"value"`
}

// AnalysisWriter is the collaborator that persists analysis output.
type AnalysisWriter interface {
	WriteAnalysis(ctx context.Context, owner string, row AnalysisRow) error
	SaveSummary(ctx context.Context, owner, itemID, summary string) error
}
