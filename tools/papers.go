package tools

import (
	"context"
	"fmt"
)

// SearchPapersTool queries the retrieval collaborator.
type SearchPapersTool struct {
	Searcher Searcher
}

func (t *SearchPapersTool) ToolName() string {
	return "search_papers"
}

func (t *SearchPapersTool) ToolDescription() string {
	return "Searches the paper corpus for passages relevant to a query. Returns ranked hits with ids, titles, and snippets."
}

func (t *SearchPapersTool) ToolParamSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"query": {
				Type:        TypeString,
				Description: "Natural-language search query",
			},
			"top_k": {
				Type:        TypeInteger,
				Description: "Maximum number of hits to return (default 5)",
			},
		},
		Required: []string{"query"},
	}
}

func (t *SearchPapersTool) ToolSideEffect() SideEffect {
	return SideEffectRead
}

func (t *SearchPapersTool) Call(ctx context.Context, inv Invocation) (any, error) {
	query, _ := inv.Args["query"].(string)
	topK := intArg(inv.Args, "top_k", 5)

	hits, err := t.Searcher.Search(ctx, query, nil, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	return map[string]any{
		"hits":  hits,
		"count": len(hits),
	}, nil
}

// GetPaperTool fetches a single stored item from the library collaborator.
type GetPaperTool struct {
	Library Library
}

func (t *GetPaperTool) ToolName() string {
	return "get_paper"
}

func (t *GetPaperTool) ToolDescription() string {
	return "Fetches a saved paper by id, including its extracted abstract and body text."
}

func (t *GetPaperTool) ToolParamSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"paper_id": {
				Type:        TypeString,
				Description: "Id of the paper to fetch",
			},
		},
		Required: []string{"paper_id"},
	}
}

func (t *GetPaperTool) ToolSideEffect() SideEffect {
	return SideEffectRead
}

func (t *GetPaperTool) Call(ctx context.Context, inv Invocation) (any, error) {
	paperID, _ := inv.Args["paper_id"].(string)

	paper, err := t.Library.GetPaper(ctx, inv.Owner, paperID)
	if err != nil {
		return nil, fmt.Errorf("get paper '%s': %w", paperID, err)
	}

	return paper, nil
}

// ListItemsTool lists the item ids inside the session's scope.
type ListItemsTool struct {
	Library Library
}

func (t *ListItemsTool) ToolName() string {
	return "list_items"
}

func (t *ListItemsTool) ToolDescription() string {
	return "Lists the ids of the items in the current project scope."
}

func (t *ListItemsTool) ToolParamSchema() Schema {
	return Schema{
		Type:       TypeObject,
		Properties: PropertyMap{},
	}
}

func (t *ListItemsTool) ToolSideEffect() SideEffect {
	return SideEffectRead
}

func (t *ListItemsTool) Call(ctx context.Context, inv Invocation) (any, error) {
	ids, err := t.Library.ListItems(ctx, inv.Owner, inv.Scope)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	return map[string]any{
		"item_ids": ids,
		"count":    len(ids),
	}, nil
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}
