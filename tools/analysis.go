package tools

import (
	"context"
	"fmt"
)

// WriteAnalysisTool writes one cell of a structured analysis table. It is a
// mutating tool: the result payload is validated against the output schema
// before the engine reports success.
type WriteAnalysisTool struct {
	Writer AnalysisWriter
}

func (t *WriteAnalysisTool) ToolName() string {
	return "write_analysis"
}

func (t *WriteAnalysisTool) ToolDescription() string {
	return "Writes an extracted value into the analysis table for one item and one column. Supports an optional idempotency_key to make retries safe."
}

func (t *WriteAnalysisTool) ToolParamSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"item_id": {
				Type:        TypeString,
				Description: "Id of the item the value belongs to",
			},
			"column": {
				Type:        TypeString,
				Description: "Analysis table column name (e.g. 'method', 'sample_size')",
			},
			"value": {
				Type:        TypeString,
				Description: "Extracted value for the cell",
			},
			"idempotency_key": {
				Type:        TypeString,
				Description: "Optional key so a retried write does not duplicate",
			},
		},
		Required: []string{"item_id", "column", "value"},
	}
}

func (t *WriteAnalysisTool) ToolSideEffect() SideEffect {
	return SideEffectWrite
}

func (t *WriteAnalysisTool) ToolOutputSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"item_id": {Type: TypeString},
			"column":  {Type: TypeString},
			"status":  {Type: TypeString},
		},
		Required: []string{"item_id", "column", "status"},
	}
}

func (t *WriteAnalysisTool) Call(ctx context.Context, inv Invocation) (any, error) {
	row := AnalysisRow{
		ItemID: stringArg(inv.Args, "item_id"),
		Column: stringArg(inv.Args, "column"),
		Value:  stringArg(inv.Args, "value"),
	}

	if err := t.Writer.WriteAnalysis(ctx, inv.Owner, row); err != nil {
		return nil, fmt.Errorf("write analysis for '%s': %w", row.ItemID, err)
	}

	return map[string]any{
		"item_id": row.ItemID,
		"column":  row.Column,
		"status":  "written",
	}, nil
}

// SaveSummaryTool persists a per-item summary.
type SaveSummaryTool struct {
	Writer AnalysisWriter
}

func (t *SaveSummaryTool) ToolName() string {
	return "save_summary"
}

func (t *SaveSummaryTool) ToolDescription() string {
	return "Saves a short summary for an item in the current project."
}

func (t *SaveSummaryTool) ToolParamSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"item_id": {
				Type:        TypeString,
				Description: "Id of the item being summarized",
			},
			"summary": {
				Type:        TypeString,
				Description: "Summary text",
			},
		},
		Required: []string{"item_id", "summary"},
	}
}

func (t *SaveSummaryTool) ToolSideEffect() SideEffect {
	return SideEffectWrite
}

func (t *SaveSummaryTool) ToolOutputSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"item_id": {Type: TypeString},
			"status":  {Type: TypeString},
		},
		Required: []string{"item_id", "status"},
	}
}

func (t *SaveSummaryTool) Call(ctx context.Context, inv Invocation) (any, error) {
	itemID := stringArg(inv.Args, "item_id")
	summary := stringArg(inv.Args, "summary")

	if err := t.Writer.SaveSummary(ctx, inv.Owner, itemID, summary); err != nil {
		return nil, fmt.Errorf("save summary for '%s': %w", itemID, err)
	}

	return map[string]any{
		"item_id": itemID,
		"status":  "saved",
	}, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
