package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mendsys/mend/pkg/memory"
)

// NewExperienceServer exposes the experience memory as an MCP toolset so
// other agents can consult past resolutions over Stdio.
func NewExperienceServer(name, version string, store memory.Store) *Server {
	s := NewServer(name, version)

	s.RegisterTool(
		mcp.NewTool("retrieve_experiences",
			mcp.WithDescription("Retrieve past incident resolutions for a category, best scored first."),
			mcp.WithString("category", mcp.Description("Incident category to match, e.g. cpu, memory, database.")),
			mcp.WithNumber("top_k", mcp.Description("Maximum number of experiences to return. Defaults to 3.")),
		),
		func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
			q := memory.Query{}
			if category, ok := args["category"].(string); ok {
				q.Category = category
			}
			if topK, ok := args["top_k"].(float64); ok {
				q.TopK = int(topK)
			}
			experiences, err := store.Retrieve(ctx, q)
			if err != nil {
				return toolError(err), nil
			}
			return toolJSON(map[string]interface{}{
				"count":       len(experiences),
				"experiences": experiences,
			})
		},
	)

	s.RegisterTool(
		mcp.NewTool("get_improvement_stats",
			mcp.WithDescription("Summarize resolution quality: totals, averages, best and latest scores."),
		),
		func(ctx context.Context, _ map[string]interface{}) (*mcp.CallToolResult, error) {
			stats, err := store.Stats(ctx)
			if err != nil {
				return toolError(err), nil
			}
			return toolJSON(stats)
		},
	)

	s.RegisterTool(
		mcp.NewTool("get_experience_timeline",
			mcp.WithDescription("List stored resolutions in order with cumulative score averages."),
		),
		func(ctx context.Context, _ map[string]interface{}) (*mcp.CallToolResult, error) {
			timeline, err := store.Timeline(ctx)
			if err != nil {
				return toolError(err), nil
			}
			return toolJSON(timeline)
		},
	)

	s.RegisterTool(
		mcp.NewTool("clear_experience_memory",
			mcp.WithDescription("Delete all stored experiences."),
		),
		func(ctx context.Context, _ map[string]interface{}) (*mcp.CallToolResult, error) {
			if err := store.Clear(ctx); err != nil {
				return toolError(err), nil
			}
			return toolJSON(map[string]string{"status": "cleared"})
		},
	)

	return s
}

func toolJSON(v interface{}) (*mcp.CallToolResult, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(encoded)}},
	}, nil
}

func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: fmt.Sprintf("tool failed: %v", err)}},
	}
}
