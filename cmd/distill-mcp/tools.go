package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/distill/internal/config"
	"github.com/vthunder/distill/internal/entity"
	"github.com/vthunder/distill/internal/normalize"
	"github.com/vthunder/distill/internal/status"
)

const defaultLimit = 50

type tools struct {
	cfg *config.Config
}

func register(s *server.MCPServer, t *tools) {
	s.AddTool(statusTool(), t.handleStatus)
	s.AddTool(normalizeTool(), t.handleNormalize)
	s.AddTool(entitiesTool(), t.handleEntities)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("pipeline_status",
		mcp.WithDescription("Summarize pipeline progress: processed and failed sessions, auxiliary sources, extraction cost, record counts per entity type before and after merging, graph backups and the run currently holding the lock."),
	)
}

func (t *tools) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, err := status.Collect(t.cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read status: %v", err)), nil
	}
	return jsonResult(s)
}

func normalizeTool() mcp.Tool {
	return mcp.NewTool("normalize_name",
		mcp.WithDescription("Map a raw person, organisation or project name to its canonical form using the alias table. Reports when the name is dropped as a pseudo-entity."),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Alias table to use"),
			mcp.Enum(string(normalize.KindPerson), string(normalize.KindOrganization), string(normalize.KindProject)),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name as it appears in an extraction"),
		),
	)
}

func (t *tools) handleNormalize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	kind, _ := args["kind"].(string)
	name, _ := args["name"].(string)

	switch normalize.Kind(kind) {
	case normalize.KindPerson, normalize.KindOrganization, normalize.KindProject:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown kind %q", kind)), nil
	}
	if strings.TrimSpace(name) == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	table, err := normalize.LoadAliases(t.cfg.AliasesFile())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	canonical, ok := table.Name(normalize.Kind(kind), name)
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf("%q is dropped (not a real %s)", name, strings.TrimSuffix(kind, "s"))), nil
	}
	return mcp.NewToolResultText(canonical), nil
}

func entitiesTool() mcp.Tool {
	return mcp.NewTool("canonical_entities",
		mcp.WithDescription("List canonical entities of one type from the merged artifacts. An optional query filters by case-insensitive substring over name, text, role, description and context."),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Entity type wire key, e.g. personen, projekte, fragen, themen"),
		),
		mcp.WithString("query",
			mcp.Description("Substring to filter by"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return (default 50)"),
		),
	)
}

func (t *tools) handleEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	typeKey, _ := args["type"].(string)
	query, _ := args["query"].(string)
	limit := defaultLimit
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	typ, err := entity.ParseType(typeKey)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path := filepath.Join(t.cfg.MergedDir(), string(typ)+".json")
	query = strings.ToLower(strings.TrimSpace(query))

	if typ == entity.Themes {
		themes, err := entity.ReadThemes(path)
		if err != nil {
			return readError(path, err), nil
		}
		var out []string
		for _, th := range themes {
			if query == "" || strings.Contains(strings.ToLower(th), query) {
				out = append(out, th)
			}
		}
		return jsonResult(capped(out, limit))
	}

	recs, _, err := entity.ReadRecords(typ, path)
	if err != nil {
		return readError(path, err), nil
	}
	out := []map[string]any{}
	for _, r := range recs {
		if matches(r, query) {
			out = append(out, r.Fields())
		}
	}
	return jsonResult(capped(out, limit))
}

func matches(e entity.Entity, query string) bool {
	if query == "" {
		return true
	}
	for _, s := range []string{e.Name, e.Text, e.Role, e.Description, e.Context} {
		if strings.Contains(strings.ToLower(s), query) {
			return true
		}
	}
	return false
}

func capped[T any](items []T, limit int) []T {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func readError(path string, err error) *mcp.CallToolResult {
	if errors.Is(err, os.ErrNotExist) {
		return mcp.NewToolResultError(fmt.Sprintf("%s does not exist, run merge first", filepath.Base(path)))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
