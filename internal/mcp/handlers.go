package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
	"github.com/ziadkadry99/compound-rag/internal/catalog"
	"github.com/ziadkadry99/compound-rag/internal/search"
	"github.com/ziadkadry99/compound-rag/internal/sqlquery"
)

func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	compoundID, err := request.RequireString("compound_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: compound_id"), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	res, err := s.documents.SearchDocuments(ctx, compoundID, query,
		stringSlice(request, "document_ids"), request.GetInt("top_k", 0))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(formatSearchResult(res)), nil
}

func (s *Server) handleSearchDepartmentDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	compoundID, err := request.RequireString("compound_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: compound_id"), nil
	}
	departmentID, err := request.RequireString("department_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: department_id"), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	res, err := s.documents.SearchDepartmentDocuments(ctx, compoundID, departmentID, query, request.GetInt("top_k", 0))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(formatSearchResult(res)), nil
}

func (s *Server) handleSearchDatabase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	compoundID, err := request.RequireString("compound_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: compound_id"), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	table, err := request.RequireString("table_name")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: table_name"), nil
	}

	res, err := s.database.SearchDatabase(ctx, compoundID, sqlquery.Request{
		Query:   query,
		Table:   table,
		Columns: stringSlice(request, "columns"),
		Summary: request.GetBool("summary", false),
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(formatDatabaseResult(res)), nil
}

func (s *Server) handleListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	compoundID, err := request.RequireString("compound_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: compound_id"), nil
	}
	if err := s.catalog.RequireCompound(ctx, compoundID); err != nil {
		return toolError(err), nil
	}

	var docs []catalog.Document
	if dep := request.GetString("department_id", ""); dep != "" {
		docs, err = s.catalog.ListDepartmentDocuments(ctx, compoundID, dep)
	} else {
		docs, err = s.catalog.ListDocuments(ctx, compoundID)
	}
	if err != nil {
		return toolError(err), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("No documents found. Upload documents to this compound first."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d document(s):\n", len(docs))
	for _, d := range docs {
		fmt.Fprintf(&sb, "\n- %s (%s)\n  id: %s\n  status: %s", d.Title, d.FileName, d.ID, d.Status)
		if d.ErrorMessage != "" {
			fmt.Fprintf(&sb, " (%s)", d.ErrorMessage)
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// toolError reports user errors with their code; system failures get a
// generic message.
func toolError(err error) *mcp.CallToolResult {
	var ae *apperr.Error
	if errors.As(err, &ae) && apperr.IsUserError(ae) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", ae.Code, ae.Message))
	}
	if errors.As(err, &ae) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: the request could not be completed right now", ae.Code))
	}
	return mcp.NewToolResultError("the request could not be completed right now")
}

// stringSlice reads an array argument, ignoring non-string items.
func stringSlice(request mcp.CallToolRequest, key string) []string {
	raw, ok := request.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// formatSearchResult renders an answer and its sources for agent
// consumption.
func formatSearchResult(res *search.Result) string {
	var sb strings.Builder
	if res.Answer != "" {
		sb.WriteString(res.Answer)
		sb.WriteString("\n")
	} else if res.Degraded {
		sb.WriteString("No answer could be generated; the most relevant passages follow.\n")
	}

	if len(res.Sources) > 0 {
		sb.WriteString("\nSources:\n")
		for _, src := range res.Sources {
			fmt.Fprintf(&sb, "[%s] %s (document %s, chars %d-%d, score %.2f)\n",
				src.Citation, src.Title, src.DocumentID, src.Start, src.End, src.Score)
		}
	}
	if res.Degraded {
		for i, p := range res.Passages {
			fmt.Fprintf(&sb, "\n--- Passage %d (%s) ---\n%s\n", i+1, p.DocumentID, p.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func formatDatabaseResult(res *sqlquery.Result) string {
	var sb strings.Builder
	if res.Summary != "" {
		sb.WriteString(res.Summary)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "%d row(s) from %s", res.RowCount, res.Table)
	if res.Truncated {
		sb.WriteString(" (row cap reached)")
	}
	sb.WriteString(":\n")
	rows, err := json.MarshalIndent(res.Results, "", "  ")
	if err != nil {
		rows = []byte("[]")
	}
	sb.Write(rows)
	return sb.String()
}
