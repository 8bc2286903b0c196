package mcp

import "github.com/mark3labs/mcp-go/mcp"

var compoundParam = mcp.WithString("compound_id",
	mcp.Required(),
	mcp.Description("Compound whose data is searched. Required on every call."),
)

var stringItems = mcp.Items(map[string]any{"type": "string"})

// searchDocumentsTool defines the search_documents MCP tool.
var searchDocumentsTool = mcp.NewTool("search_documents",
	mcp.WithDescription("Answer a question from the indexed documents of a compound. Returns an answer with cited passages."),
	compoundParam,
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language question"),
	),
	mcp.WithArray("document_ids",
		mcp.Description("Restrict the search to these document ids"),
		stringItems,
	),
	mcp.WithNumber("top_k",
		mcp.Description("Maximum number of passages to retrieve (default 5)"),
	),
)

// searchDepartmentDocumentsTool defines the search_department_documents MCP tool.
var searchDepartmentDocumentsTool = mcp.NewTool("search_department_documents",
	mcp.WithDescription("Answer a question from the documents assigned to one department of a compound."),
	compoundParam,
	mcp.WithString("department_id",
		mcp.Required(),
		mcp.Description("Department whose documents are searched"),
	),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language question"),
	),
	mcp.WithNumber("top_k",
		mcp.Description("Maximum number of passages to retrieve (default 5)"),
	),
)

// searchDatabaseTool defines the search_database MCP tool.
var searchDatabaseTool = mcp.NewTool("search_database",
	mcp.WithDescription("Query one allow-listed database table in natural language, for example \"items over price 100\"."),
	compoundParam,
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language request"),
	),
	mcp.WithString("table_name",
		mcp.Required(),
		mcp.Description("Allow-listed table to query"),
	),
	mcp.WithArray("columns",
		mcp.Description("Columns to return (default all)"),
		stringItems,
	),
	mcp.WithBoolean("summary",
		mcp.Description("Also return a natural language summary of the rows"),
	),
)

// listDocumentsTool defines the list_documents MCP tool.
var listDocumentsTool = mcp.NewTool("list_documents",
	mcp.WithDescription("List the documents of a compound with their indexing status."),
	compoundParam,
	mcp.WithString("department_id",
		mcp.Description("Only list documents assigned to this department"),
	),
)
