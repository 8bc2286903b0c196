package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/compound-rag/internal/catalog"
	"github.com/ziadkadry99/compound-rag/internal/search"
	"github.com/ziadkadry99/compound-rag/internal/sqlquery"
)

// Version is set via ldflags at build time.
var Version = "dev"

// DocumentSearcher answers questions over a compound's documents.
type DocumentSearcher interface {
	SearchDocuments(ctx context.Context, compoundID, query string, documentIDs []string, topK int) (*search.Result, error)
	SearchDepartmentDocuments(ctx context.Context, compoundID, departmentID, query string, topK int) (*search.Result, error)
}

// DatabaseSearcher answers questions over the allow-listed tables.
type DatabaseSearcher interface {
	SearchDatabase(ctx context.Context, compoundID string, req sqlquery.Request) (*sqlquery.Result, error)
}

// Catalog lists a compound's documents.
type Catalog interface {
	RequireCompound(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, compoundID string) ([]catalog.Document, error)
	ListDepartmentDocuments(ctx context.Context, compoundID, departmentID string) ([]catalog.Document, error)
}

// Server wraps an MCP server that exposes the search tools. Every tool
// takes an explicit compound_id.
type Server struct {
	documents DocumentSearcher
	database  DatabaseSearcher
	catalog   Catalog
	mcp       *server.MCPServer
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(documents DocumentSearcher, database DatabaseSearcher, cat Catalog) *Server {
	s := &Server{
		documents: documents,
		database:  database,
		catalog:   cat,
	}

	s.mcp = server.NewMCPServer(
		"compoundrag",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchDocumentsTool, s.handleSearchDocuments)
	s.mcp.AddTool(searchDepartmentDocumentsTool, s.handleSearchDepartmentDocuments)
	s.mcp.AddTool(searchDatabaseTool, s.handleSearchDatabase)
	s.mcp.AddTool(listDocumentsTool, s.handleListDocuments)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
