// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes annotation index tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/anndex/internal/apperr"
	"github.com/starford/anndex/internal/catalog"
	"github.com/starford/anndex/internal/lookup"
)

const formatURI = "anndex://format"

// Server wraps the MCP server with index tools.
type Server struct {
	mcp *server.MCPServer
	svc *lookup.Service
	db  *catalog.DB
}

// New creates a new MCP server with all index tools registered. db may be
// nil, in which case the scan failure tool is not offered.
func New(svc *lookup.Service, db *catalog.DB) *Server {
	s := &Server{svc: svc, db: db}

	s.mcp = server.NewMCPServer(
		"anndex",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("lookup_annotation",
		mcp.WithDescription("List every class, field, method and method parameter carrying an annotation type. "+
			"Matching is exact on the fully qualified type name. Read "+formatURI+" for the result shape."),
		mcp.WithString("type", mcp.Required(), mcp.Description("Fully qualified annotation type (e.g. javax.persistence.Entity)")),
	), s.lookupAnnotation)

	s.mcp.AddTool(mcp.NewTool("list_annotation_types",
		mcp.WithDescription("List the annotation types present in the index with their instance counts."),
		mcp.WithString("prefix", mcp.Description("Optional package prefix to filter by (e.g. javax.persistence.)")),
	), s.listAnnotationTypes)

	s.mcp.AddTool(mcp.NewTool("index_stats",
		mcp.WithDescription("Describe the loaded index: source, format version, type and instance counts."),
	), s.indexStats)

	if db != nil {
		s.mcp.AddTool(mcp.NewTool("list_scan_failures",
			mcp.WithDescription("List class files that could not be parsed during the last indexing runs."),
		), s.listScanFailures)
	}

	// Resource: index format guide.
	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Annotation Index Format",
			mcp.WithResourceDescription("What the annotation index records and how lookup results are shaped."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNoIndex) {
		return mcp.NewToolResultError("no index loaded")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) lookupAnnotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typ, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return mcp.NewToolResultError("type is required"), nil
	}
	views, err := s.svc.Lookup(typ)
	if err != nil {
		return toolError(err), nil
	}
	if len(views) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("no instances of %s", typ)), nil
	}
	return jsonResult(views), nil
}

func (s *Server) listAnnotationTypes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix := ""
	if p, err := req.RequireString("prefix"); err == nil {
		prefix = p
	}
	types, err := s.svc.Types()
	if err != nil {
		return toolError(err), nil
	}
	var lines []string
	for _, t := range types {
		if strings.HasPrefix(t.Type, prefix) {
			lines = append(lines, fmt.Sprintf("%s\t%d", t.Type, t.Count))
		}
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no annotation types found"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) indexStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.svc.Stats()
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(stats), nil
}

func (s *Server) listScanFailures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	failures, err := s.db.Failures()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(failures) == 0 {
		return mcp.NewToolResultText("no scan failures recorded"), nil
	}
	lines := make([]string, len(failures))
	for i, f := range failures {
		lines[i] = fmt.Sprintf("%s: %s", f.Key(), f.Error)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     IndexFormatGuide,
		},
	}, nil
}
