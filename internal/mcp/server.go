package mcpserver

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"sitebuilder/internal/service"
)

// Server is the MCP server for sitebuilder.
// It exposes editor tools and resources so AI agents can build pages.
type Server struct {
	mcp    *server.MCPServer
	editor *service.EditorService
	log    *log.Logger

	// Active page context (set by open_page)
	mu           sync.Mutex
	activePageID string
}

// Deps holds everything the MCP server needs from the host.
type Deps struct {
	Editor  *service.EditorService
	Logger  *log.Logger
	Version string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	l := deps.Logger
	if l == nil {
		l = log.Default()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		editor: deps.Editor,
		log:    l.WithPrefix("mcp"),
	}

	s.mcp = server.NewMCPServer(
		"sitebuilder-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(false),
	)

	s.registerPageTools()
	s.registerBlockTools()
	s.registerSelectionTools()
	s.registerVersionTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info("starting stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func (s *Server) setActivePage(pageID string) {
	s.mu.Lock()
	s.activePageID = pageID
	s.mu.Unlock()
}

// session returns the session for the pageId argument, or for the active
// page when none is given.
func (s *Server) session(req mcp.CallToolRequest) (*service.Session, error) {
	pageID := req.GetString("pageId", "")
	if pageID == "" {
		s.mu.Lock()
		pageID = s.activePageID
		s.mu.Unlock()
	}
	if pageID == "" {
		return nil, fmt.Errorf("no pageId provided and no active page (use open_page first)")
	}
	return s.editor.Session(pageID)
}

// decodeArg parses a JSON-encoded string argument into target. Empty
// arguments leave target untouched.
func decodeArg(req mcp.CallToolRequest, key string, target any) (bool, error) {
	raw := req.GetString(key, "")
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return false, fmt.Errorf("%s: invalid JSON: %w", key, err)
	}
	return true, nil
}

func boolPtr(v bool) *bool { return &v }
