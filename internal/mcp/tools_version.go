package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerVersionTools() {
	// ── create_version ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_version",
		mcp.WithDescription("Snapshot the current page as an immutable version"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("label", mcp.Description("Version label (optional, defaults to v<N+1>)")),
		mcp.WithString("description", mcp.Description("What changed (optional)")),
		mcp.WithString("tag", mcp.Description("Free-form tag such as release (optional)")),
	), s.handleCreateVersion)

	// ── list_versions ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_versions",
		mcp.WithDescription("List a page's versions, newest first"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleListVersions)

	// ── rollback_version (destructive) ─────────────────
	s.mcp.AddTool(mcp.NewTool("rollback_version",
		mcp.WithDescription("Replace the page with a stored version. Versions themselves are kept."),
		mcp.WithString("versionId", mcp.Description("Version ID to restore"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRollbackVersion)
}

func (s *Server) handleCreateVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	v, err := sess.Snapshot(ctx,
		req.GetString("label", ""),
		req.GetString("description", ""),
		req.GetString("tag", ""))
	if err != nil {
		return nil, fmt.Errorf("create version: %w", err)
	}
	v.State = nil
	return jsonResult(v)
}

func (s *Server) handleListVersions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	vs, err := sess.ListVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return jsonResult(vs)
}

func (s *Server) handleRollbackVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	id, err := req.RequireString("versionId")
	if err != nil {
		return nil, err
	}
	st, err := sess.Rollback(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("rollback: %w", err)
	}
	return textResult(fmt.Sprintf("Rolled page %s back to version %s (%d blocks)", sess.PageID(), id, len(st.Blocks))), nil
}
