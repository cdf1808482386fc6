package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPageTools() {
	// ── open_page ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("open_page",
		mcp.WithDescription("Open a page for editing and make it the active page. Tools that accept pageId default to it."),
		mcp.WithString("pageId", mcp.Description("ID of the page to open"), mcp.Required()),
	), s.handleOpenPage)

	// ── close_page ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("close_page",
		mcp.WithDescription("Save pending changes and close a page"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleClosePage)

	// ── save_now ───────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("save_now",
		mcp.WithDescription("Persist pending changes immediately instead of waiting for autosave"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleSaveNow)

	// ── autosave_status ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("autosave_status",
		mcp.WithDescription("Report the autosave state (clean, dirty, saving, error) of a page"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleAutosaveStatus)
}

func (s *Server) handleOpenPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID, err := req.RequireString("pageId")
	if err != nil {
		return nil, err
	}
	sess, err := s.editor.Open(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.setActivePage(pageID)
	return jsonResult(map[string]any{
		"pageId":   pageID,
		"blocks":   len(sess.Blocks()),
		"settings": sess.Store().Settings(),
		"autosave": sess.Status(),
	})
}

func (s *Server) handleClosePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	if err := s.editor.Close(ctx, sess.PageID()); err != nil {
		return nil, fmt.Errorf("close page: %w", err)
	}
	s.mu.Lock()
	if s.activePageID == sess.PageID() {
		s.activePageID = ""
	}
	s.mu.Unlock()
	return textResult(fmt.Sprintf("Closed page %s", sess.PageID())), nil
}

func (s *Server) handleSaveNow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	if err := sess.SaveNow(ctx); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	return jsonResult(sess.Status())
}

func (s *Server) handleAutosaveStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"pageId":   sess.PageID(),
		"status":   sess.Status(),
		"debounce": sess.Debounce().String(),
	})
}
