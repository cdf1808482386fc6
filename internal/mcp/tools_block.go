package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"sitebuilder/internal/domain"
	"sitebuilder/internal/editor"
)

func (s *Server) registerBlockTools() {
	// ── list_blocks ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_blocks",
		mcp.WithDescription("List the blocks of an open page in document order, optionally filtered by type"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("type", mcp.Description("Filter by block type (optional)")),
	), s.handleListBlocks)

	// ── create_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_block",
		mcp.WithDescription("Create a block. Content defaults to the type's empty payload; position defaults to the end of the page."),
		mcp.WithString("type",
			mcp.Description("Block type"),
			mcp.Enum(blockTypeNames()...),
			mcp.Required(),
		),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("content", mcp.Description("Content as a JSON object matching the block type (optional)")),
		mcp.WithString("styles", mcp.Description(`Styles as a JSON object of CSS properties, e.g. {"color":"red"} (optional)`)),
		mcp.WithNumber("position", mcp.Description("Zero-based insert position (optional, appends if omitted)")),
	), s.handleCreateBlock)

	// ── update_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("update_block",
		mcp.WithDescription("Patch a block. Only the given fields change; a style set to \"\" is removed. Locked blocks only accept locked=false."),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("content", mcp.Description("Replacement content as a JSON object (optional)")),
		mcp.WithString("styles", mcp.Description("Style patch as a JSON object (optional)")),
		mcp.WithString("responsiveStyles", mcp.Description(`Per-breakpoint style patch, e.g. {"mobile":{"left":"0px"}} (optional)`)),
		mcp.WithBoolean("visible", mcp.Description("Show or hide the block (optional)")),
		mcp.WithBoolean("locked", mcp.Description("Lock or unlock the block (optional)")),
	), s.handleUpdateBlock)

	// ── delete_block (destructive) ─────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_block",
		mcp.WithDescription("Delete a block. Locked and unknown blocks are left alone."),
		mcp.WithString("blockId", mcp.Description("Block ID to delete"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteBlock)

	// ── reorder_block ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("reorder_block",
		mcp.WithDescription("Move a block to a new zero-based position in document order"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithNumber("index", mcp.Description("Target position"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleReorderBlock)

	// ── duplicate_block ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("duplicate_block",
		mcp.WithDescription("Insert a copy of a block directly after it"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleDuplicateBlock)

	// ── set_z_order ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_z_order",
		mcp.WithDescription("Change a block's stacking order"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("op",
			mcp.Description("front, back, forward or backward"),
			mcp.Enum(string(editor.ZFront), string(editor.ZBack), string(editor.ZForward), string(editor.ZBackward)),
			mcp.Required(),
		),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleSetZOrder)
}

func blockTypeNames() []string {
	out := make([]string, len(domain.BlockTypes))
	for i, t := range domain.BlockTypes {
		out[i] = string(t)
	}
	return out
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleListBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	filter := domain.BlockType(req.GetString("type", ""))
	blocks := sess.Blocks()
	if filter != "" {
		kept := blocks[:0]
		for _, b := range blocks {
			if b.Type == filter {
				kept = append(kept, b)
			}
		}
		blocks = kept
	}
	return jsonResult(blocks)
}

func (s *Server) handleCreateBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	t := domain.BlockType(req.GetString("type", ""))
	if !t.Valid() {
		return nil, fmt.Errorf("unknown block type %q", t)
	}

	var content domain.Content
	if raw := req.GetString("content", ""); raw != "" {
		content, err = domain.DecodeContent(t, json.RawMessage(raw))
		if err != nil {
			return nil, err
		}
	}
	var styles domain.Styles
	if _, err := decodeArg(req, "styles", &styles); err != nil {
		return nil, err
	}

	b, err := sess.CreateBlock(t, content, styles, req.GetInt("position", -1))
	if err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}
	return jsonResult(b)
}

func (s *Server) handleUpdateBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	id, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	current, ok := sess.Store().Get(id)
	if !ok {
		return nil, domain.ErrNotFound("block", id)
	}

	var patch domain.BlockPatch
	if raw := req.GetString("content", ""); raw != "" {
		patch.Content, err = domain.DecodeContent(current.Type, json.RawMessage(raw))
		if err != nil {
			return nil, err
		}
	}
	if _, err := decodeArg(req, "styles", &patch.Styles); err != nil {
		return nil, err
	}
	if _, err := decodeArg(req, "responsiveStyles", &patch.ResponsiveStyles); err != nil {
		return nil, err
	}
	args := req.GetArguments()
	if _, ok := args["visible"]; ok {
		patch.Visible = boolPtr(req.GetBool("visible", current.Visible))
	}
	if _, ok := args["locked"]; ok {
		patch.Locked = boolPtr(req.GetBool("locked", current.Locked))
	}

	b, err := sess.UpdateBlock(id, patch)
	if err != nil {
		return nil, fmt.Errorf("update block: %w", err)
	}
	return jsonResult(b)
}

func (s *Server) handleDeleteBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	id, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	if !sess.RemoveBlock(id) {
		return textResult(fmt.Sprintf("Block %s not deleted (unknown or locked)", id)), nil
	}
	return textResult(fmt.Sprintf("Deleted block %s", id)), nil
}

func (s *Server) handleReorderBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	id, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	index, err := req.RequireInt("index")
	if err != nil {
		return nil, err
	}
	moved := sess.ReorderBlock(id, index)
	return jsonResult(map[string]any{"moved": moved, "order": blockIDs(sess.Blocks())})
}

func (s *Server) handleDuplicateBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	id, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	b, ok := sess.DuplicateBlock(id)
	if !ok {
		return nil, domain.ErrNotFound("block", id)
	}
	return jsonResult(b)
}

func (s *Server) handleSetZOrder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	id, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	op := editor.ZOp(req.GetString("op", ""))
	switch op {
	case editor.ZFront, editor.ZBack, editor.ZForward, editor.ZBackward:
	default:
		return nil, fmt.Errorf("unknown z-order op %q", op)
	}
	changed := sess.SetZOrder(id, op)
	b, _ := sess.Store().Get(id)
	return jsonResult(map[string]any{"changed": changed, "zOrder": b.ZOrder})
}

func blockIDs(blocks []domain.Block) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.ID
	}
	return out
}
