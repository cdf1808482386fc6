package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"sitebuilder/internal/geometry"
)

func (s *Server) registerSelectionTools() {
	// ── select_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("select_block",
		mcp.WithDescription("Select a block. With multi=true the block is toggled in the current selection instead of replacing it."),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithBoolean("multi", mcp.Description("Toggle within the current selection (default false)")),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleSelectBlock)

	// ── clear_selection ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("clear_selection",
		mcp.WithDescription("Deselect every block"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleClearSelection)

	// ── copy_selection ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("copy_selection",
		mcp.WithDescription("Copy the selected blocks to the clipboard. The clipboard is shared by all open pages."),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleCopySelection)

	// ── paste ──────────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("paste",
		mcp.WithDescription("Append the clipboard's blocks to a page as new blocks. The clipboard is kept, so paste can repeat."),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handlePaste)

	// ── align_selection ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("align_selection",
		mcp.WithDescription("Align the selected visible, unlocked blocks. Needs at least 2."),
		mcp.WithString("mode",
			mcp.Description("Alignment edge or axis"),
			mcp.Enum(string(geometry.AlignLeft), string(geometry.AlignRight), string(geometry.AlignCenter),
				string(geometry.AlignTop), string(geometry.AlignBottom), string(geometry.AlignMiddle)),
			mcp.Required(),
		),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleAlignSelection)

	// ── distribute_selection ───────────────────────────
	s.mcp.AddTool(mcp.NewTool("distribute_selection",
		mcp.WithDescription("Distribute the selected visible, unlocked blocks evenly, keeping the outermost two fixed. Needs at least 3."),
		mcp.WithString("mode",
			mcp.Description("horizontal and vertical space centers evenly; spacing and spacing-vertical make the gaps equal"),
			mcp.Enum(string(geometry.DistributeHorizontal), string(geometry.DistributeVertical),
				string(geometry.DistributeSpacing), string(geometry.DistributeSpacingVertical)),
			mcp.Required(),
		),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleDistributeSelection)

	// ── set_measurements ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_measurements",
		mcp.WithDescription("Record rendered block bounds used by align_selection and distribute_selection. Blocks without a measurement fall back to their left/top/width/height styles."),
		mcp.WithString("boxes",
			mcp.Description(`JSON array of boxes in px, e.g. [{"id":"b1","x":0,"y":10,"width":120,"height":40}]`),
			mcp.Required(),
		),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleSetMeasurements)
}

func (s *Server) handleSelectBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	id, err := req.RequireString("blockId")
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"selection": sess.Select(id, req.GetBool("multi", false))})
}

func (s *Server) handleClearSelection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	sess.ClearSelection()
	return textResult("Selection cleared"), nil
}

func (s *Server) handleCopySelection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	n := sess.Copy()
	if n == 0 {
		return textResult("Nothing selected; clipboard unchanged"), nil
	}
	return textResult(fmt.Sprintf("Copied %d block(s)", n)), nil
}

func (s *Server) handlePaste(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	blocks, err := sess.Paste()
	if err != nil {
		return nil, fmt.Errorf("paste: %w", err)
	}
	return jsonResult(blocks)
}

func (s *Server) handleAlignSelection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	mode, err := geometry.ParseAlignMode(req.GetString("mode", ""))
	if err != nil {
		return nil, err
	}
	moved, err := sess.Align(mode)
	if err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}
	return jsonResult(map[string]any{"moved": positionsOrEmpty(moved)})
}

func (s *Server) handleDistributeSelection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	mode, err := geometry.ParseDistributeMode(req.GetString("mode", ""))
	if err != nil {
		return nil, err
	}
	moved, err := sess.Distribute(mode)
	if err != nil {
		return nil, fmt.Errorf("distribute: %w", err)
	}
	return jsonResult(map[string]any{"moved": positionsOrEmpty(moved)})
}

func (s *Server) handleSetMeasurements(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	var boxes []geometry.Box
	ok, err := decodeArg(req, "boxes", &boxes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("boxes is required")
	}
	n, err := sess.Measure(boxes)
	if err != nil {
		return nil, fmt.Errorf("set measurements: %w", err)
	}
	return textResult(fmt.Sprintf("Recorded %d of %d measurement(s)", n, len(boxes))), nil
}

func positionsOrEmpty(ps []geometry.Position) []geometry.Position {
	if ps == nil {
		return []geometry.Position{}
	}
	return ps
}
