package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebuilder/internal/domain"
	"sitebuilder/internal/service"
	"sitebuilder/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := storage.Open(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ed := service.NewEditorService(storage.NewSQLGateway(db), &service.MockEmitter{}, service.Options{Debounce: time.Hour}, nil)
	t.Cleanup(func() { _ = ed.CloseAll(context.Background()) })
	return New(Deps{Editor: ed})
}

func call(t *testing.T, s *Server, tool string, args map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()
	st := s.mcp.GetTool(tool)
	require.NotNil(t, st, "tool %s not registered", tool)
	return st.Handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: tool, Arguments: args},
	})
}

func mustCall(t *testing.T, s *Server, tool string, args map[string]any) string {
	t.Helper()
	res, err := call(t, s, tool, args)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	return res.Content[0].(mcp.TextContent).Text
}

func TestAllToolsRegistered(t *testing.T) {
	s := newTestServer(t)
	for _, name := range []string{
		"open_page", "close_page", "list_blocks", "create_block", "update_block", "delete_block",
		"reorder_block", "duplicate_block", "set_z_order", "select_block", "clear_selection",
		"copy_selection", "paste", "align_selection", "distribute_selection", "save_now",
		"autosave_status", "create_version", "list_versions", "rollback_version", "set_measurements",
	} {
		assert.NotNil(t, s.mcp.GetTool(name), name)
	}
}

func TestToolsNeedAnOpenPage(t *testing.T) {
	s := newTestServer(t)
	_, err := call(t, s, "list_blocks", nil)
	assert.Error(t, err)

	_, err = call(t, s, "list_blocks", map[string]any{"pageId": "home"})
	assert.True(t, domain.IsNotFound(err))
}

func TestBlockWorkflow(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s, "open_page", map[string]any{"pageId": "home"})

	var a, b domain.Block
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "create_block", map[string]any{
		"type":    "heading",
		"content": `{"text":"Welcome","level":1}`,
		"styles":  `{"color":"navy"}`,
	})), &a))
	assert.Equal(t, domain.HeadingContent{Text: "Welcome", Level: 1}, a.Content)
	assert.Equal(t, "navy", a.Styles["color"])

	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "create_block", map[string]any{
		"type": "button", "position": float64(0),
	})), &b))

	_, err := call(t, s, "create_block", map[string]any{"type": "heading", "content": `{"text":"x","level":9}`})
	assert.True(t, domain.IsValidation(err))

	var updated domain.Block
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "update_block", map[string]any{
		"blockId": a.ID,
		"styles":  `{"color":""}`,
		"locked":  true,
	})), &updated))
	assert.True(t, updated.Locked)
	_, hasColor := updated.Styles["color"]
	assert.False(t, hasColor)

	_, err = call(t, s, "update_block", map[string]any{"blockId": a.ID, "visible": false})
	assert.True(t, domain.IsCode(err, domain.ErrCodeLocked))

	assert.Contains(t, mustCall(t, s, "delete_block", map[string]any{"blockId": a.ID}), "not deleted")

	var blocks []domain.Block
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "list_blocks", map[string]any{"type": "button"})), &blocks))
	require.Len(t, blocks, 1)
	assert.Equal(t, b.ID, blocks[0].ID)

	var dup domain.Block
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "duplicate_block", map[string]any{"blockId": b.ID})), &dup))
	assert.NotEqual(t, b.ID, dup.ID)
	assert.Equal(t, 1, dup.Order)

	mustCall(t, s, "save_now", nil)
	var status struct {
		Status struct {
			State string `json:"state"`
		} `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "autosave_status", nil)), &status))
	assert.Equal(t, "clean", status.Status.State)
}

func TestSelectionCopyPasteAndVersions(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s, "open_page", map[string]any{"pageId": "home"})

	var a domain.Block
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "create_block", map[string]any{"type": "divider"})), &a))
	mustCall(t, s, "select_block", map[string]any{"blockId": a.ID})
	assert.Contains(t, mustCall(t, s, "copy_selection", nil), "Copied 1")

	var v domain.Version
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "create_version", map[string]any{"tag": "release"})), &v))
	assert.Equal(t, "v1", v.Version)
	assert.Nil(t, v.State)

	var pasted []domain.Block
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "paste", nil)), &pasted))
	require.Len(t, pasted, 1)

	mustCall(t, s, "rollback_version", map[string]any{"versionId": v.ID})
	var blocks []domain.Block
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "list_blocks", nil)), &blocks))
	require.Len(t, blocks, 1)
	assert.Equal(t, a.ID, blocks[0].ID)

	var list []domain.Version
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "list_versions", nil)), &list))
	assert.Len(t, list, 1)

	var moved map[string][]any
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "align_selection", map[string]any{"mode": "left"})), &moved))
	assert.Empty(t, moved["moved"])
	_, err := call(t, s, "align_selection", map[string]any{"mode": "diagonal"})
	assert.Error(t, err)
}

func TestMeasuredBoxesDriveAlignment(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s, "open_page", map[string]any{"pageId": "home"})

	ids := make([]string, 3)
	for i := range ids {
		var b domain.Block
		require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "create_block", map[string]any{"type": "divider"})), &b))
		ids[i] = b.ID
	}

	boxes := fmt.Sprintf(`[
		{"id":%q,"x":40.5,"y":0,"width":100,"height":20},
		{"id":%q,"x":12.25,"y":30,"width":80,"height":20},
		{"id":%q,"x":90,"y":60,"width":60,"height":20},
		{"id":"ghost","x":0,"y":0,"width":1,"height":1}
	]`, ids[0], ids[1], ids[2])
	assert.Contains(t, mustCall(t, s, "set_measurements", map[string]any{"boxes": boxes}), "Recorded 3 of 4")

	_, err := call(t, s, "set_measurements", map[string]any{"boxes": fmt.Sprintf(`[{"id":%q,"width":-1}]`, ids[0])})
	assert.True(t, domain.IsValidation(err))
	_, err = call(t, s, "set_measurements", map[string]any{"boxes": "not json"})
	assert.Error(t, err)

	for _, id := range ids {
		mustCall(t, s, "select_block", map[string]any{"blockId": id, "multi": true})
	}
	var moved struct {
		Moved []struct {
			ID   string  `json:"id"`
			Left float64 `json:"left"`
			Top  float64 `json:"top"`
		} `json:"moved"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "align_selection", map[string]any{"mode": "left"})), &moved))
	assert.Len(t, moved.Moved, 3)

	var blocks []domain.Block
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "list_blocks", nil)), &blocks))
	require.Len(t, blocks, 3)
	tops := map[string]string{ids[0]: "0px", ids[1]: "30px", ids[2]: "60px"}
	for _, b := range blocks {
		assert.Equal(t, "absolute", b.Styles["position"], b.ID)
		assert.Equal(t, "12.25px", b.Styles["left"], b.ID)
		assert.Equal(t, tops[b.ID], b.Styles["top"], b.ID)
	}

	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s, "align_selection", map[string]any{"mode": "left"})), &moved))
	assert.Empty(t, moved.Moved, "aligned blocks stay put")
}

func TestPageIDFromURI(t *testing.T) {
	assert.Equal(t, "home", pageIDFromURI("sitebuilder://page/home/blocks"))
	assert.Equal(t, "", pageIDFromURI("sitebuilder://page/a/b/blocks"))
	assert.Equal(t, "", pageIDFromURI("other://page/home/blocks"))
}

func TestPromptsReferenceTheirArguments(t *testing.T) {
	s := newTestServer(t)
	req := mcp.GetPromptRequest{Params: mcp.GetPromptParams{
		Name:      "landing_page",
		Arguments: map[string]string{"pageId": "home", "product": "Rocket"},
	}}
	res, err := s.handleLandingPagePrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	text := res.Messages[0].Content.(mcp.TextContent).Text
	assert.Contains(t, text, `"Rocket"`)
	assert.Contains(t, text, `open_page with pageId "home"`)

	res, err = s.handleContactFormPrompt(context.Background(), mcp.GetPromptRequest{Params: mcp.GetPromptParams{
		Arguments: map[string]string{"pageId": "home"},
	}})
	require.NoError(t, err)
	assert.Contains(t, res.Messages[0].Content.(mcp.TextContent).Text, "name,email,message")
}
