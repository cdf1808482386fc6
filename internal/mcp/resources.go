package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	// ── sitebuilder://pages ────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		"sitebuilder://pages",
		"Open Pages",
		mcp.WithMIMEType("application/json"),
	), s.handlePagesResource)

	// ── sitebuilder://page/{pageId}/blocks ─────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"sitebuilder://page/{pageId}/blocks",
			"Blocks on an Open Page",
		),
		s.handlePageBlocksResource,
	)
}

func (s *Server) handlePagesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	type pageSummary struct {
		ID       string `json:"id"`
		Blocks   int    `json:"blocks"`
		Autosave string `json:"autosave"`
	}
	var out []pageSummary
	for _, id := range s.editor.Pages() {
		sess, err := s.editor.Session(id)
		if err != nil {
			continue
		}
		out = append(out, pageSummary{ID: id, Blocks: len(sess.Blocks()), Autosave: string(sess.Status().State)})
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "sitebuilder://pages",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handlePageBlocksResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	pageID := pageIDFromURI(uri)
	if pageID == "" {
		return nil, fmt.Errorf("could not extract pageId from URI: %s", uri)
	}
	sess, err := s.editor.Session(pageID)
	if err != nil {
		return nil, err
	}
	data, _ := json.MarshalIndent(sess.Blocks(), "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// pageIDFromURI extracts the page id from "sitebuilder://page/{id}/blocks".
func pageIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, "sitebuilder://page/")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/blocks")
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
