package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("landing_page",
		mcp.WithPromptDescription("Guide through building a landing page from blocks"),
		mcp.WithArgument("pageId",
			mcp.ArgumentDescription("Page to build"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("product",
			mcp.ArgumentDescription("Product or topic the page is about"),
			mcp.RequiredArgument(),
		),
	), s.handleLandingPagePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("contact_form",
		mcp.WithPromptDescription("Add a validated contact form section to a page"),
		mcp.WithArgument("pageId",
			mcp.ArgumentDescription("Page to edit"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("fields",
			mcp.ArgumentDescription("Comma separated field names (default name,email,message)"),
		),
	), s.handleContactFormPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("responsive_pass",
		mcp.WithPromptDescription("Review a page's blocks and add tablet and mobile overrides"),
		mcp.WithArgument("pageId",
			mcp.ArgumentDescription("Page to review"),
			mcp.RequiredArgument(),
		),
	), s.handleResponsivePassPrompt)
}

func promptResult(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent{Type: "text", Text: text},
			},
		},
	}
}

func (s *Server) handleLandingPagePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	pageID := req.Params.Arguments["pageId"]
	product := req.Params.Arguments["product"]
	return promptResult(fmt.Sprintf("Build a landing page for %s", product), fmt.Sprintf(`Build a landing page about "%s" on page %s. Follow these steps:

1. open_page with pageId "%s"
2. create_block a heading (level 1) with the product name, then a text block with a one paragraph pitch
3. create_block an image for the hero shot and a button linking to the signup URL
4. Add a container block and, after it, three text blocks describing key features
5. select_block the three feature blocks and use distribute_selection with mode "horizontal"
6. create_version with label "draft" and description "first landing page draft"

Keep markup in text blocks free of script, iframe, object and embed elements.`, product, pageID, pageID)), nil
}

func (s *Server) handleContactFormPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	pageID := req.Params.Arguments["pageId"]
	fields := req.Params.Arguments["fields"]
	if strings.TrimSpace(fields) == "" {
		fields = "name,email,message"
	}
	return promptResult("Add a contact form", fmt.Sprintf(`Add a contact section to page %s:

1. open_page with pageId "%s"
2. create_block a heading (level 2) reading "Contact us"
3. create_block a form with method POST and one field per name in: %s
   Use kind "email" for email fields, "textarea" for long text, "text" otherwise. Field names must be unique.
4. create_block a divider after the form
5. save_now so the section is persisted immediately`, pageID, pageID, fields)), nil
}

func (s *Server) handleResponsivePassPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	pageID := req.Params.Arguments["pageId"]
	return promptResult(fmt.Sprintf("Responsive review of %s", pageID), fmt.Sprintf(`Make page %s work on small screens:

1. open_page with pageId "%s" and list_blocks
2. create_version with label "before-responsive" so the change can be rolled back
3. For every block with a fixed width or left offset, update_block with responsiveStyles
   {"tablet": {...}, "mobile": {"width": "100%%", "left": ""}}
   An empty value removes the property at that breakpoint.
4. Hide purely decorative blocks on mobile only through responsiveStyles {"mobile": {"display": "none"}}, not the visible flag
5. Report which blocks changed`, pageID, pageID)), nil
}
