package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sitebuilder/internal/api"
	"sitebuilder/internal/domain"
)

// HTTPGateway talks to a sitebuilder API server.
type HTTPGateway struct {
	base string
	http *http.Client
}

func NewHTTPGateway(baseURL string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPGateway{base: strings.TrimRight(baseURL, "/"), http: client}
}

func (g *HTTPGateway) url(parts ...string) string {
	esc := make([]string, len(parts))
	for i, p := range parts {
		esc[i] = url.PathEscape(p)
	}
	return g.base + "/" + strings.Join(esc, "/")
}

// do sends body as JSON and decodes a 2xx response into out when non-nil.
// Error responses are turned back into domain errors.
func (g *HTTPGateway) do(ctx context.Context, method, u string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return domain.ErrPersistence(err, method+" "+u)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Code == "" {
			return domain.ErrPersistence(fmt.Errorf("status %d", resp.StatusCode), method+" "+u)
		}
		return &domain.Error{Code: e.Code, Message: e.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.ErrPersistence(err, "decode response")
	}
	return nil
}

// ── Blocks ─────────────────────────────────────────────────

func (g *HTTPGateway) CreateBlock(ctx context.Context, pageID string, t domain.BlockType, content domain.Content, styles domain.Styles, order int) (*domain.Block, error) {
	req := api.CreateBlockRequest{Type: t, Styles: styles, Order: order}
	if content != nil {
		raw, err := domain.EncodeContent(content)
		if err != nil {
			return nil, err
		}
		req.Content = raw
	}
	var b domain.Block
	if err := g.do(ctx, http.MethodPost, g.url("pages", pageID, "blocks"), req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (g *HTTPGateway) UpdateBlock(ctx context.Context, id string, content domain.Content, styles domain.Styles) (*domain.Block, error) {
	req := api.UpdateBlockRequest{Styles: styles}
	if content != nil {
		raw, err := domain.EncodeContent(content)
		if err != nil {
			return nil, err
		}
		req.Type = content.Type()
		req.Content = raw
	}
	var b domain.Block
	if err := g.do(ctx, http.MethodPatch, g.url("blocks", id), req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (g *HTTPGateway) DeleteBlock(ctx context.Context, id string) error {
	return g.do(ctx, http.MethodDelete, g.url("blocks", id), nil, nil)
}

func (g *HTTPGateway) ListBlocks(ctx context.Context, pageID string) ([]domain.Block, error) {
	var blocks []domain.Block
	if err := g.do(ctx, http.MethodGet, g.url("pages", pageID, "blocks"), nil, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// ── Versions ───────────────────────────────────────────────

func (g *HTTPGateway) CreateVersion(ctx context.Context, pageID, version, description, tag string, state domain.PageState) (string, error) {
	req := api.CreateVersionRequest{Version: version, Description: description, Tag: tag, State: state}
	var resp api.CreateVersionResponse
	if err := g.do(ctx, http.MethodPost, g.url("pages", pageID, "versions"), req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (g *HTTPGateway) ListVersions(ctx context.Context, pageID string) ([]domain.Version, error) {
	var list []domain.Version
	if err := g.do(ctx, http.MethodGet, g.url("pages", pageID, "versions"), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (g *HTTPGateway) LoadVersion(ctx context.Context, versionID string) (*domain.PageState, error) {
	var st domain.PageState
	if err := g.do(ctx, http.MethodGet, g.url("versions", versionID), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ── Pages ──────────────────────────────────────────────────

func (g *HTTPGateway) LoadPage(ctx context.Context, pageID string) (*domain.PageState, error) {
	var st domain.PageState
	if err := g.do(ctx, http.MethodGet, g.url("pages", pageID), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (g *HTTPGateway) SaveChanges(ctx context.Context, cs domain.ChangeSet) error {
	return g.do(ctx, http.MethodPost, g.url("pages", cs.PageID, "changes"), cs, nil)
}

func (g *HTTPGateway) ReplacePage(ctx context.Context, pageID string, state domain.PageState) error {
	return g.do(ctx, http.MethodPut, g.url("pages", pageID), state, nil)
}
