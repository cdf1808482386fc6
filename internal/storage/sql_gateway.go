package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sitebuilder/internal/domain"
)

// SQLGateway implements domain.Gateway on top of DB.
type SQLGateway struct {
	db  *DB
	now func() time.Time
}

var _ domain.Gateway = (*SQLGateway)(nil)

func NewSQLGateway(db *DB) *SQLGateway {
	return &SQLGateway{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const blockCols = `id, page_id, type, sort_order, z_order, content_json, styles_json, responsive_json, visible, locked, created_at, updated_at`

var blockColList = []string{"id", "page_id", "type", "sort_order", "z_order", "content_json", "styles_json",
	"responsive_json", "visible", "locked", "created_at", "updated_at"}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (g *SQLGateway) scanBlock(r rowScanner) (domain.Block, error) {
	var (
		b                           domain.Block
		typ                         string
		content, styles, responsive string
	)
	if err := r.Scan(&b.ID, &b.PageID, &typ, &b.Order, &b.ZOrder, &content, &styles, &responsive,
		&b.Visible, &b.Locked, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return b, err
	}
	b.Type = domain.BlockType(typ)
	c, err := domain.DecodeContent(b.Type, []byte(content))
	if err != nil {
		return b, fmt.Errorf("block %s: %w", b.ID, err)
	}
	b.Content = c
	if err := json.Unmarshal([]byte(styles), &b.Styles); err != nil {
		return b, fmt.Errorf("block %s styles: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(responsive), &b.ResponsiveStyles); err != nil {
		return b, fmt.Errorf("block %s responsive styles: %w", b.ID, err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}

func blockArgs(b domain.Block) ([]any, error) {
	content, err := domain.EncodeContent(b.Content)
	if err != nil {
		return nil, err
	}
	styles := b.Styles
	if styles == nil {
		styles = domain.Styles{}
	}
	stylesJSON, err := json.Marshal(styles)
	if err != nil {
		return nil, err
	}
	responsive := b.ResponsiveStyles
	if responsive == nil {
		responsive = domain.ResponsiveStyles{}
	}
	responsiveJSON, err := json.Marshal(responsive)
	if err != nil {
		return nil, err
	}
	return []any{b.ID, b.PageID, string(b.Type), b.Order, b.ZOrder, string(content), string(stylesJSON),
		string(responsiveJSON), b.Visible, b.Locked, b.CreatedAt.UTC(), b.UpdatedAt.UTC()}, nil
}

func (g *SQLGateway) listBlocks(ctx context.Context, q querier, pageID string) ([]domain.Block, error) {
	rows, err := q.QueryContext(ctx, g.db.rebind(
		`SELECT `+blockCols+` FROM blocks WHERE page_id = ? ORDER BY sort_order ASC, created_at ASC, id ASC`), pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blocks := []domain.Block{}
	for rows.Next() {
		b, err := g.scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (g *SQLGateway) getBlock(ctx context.Context, q querier, id string) (domain.Block, error) {
	b, err := g.scanBlock(q.QueryRowContext(ctx, g.db.rebind(`SELECT `+blockCols+` FROM blocks WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, domain.ErrNotFound("block", id)
	}
	return b, err
}

func (g *SQLGateway) putBlock(ctx context.Context, q querier, b domain.Block) error {
	args, err := blockArgs(b)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, g.db.rebind(g.db.upsert("blocks", blockColList)), args...)
	return err
}

// renumber rewrites sort_order to 0..n-1 for a page.
func (g *SQLGateway) renumber(ctx context.Context, q querier, pageID string) error {
	blocks, err := g.listBlocks(ctx, q, pageID)
	if err != nil {
		return err
	}
	for i, b := range blocks {
		if b.Order == i {
			continue
		}
		if _, err := q.ExecContext(ctx, g.db.rebind(`UPDATE blocks SET sort_order = ? WHERE id = ?`), i, b.ID); err != nil {
			return err
		}
	}
	return nil
}

// ensurePage creates the page row on first write.
func (g *SQLGateway) ensurePage(ctx context.Context, q querier, page domain.Page) error {
	var n int
	if err := q.QueryRowContext(ctx, g.db.rebind(`SELECT COUNT(*) FROM pages WHERE id = ?`), page.ID).Scan(&n); err != nil {
		return err
	}
	now := g.now()
	if n > 0 {
		_, err := q.ExecContext(ctx, g.db.rebind(`UPDATE pages SET updated_at = ? WHERE id = ?`), now, page.ID)
		return err
	}
	settings, _ := json.Marshal(domain.PageSettings{})
	_, err := q.ExecContext(ctx, g.db.rebind(
		`INSERT INTO pages (id, name, settings_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
		page.ID, page.Name, string(settings), now, now)
	return err
}

func (g *SQLGateway) putSettings(ctx context.Context, q querier, pageID string, s domain.PageSettings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, g.db.rebind(`UPDATE pages SET settings_json = ? WHERE id = ?`), string(data), pageID)
	return err
}

// withTx runs fn in a transaction, rolling back on error.
func (g *SQLGateway) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := g.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ── BlockGateway ───────────────────────────────────────────

func (g *SQLGateway) CreateBlock(ctx context.Context, pageID string, t domain.BlockType, content domain.Content, styles domain.Styles, order int) (*domain.Block, error) {
	if content == nil {
		c, err := domain.NewContent(t)
		if err != nil {
			return nil, err
		}
		content = c
	}
	now := g.now()
	b := domain.Block{
		ID: uuid.NewString(), PageID: pageID, Type: t, Content: content,
		Styles: styles.Clone(), Visible: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	err := g.withTx(ctx, func(tx *sql.Tx) error {
		if err := g.ensurePage(ctx, tx, domain.Page{ID: pageID}); err != nil {
			return err
		}
		var count int
		var maxZ sql.NullInt64
		if err := tx.QueryRowContext(ctx, g.db.rebind(`SELECT COUNT(*), MAX(z_order) FROM blocks WHERE page_id = ?`), pageID).
			Scan(&count, &maxZ); err != nil {
			return err
		}
		if order < 0 || order > count {
			order = count
		}
		b.Order = order
		b.ZOrder = 0
		if maxZ.Valid {
			b.ZOrder = int(maxZ.Int64) + 1
		}
		if _, err := tx.ExecContext(ctx, g.db.rebind(
			`UPDATE blocks SET sort_order = sort_order + 1 WHERE page_id = ? AND sort_order >= ?`), pageID, order); err != nil {
			return err
		}
		return g.putBlock(ctx, tx, b)
	})
	if err != nil {
		return nil, domain.ErrPersistence(err, "create block")
	}
	return &b, nil
}

// UpdateBlock replaces content and/or styles; nil arguments are left as stored.
func (g *SQLGateway) UpdateBlock(ctx context.Context, id string, content domain.Content, styles domain.Styles) (*domain.Block, error) {
	var out domain.Block
	err := g.withTx(ctx, func(tx *sql.Tx) error {
		b, err := g.getBlock(ctx, tx, id)
		if err != nil {
			return err
		}
		if content != nil {
			b.Content = content
		}
		if styles != nil {
			b.Styles = styles.Clone()
		}
		if err := b.Validate(); err != nil {
			return err
		}
		b.UpdatedAt = g.now()
		out = b
		return g.putBlock(ctx, tx, b)
	})
	if err != nil {
		if domain.GetCode(err) != "" {
			return nil, err
		}
		return nil, domain.ErrPersistence(err, "update block")
	}
	return &out, nil
}

// DeleteBlock removes a block; unknown ids are ignored.
func (g *SQLGateway) DeleteBlock(ctx context.Context, id string) error {
	err := g.withTx(ctx, func(tx *sql.Tx) error {
		var pageID string
		err := tx.QueryRowContext(ctx, g.db.rebind(`SELECT page_id FROM blocks WHERE id = ?`), id).Scan(&pageID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, g.db.rebind(`DELETE FROM blocks WHERE id = ?`), id); err != nil {
			return err
		}
		return g.renumber(ctx, tx, pageID)
	})
	if err != nil {
		return domain.ErrPersistence(err, "delete block")
	}
	return nil
}

func (g *SQLGateway) ListBlocks(ctx context.Context, pageID string) ([]domain.Block, error) {
	blocks, err := g.listBlocks(ctx, g.db.Conn(), pageID)
	if err != nil {
		return nil, domain.ErrPersistence(err, "list blocks")
	}
	return blocks, nil
}

// ── VersionGateway ─────────────────────────────────────────

func (g *SQLGateway) CreateVersion(ctx context.Context, pageID, version, description, tag string, state domain.PageState) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", domain.WrapError(domain.ErrCodeValidation, err, "encode version state")
	}
	id := uuid.NewString()
	_, err = g.db.Conn().ExecContext(ctx, g.db.rebind(
		`INSERT INTO versions (id, page_id, label, description, tag, state_json, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		id, pageID, version, description, tag, string(data), g.now())
	if err != nil {
		return "", domain.ErrPersistence(err, "create version")
	}
	return id, nil
}

// ListVersions returns version metadata newest first, without state.
func (g *SQLGateway) ListVersions(ctx context.Context, pageID string) ([]domain.Version, error) {
	rows, err := g.db.Conn().QueryContext(ctx, g.db.rebind(
		`SELECT id, page_id, label, description, tag, created_at FROM versions WHERE page_id = ? ORDER BY created_at DESC, id DESC`), pageID)
	if err != nil {
		return nil, domain.ErrPersistence(err, "list versions")
	}
	defer rows.Close()

	out := []domain.Version{}
	for rows.Next() {
		var v domain.Version
		if err := rows.Scan(&v.ID, &v.PageID, &v.Version, &v.Description, &v.Tag, &v.CreatedAt); err != nil {
			return nil, domain.ErrPersistence(err, "scan version")
		}
		v.CreatedAt = v.CreatedAt.UTC()
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrPersistence(err, "list versions")
	}
	return out, nil
}

func (g *SQLGateway) LoadVersion(ctx context.Context, versionID string) (*domain.PageState, error) {
	var data string
	err := g.db.Conn().QueryRowContext(ctx, g.db.rebind(`SELECT state_json FROM versions WHERE id = ?`), versionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("version", versionID)
	}
	if err != nil {
		return nil, domain.ErrPersistence(err, "load version")
	}
	var st domain.PageState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, domain.WrapError(domain.ErrCodeValidation, err, "decode version %s", versionID)
	}
	return &st, nil
}

// ── PageGateway ────────────────────────────────────────────

// LoadPage returns the stored page. A page never written yet loads as empty.
func (g *SQLGateway) LoadPage(ctx context.Context, pageID string) (*domain.PageState, error) {
	st := &domain.PageState{Page: domain.Page{ID: pageID}, Blocks: []domain.Block{}}
	var settings string
	err := g.db.Conn().QueryRowContext(ctx, g.db.rebind(
		`SELECT name, settings_json, created_at, updated_at FROM pages WHERE id = ?`), pageID).
		Scan(&st.Page.Name, &settings, &st.Page.CreatedAt, &st.Page.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return st, nil
	case err != nil:
		return nil, domain.ErrPersistence(err, "load page")
	}
	st.Page.CreatedAt = st.Page.CreatedAt.UTC()
	st.Page.UpdatedAt = st.Page.UpdatedAt.UTC()
	if err := json.Unmarshal([]byte(settings), &st.Settings); err != nil {
		return nil, domain.WrapError(domain.ErrCodeValidation, err, "decode page settings")
	}
	blocks, err := g.listBlocks(ctx, g.db.Conn(), pageID)
	if err != nil {
		return nil, domain.ErrPersistence(err, "load page blocks")
	}
	st.Blocks = blocks
	return st, nil
}

// SaveChanges applies one autosave change set atomically.
func (g *SQLGateway) SaveChanges(ctx context.Context, cs domain.ChangeSet) error {
	err := g.withTx(ctx, func(tx *sql.Tx) error {
		if err := g.ensurePage(ctx, tx, domain.Page{ID: cs.PageID}); err != nil {
			return err
		}
		for _, b := range cs.Upserts {
			b.PageID = cs.PageID
			if err := g.putBlock(ctx, tx, b); err != nil {
				return fmt.Errorf("upsert block %s: %w", b.ID, err)
			}
		}
		for _, id := range cs.Deletes {
			if _, err := tx.ExecContext(ctx, g.db.rebind(`DELETE FROM blocks WHERE id = ? AND page_id = ?`), id, cs.PageID); err != nil {
				return fmt.Errorf("delete block %s: %w", id, err)
			}
		}
		if cs.Settings != nil {
			return g.putSettings(ctx, tx, cs.PageID, *cs.Settings)
		}
		return nil
	})
	if err != nil {
		return domain.ErrPersistence(err, "save changes")
	}
	return nil
}

// ReplacePage atomically replaces all blocks and settings of a page.
func (g *SQLGateway) ReplacePage(ctx context.Context, pageID string, state domain.PageState) error {
	err := g.withTx(ctx, func(tx *sql.Tx) error {
		if err := g.ensurePage(ctx, tx, domain.Page{ID: pageID, Name: state.Page.Name}); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, g.db.rebind(`DELETE FROM blocks WHERE page_id = ?`), pageID); err != nil {
			return fmt.Errorf("delete blocks: %w", err)
		}
		for _, b := range state.Blocks {
			b.PageID = pageID
			if err := g.putBlock(ctx, tx, b); err != nil {
				return fmt.Errorf("insert block %s: %w", b.ID, err)
			}
		}
		return g.putSettings(ctx, tx, pageID, state.Settings)
	})
	if err != nil {
		return domain.ErrPersistence(err, "replace page")
	}
	return nil
}
