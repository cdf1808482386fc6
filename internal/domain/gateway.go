package domain

import "context"

// BlockGateway is the per-block remote API.
type BlockGateway interface {
	CreateBlock(ctx context.Context, pageID string, t BlockType, content Content, styles Styles, order int) (*Block, error)
	UpdateBlock(ctx context.Context, id string, content Content, styles Styles) (*Block, error)
	DeleteBlock(ctx context.Context, id string) error
	ListBlocks(ctx context.Context, pageID string) ([]Block, error)
}

// VersionGateway stores and loads page snapshots.
type VersionGateway interface {
	CreateVersion(ctx context.Context, pageID, version, description, tag string, state PageState) (string, error)
	ListVersions(ctx context.Context, pageID string) ([]Version, error)
	LoadVersion(ctx context.Context, versionID string) (*PageState, error)
}

// PageGateway persists whole-page state. SaveChanges is the single call an
// autosave cycle issues; ReplacePage must be atomic.
type PageGateway interface {
	LoadPage(ctx context.Context, pageID string) (*PageState, error)
	SaveChanges(ctx context.Context, cs ChangeSet) error
	ReplacePage(ctx context.Context, pageID string, state PageState) error
}

// Gateway is the full persistence surface the editor core consumes.
type Gateway interface {
	BlockGateway
	VersionGateway
	PageGateway
}
