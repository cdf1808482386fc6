package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"sitebuilder/internal/domain"
)

// MongoGateway implements domain.Gateway on MongoDB. Multi-document writes use
// transactions when enabled, which needs a replica set.
type MongoGateway struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
	now          func() time.Time
}

var _ domain.Gateway = (*MongoGateway)(nil)

type pageDoc struct {
	ID        string              `bson:"_id"`
	Name      string              `bson:"name"`
	Settings  domain.PageSettings `bson:"settings"`
	CreatedAt time.Time           `bson:"createdAt"`
	UpdatedAt time.Time           `bson:"updatedAt"`
}

type blockDoc struct {
	ID               string                       `bson:"_id"`
	PageID           string                       `bson:"pageId"`
	Type             string                       `bson:"type"`
	Order            int                          `bson:"order"`
	ZOrder           int                          `bson:"zOrder"`
	Content          string                       `bson:"content"` // JSON of the typed payload
	Styles           map[string]string            `bson:"styles"`
	ResponsiveStyles map[string]map[string]string `bson:"responsiveStyles,omitempty"`
	Visible          bool                         `bson:"visible"`
	Locked           bool                         `bson:"locked"`
	CreatedAt        time.Time                    `bson:"createdAt"`
	UpdatedAt        time.Time                    `bson:"updatedAt"`
}

type versionDoc struct {
	ID          string    `bson:"_id"`
	PageID      string    `bson:"pageId"`
	Version     string    `bson:"version"`
	Description string    `bson:"description"`
	Tag         string    `bson:"tag"`
	State       string    `bson:"state"` // JSON of domain.PageState
	CreatedAt   time.Time `bson:"createdAt"`
}

func toBlockDoc(b domain.Block) (blockDoc, error) {
	raw, err := domain.EncodeContent(b.Content)
	if err != nil {
		return blockDoc{}, err
	}
	d := blockDoc{
		ID: b.ID, PageID: b.PageID, Type: string(b.Type), Order: b.Order, ZOrder: b.ZOrder,
		Content: string(raw), Styles: map[string]string(b.Styles.Clone()),
		Visible: b.Visible, Locked: b.Locked, CreatedAt: b.CreatedAt.UTC(), UpdatedAt: b.UpdatedAt.UTC(),
	}
	if d.Styles == nil {
		d.Styles = map[string]string{}
	}
	if len(b.ResponsiveStyles) > 0 {
		d.ResponsiveStyles = make(map[string]map[string]string, len(b.ResponsiveStyles))
		for bp, s := range b.ResponsiveStyles {
			d.ResponsiveStyles[string(bp)] = map[string]string(s.Clone())
		}
	}
	return d, nil
}

func (d blockDoc) toBlock() (domain.Block, error) {
	t := domain.BlockType(d.Type)
	c, err := domain.DecodeContent(t, []byte(d.Content))
	if err != nil {
		return domain.Block{}, fmt.Errorf("block %s: %w", d.ID, err)
	}
	b := domain.Block{
		ID: d.ID, PageID: d.PageID, Type: t, Order: d.Order, ZOrder: d.ZOrder, Content: c,
		Styles: domain.Styles(d.Styles), Visible: d.Visible, Locked: d.Locked,
		CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
	if b.Styles == nil {
		b.Styles = domain.Styles{}
	}
	if len(d.ResponsiveStyles) > 0 {
		b.ResponsiveStyles = make(domain.ResponsiveStyles, len(d.ResponsiveStyles))
		for bp, s := range d.ResponsiveStyles {
			b.ResponsiveStyles[domain.Breakpoint(bp)] = domain.Styles(s)
		}
	}
	return b, nil
}

// NewMongoGateway connects to uri and uses database dbName.
func NewMongoGateway(ctx context.Context, uri, dbName string, transactions bool) (*MongoGateway, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	g := &MongoGateway{
		client:       client,
		db:           client.Database(dbName),
		transactions: transactions,
		now:          func() time.Time { return time.Now().UTC() },
	}
	return g, nil
}

func (g *MongoGateway) Close(ctx context.Context) error {
	return g.client.Disconnect(ctx)
}

func (g *MongoGateway) pages() *mongo.Collection    { return g.db.Collection("pages") }
func (g *MongoGateway) blocks() *mongo.Collection   { return g.db.Collection("blocks") }
func (g *MongoGateway) versions() *mongo.Collection { return g.db.Collection("versions") }

// atomically runs fn inside a transaction when enabled.
func (g *MongoGateway) atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if !g.transactions {
		return fn(ctx)
	}
	sess, err := g.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

func (g *MongoGateway) touchPage(ctx context.Context, pageID string) error {
	now := g.now()
	_, err := g.pages().UpdateOne(ctx, bson.M{"_id": pageID}, bson.M{
		"$set":         bson.M{"updatedAt": now},
		"$setOnInsert": bson.M{"name": "", "settings": domain.PageSettings{}, "createdAt": now},
	}, options.UpdateOne().SetUpsert(true))
	return err
}

func (g *MongoGateway) putBlock(ctx context.Context, b domain.Block) error {
	d, err := toBlockDoc(b)
	if err != nil {
		return err
	}
	_, err = g.blocks().ReplaceOne(ctx, bson.M{"_id": d.ID}, d, options.Replace().SetUpsert(true))
	return err
}

func (g *MongoGateway) listBlocks(ctx context.Context, pageID string) ([]domain.Block, error) {
	cur, err := g.blocks().Find(ctx, bson.M{"pageId": pageID},
		options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []blockDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Block, 0, len(docs))
	for _, d := range docs {
		b, err := d.toBlock()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// ── BlockGateway ───────────────────────────────────────────

func (g *MongoGateway) CreateBlock(ctx context.Context, pageID string, t domain.BlockType, content domain.Content, styles domain.Styles, order int) (*domain.Block, error) {
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
	err := g.atomically(ctx, func(ctx context.Context) error {
		if err := g.touchPage(ctx, pageID); err != nil {
			return err
		}
		count, err := g.blocks().CountDocuments(ctx, bson.M{"pageId": pageID})
		if err != nil {
			return err
		}
		if order < 0 || order > int(count) {
			order = int(count)
		}
		b.Order = order
		var top blockDoc
		err = g.blocks().FindOne(ctx, bson.M{"pageId": pageID},
			options.FindOne().SetSort(bson.D{{Key: "zOrder", Value: -1}})).Decode(&top)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
		case err != nil:
			return err
		default:
			b.ZOrder = top.ZOrder + 1
		}
		if _, err := g.blocks().UpdateMany(ctx,
			bson.M{"pageId": pageID, "order": bson.M{"$gte": order}},
			bson.M{"$inc": bson.M{"order": 1}}); err != nil {
			return err
		}
		return g.putBlock(ctx, b)
	})
	if err != nil {
		return nil, domain.ErrPersistence(err, "create block")
	}
	return &b, nil
}

func (g *MongoGateway) UpdateBlock(ctx context.Context, id string, content domain.Content, styles domain.Styles) (*domain.Block, error) {
	var d blockDoc
	err := g.blocks().FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound("block", id)
	}
	if err != nil {
		return nil, domain.ErrPersistence(err, "load block")
	}
	b, err := d.toBlock()
	if err != nil {
		return nil, err
	}
	if content != nil {
		b.Content = content
	}
	if styles != nil {
		b.Styles = styles.Clone()
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	b.UpdatedAt = g.now()
	if err := g.putBlock(ctx, b); err != nil {
		return nil, domain.ErrPersistence(err, "update block")
	}
	return &b, nil
}

func (g *MongoGateway) DeleteBlock(ctx context.Context, id string) error {
	err := g.atomically(ctx, func(ctx context.Context) error {
		var d blockDoc
		err := g.blocks().FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&d)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = g.blocks().UpdateMany(ctx,
			bson.M{"pageId": d.PageID, "order": bson.M{"$gt": d.Order}},
			bson.M{"$inc": bson.M{"order": -1}})
		return err
	})
	if err != nil {
		return domain.ErrPersistence(err, "delete block")
	}
	return nil
}

func (g *MongoGateway) ListBlocks(ctx context.Context, pageID string) ([]domain.Block, error) {
	out, err := g.listBlocks(ctx, pageID)
	if err != nil {
		return nil, domain.ErrPersistence(err, "list blocks")
	}
	return out, nil
}

// ── VersionGateway ─────────────────────────────────────────

func (g *MongoGateway) CreateVersion(ctx context.Context, pageID, version, description, tag string, state domain.PageState) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", domain.WrapError(domain.ErrCodeValidation, err, "encode version state")
	}
	d := versionDoc{
		ID: uuid.NewString(), PageID: pageID, Version: version, Description: description,
		Tag: tag, State: string(data), CreatedAt: g.now(),
	}
	if _, err := g.versions().InsertOne(ctx, d); err != nil {
		return "", domain.ErrPersistence(err, "create version")
	}
	return d.ID, nil
}

func (g *MongoGateway) ListVersions(ctx context.Context, pageID string) ([]domain.Version, error) {
	cur, err := g.versions().Find(ctx, bson.M{"pageId": pageID},
		options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}}).
			SetProjection(bson.M{"state": 0}))
	if err != nil {
		return nil, domain.ErrPersistence(err, "list versions")
	}
	var docs []versionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, domain.ErrPersistence(err, "list versions")
	}
	out := make([]domain.Version, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Version{
			ID: d.ID, PageID: d.PageID, Version: d.Version, Description: d.Description,
			Tag: d.Tag, CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (g *MongoGateway) LoadVersion(ctx context.Context, versionID string) (*domain.PageState, error) {
	var d versionDoc
	err := g.versions().FindOne(ctx, bson.M{"_id": versionID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound("version", versionID)
	}
	if err != nil {
		return nil, domain.ErrPersistence(err, "load version")
	}
	var st domain.PageState
	if err := json.Unmarshal([]byte(d.State), &st); err != nil {
		return nil, domain.WrapError(domain.ErrCodeValidation, err, "decode version %s", versionID)
	}
	return &st, nil
}

// ── PageGateway ────────────────────────────────────────────

func (g *MongoGateway) LoadPage(ctx context.Context, pageID string) (*domain.PageState, error) {
	st := &domain.PageState{Page: domain.Page{ID: pageID}, Blocks: []domain.Block{}}
	var p pageDoc
	err := g.pages().FindOne(ctx, bson.M{"_id": pageID}).Decode(&p)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return st, nil
	case err != nil:
		return nil, domain.ErrPersistence(err, "load page")
	}
	st.Page = domain.Page{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt.UTC(), UpdatedAt: p.UpdatedAt.UTC()}
	st.Settings = p.Settings
	blocks, err := g.listBlocks(ctx, pageID)
	if err != nil {
		return nil, domain.ErrPersistence(err, "load page blocks")
	}
	st.Blocks = blocks
	return st, nil
}

func (g *MongoGateway) SaveChanges(ctx context.Context, cs domain.ChangeSet) error {
	err := g.atomically(ctx, func(ctx context.Context) error {
		if err := g.touchPage(ctx, cs.PageID); err != nil {
			return err
		}
		for _, b := range cs.Upserts {
			b.PageID = cs.PageID
			if err := g.putBlock(ctx, b); err != nil {
				return fmt.Errorf("upsert block %s: %w", b.ID, err)
			}
		}
		if len(cs.Deletes) > 0 {
			if _, err := g.blocks().DeleteMany(ctx, bson.M{"_id": bson.M{"$in": cs.Deletes}, "pageId": cs.PageID}); err != nil {
				return fmt.Errorf("delete blocks: %w", err)
			}
		}
		if cs.Settings != nil {
			_, err := g.pages().UpdateOne(ctx, bson.M{"_id": cs.PageID}, bson.M{"$set": bson.M{"settings": *cs.Settings}})
			return err
		}
		return nil
	})
	if err != nil {
		return domain.ErrPersistence(err, "save changes")
	}
	return nil
}

// ReplacePage needs transactions: without them a failure between the delete
// and the insert would leave the page empty.
func (g *MongoGateway) ReplacePage(ctx context.Context, pageID string, state domain.PageState) error {
	if !g.transactions {
		return domain.NewError(domain.ErrCodePersistence,
			"replace page %s: mongo transactions are disabled; set [mongo] transactions = true (needs a replica set)", pageID)
	}
	err := g.atomically(ctx, func(ctx context.Context) error {
		if err := g.touchPage(ctx, pageID); err != nil {
			return err
		}
		if _, err := g.blocks().DeleteMany(ctx, bson.M{"pageId": pageID}); err != nil {
			return fmt.Errorf("delete blocks: %w", err)
		}
		if len(state.Blocks) > 0 {
			docs := make([]blockDoc, 0, len(state.Blocks))
			for _, b := range state.Blocks {
				b.PageID = pageID
				d, err := toBlockDoc(b)
				if err != nil {
					return err
				}
				docs = append(docs, d)
			}
			if _, err := g.blocks().InsertMany(ctx, docs); err != nil {
				return fmt.Errorf("insert blocks: %w", err)
			}
		}
		_, err := g.pages().UpdateOne(ctx, bson.M{"_id": pageID}, bson.M{"$set": bson.M{"settings": state.Settings}})
		return err
	})
	if err != nil {
		return domain.ErrPersistence(err, "replace page")
	}
	return nil
}
