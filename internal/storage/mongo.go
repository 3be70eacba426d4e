// internal/storage/mongo.go
package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/valpere/SocialScrapexter/internal/config"
	"github.com/valpere/SocialScrapexter/internal/utils"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

var mongoLogger = utils.NewComponentLogger("mongo-archive")

const defaultArchiveTimeout = 10 * time.Second

// mongoArchive mirrors raw post payloads into a MongoDB collection. The
// archive keeps the unmodified platform response so future parser changes
// can be replayed against history. It is best-effort: the SQL row is the
// source of truth and archive failures only log.
type mongoArchive struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

func newMongoArchive(ctx context.Context, cfg config.ArchiveConfig) (*mongoArchive, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultArchiveTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to archive: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging archive: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)

	// unique on the same natural key as the posts table
	idxCtx, cancelIdx := context.WithTimeout(ctx, timeout)
	defer cancelIdx()
	_, err = coll.Indexes().CreateOne(idxCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "platform", Value: 1}, {Key: "post_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		mongoLogger.WithError(err).Warn("could not ensure archive index")
	}

	mongoLogger.Infof("archive connected: %s.%s", cfg.Database, cfg.Collection)
	return &mongoArchive{client: client, collection: coll, timeout: timeout}, nil
}

// Store upserts the raw payload for a post.
func (a *mongoArchive) Store(ctx context.Context, post *types.Post) error {
	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	filter := bson.M{"platform": string(post.Platform), "post_id": post.ID}
	update := bson.M{"$set": bson.M{
		"platform":    string(post.Platform),
		"post_id":     post.ID,
		"raw_data":    post.RawData,
		"scraped_at":  post.ScrapedAt,
		"archived_at": time.Now().UTC(),
	}}

	_, err := a.collection.UpdateOne(opCtx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("archiving %s: %w", post.NaturalKey(), err)
	}
	return nil
}

func (a *mongoArchive) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		mongoLogger.WithError(err).Warn("archive disconnect failed")
	}
}
