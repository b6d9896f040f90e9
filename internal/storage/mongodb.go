package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sozialka/social-content-service/internal/aggregate"
	"github.com/sozialka/social-content-service/internal/config"
	"github.com/sozialka/social-content-service/internal/models"
)

// MongoStore implements Store against a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg config.MongoConfig) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoStore{
		client: client,
		db:     client.Database(cfg.Database),
	}, nil
}

func (m *MongoStore) posts() *mongo.Collection     { return m.db.Collection(aggregate.CollPosts) }
func (m *MongoStore) users() *mongo.Collection     { return m.db.Collection(aggregate.CollUsers) }
func (m *MongoStore) hashtags() *mongo.Collection  { return m.db.Collection(aggregate.CollHashtags) }
func (m *MongoStore) follows() *mongo.Collection   { return m.db.Collection(aggregate.CollFollows) }
func (m *MongoStore) bookmarks() *mongo.Collection { return m.db.Collection(aggregate.CollBookmarks) }
func (m *MongoStore) likes() *mongo.Collection     { return m.db.Collection(aggregate.CollLikes) }
func (m *MongoStore) jobStatuses() *mongo.Collection {
	return m.db.Collection(aggregate.CollJobStatus)
}

// InsertPost stores a new post document.
func (m *MongoStore) InsertPost(ctx context.Context, post *models.Post) (primitive.ObjectID, error) {
	res, err := m.posts().InsertOne(ctx, post)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to insert post: %w", err)
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return id, nil
}

// FindPostByID returns the stored post or (nil, nil) when absent.
func (m *MongoStore) FindPostByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	var post models.Post
	err := m.posts().FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&post)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post %s: %w", id.Hex(), err)
	}
	return &post, nil
}

// CountPosts counts documents matching filter.
func (m *MongoStore) CountPosts(ctx context.Context, filter bson.D) (int64, error) {
	n, err := m.posts().CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

// AggregatePostViews runs pipeline over the posts collection and
// decodes the joined documents into the read model.
func (m *MongoStore) AggregatePostViews(ctx context.Context, pipeline mongo.Pipeline) ([]models.PostView, error) {
	cursor, err := m.posts().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate posts: %w", err)
	}
	defer cursor.Close(ctx)

	var views []models.PostView
	if err := cursor.All(ctx, &views); err != nil {
		return nil, fmt.Errorf("failed to decode post views: %w", err)
	}
	return views, nil
}

// feedFacet is the single document a faceted feed pipeline produces.
type feedFacet struct {
	Items []models.PostView `bson:"items"`
	Total []struct {
		Count int64 `bson:"count"`
	} `bson:"total"`
}

// AggregateFeedFacet runs a faceted pipeline that yields one document
// holding a page of items and the pre-pagination total count.
func (m *MongoStore) AggregateFeedFacet(ctx context.Context, pipeline mongo.Pipeline) ([]models.PostView, int64, error) {
	cursor, err := m.posts().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to aggregate feed: %w", err)
	}
	defer cursor.Close(ctx)

	var results []feedFacet
	if err := cursor.All(ctx, &results); err != nil {
		return nil, 0, fmt.Errorf("failed to decode feed facet: %w", err)
	}
	if len(results) == 0 {
		return nil, 0, nil
	}

	var total int64
	if len(results[0].Total) > 0 {
		total = results[0].Total[0].Count
	}
	return results[0].Items, total, nil
}

// IncrementViews bumps guest_views or user_views by one on every post
// matching filter, using the store's atomic increment.
func (m *MongoStore) IncrementViews(ctx context.Context, filter bson.D, authenticated bool) error {
	field := "guest_views"
	if authenticated {
		field = "user_views"
	}
	_, err := m.posts().UpdateMany(ctx, filter, bson.D{
		{Key: "$inc", Value: bson.D{{Key: field, Value: 1}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now().UTC()}}},
	})
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	return nil
}

// FindUserByID returns the stored user or (nil, nil) when absent.
func (m *MongoStore) FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := m.users().FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s: %w", id.Hex(), err)
	}
	return &user, nil
}

// FollowedUserIDs resolves the set of users userID follows.
func (m *MongoStore) FollowedUserIDs(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error) {
	opts := options.Find().SetProjection(bson.D{
		{Key: "_id", Value: 0},
		{Key: "followed_user_id", Value: 1},
	})
	cursor, err := m.follows().Find(ctx, bson.D{{Key: "user_id", Value: userID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find follow edges: %w", err)
	}
	defer cursor.Close(ctx)

	var edges []struct {
		Followed primitive.ObjectID `bson:"followed_user_id"`
	}
	if err := cursor.All(ctx, &edges); err != nil {
		return nil, fmt.Errorf("failed to decode follow edges: %w", err)
	}

	ids := make([]primitive.ObjectID, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.Followed)
	}
	return ids, nil
}

// UpsertHashtags finds or inserts a hashtag per normalized name and
// returns the ids in input order.
func (m *MongoStore) UpsertHashtags(ctx context.Context, names []string) ([]primitive.ObjectID, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	ids := make([]primitive.ObjectID, 0, len(names))
	for _, name := range names {
		var tag models.Hashtag
		err := m.hashtags().FindOneAndUpdate(ctx,
			bson.D{{Key: "name", Value: name}},
			bson.D{{Key: "$setOnInsert", Value: bson.D{
				{Key: "created_at", Value: time.Now().UTC()},
			}}},
			opts,
		).Decode(&tag)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert hashtag %q: %w", name, err)
		}
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

// FindHashtagIDs resolves existing hashtag names to their ids. Names
// with no stored hashtag are simply absent from the result.
func (m *MongoStore) FindHashtagIDs(ctx context.Context, names []string) ([]primitive.ObjectID, error) {
	in := make(bson.A, 0, len(names))
	for _, name := range names {
		in = append(in, name)
	}
	opts := options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}})
	cursor, err := m.hashtags().Find(ctx, bson.D{{Key: "name", Value: bson.D{{Key: "$in", Value: in}}}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find hashtags: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode hashtag ids: %w", err)
	}

	ids := make([]primitive.ObjectID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// upsertEngagement inserts the (user, post) record into coll if it is
// not already there and returns the stored record either way.
func (m *MongoStore) upsertEngagement(ctx context.Context, coll *mongo.Collection, userID, postID primitive.ObjectID) (*models.Engagement, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var rec models.Engagement
	err := coll.FindOneAndUpdate(ctx,
		bson.D{
			{Key: "user_id", Value: userID},
			{Key: "post_id", Value: postID},
		},
		bson.D{{Key: "$setOnInsert", Value: bson.D{
			{Key: "created_at", Value: time.Now().UTC()},
		}}},
		opts,
	).Decode(&rec)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert engagement record: %w", err)
	}
	return &rec, nil
}

func (m *MongoStore) removeEngagement(ctx context.Context, coll *mongo.Collection, userID, postID primitive.ObjectID) error {
	_, err := coll.DeleteOne(ctx, bson.D{
		{Key: "user_id", Value: userID},
		{Key: "post_id", Value: postID},
	})
	if err != nil {
		return fmt.Errorf("failed to delete engagement record: %w", err)
	}
	return nil
}

// SaveBookmark records a bookmark; repeated calls are idempotent.
func (m *MongoStore) SaveBookmark(ctx context.Context, userID, postID primitive.ObjectID) (*models.Engagement, error) {
	return m.upsertEngagement(ctx, m.bookmarks(), userID, postID)
}

// RemoveBookmark deletes the bookmark if present.
func (m *MongoStore) RemoveBookmark(ctx context.Context, userID, postID primitive.ObjectID) error {
	return m.removeEngagement(ctx, m.bookmarks(), userID, postID)
}

// SaveLike records a like; repeated calls are idempotent.
func (m *MongoStore) SaveLike(ctx context.Context, userID, postID primitive.ObjectID) (*models.Engagement, error) {
	return m.upsertEngagement(ctx, m.likes(), userID, postID)
}

// RemoveLike deletes the like if present.
func (m *MongoStore) RemoveLike(ctx context.Context, userID, postID primitive.ObjectID) error {
	return m.removeEngagement(ctx, m.likes(), userID, postID)
}

// CreateJobStatus stores the initial status record for a transcode job.
func (m *MongoStore) CreateJobStatus(ctx context.Context, status *models.JobStatus) error {
	if _, err := m.jobStatuses().InsertOne(ctx, status); err != nil {
		return fmt.Errorf("failed to create job status: %w", err)
	}
	return nil
}

// UpdateJobStatus moves the record to state and stamps updated_at.
func (m *MongoStore) UpdateJobStatus(ctx context.Context, id primitive.ObjectID, state models.JobState, message string) error {
	_, err := m.jobStatuses().UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: state},
			{Key: "message", Value: message},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("failed to update job status %s: %w", id.Hex(), err)
	}
	return nil
}

// FindJobStatus returns the status record or (nil, nil) when absent.
func (m *MongoStore) FindJobStatus(ctx context.Context, id primitive.ObjectID) (*models.JobStatus, error) {
	var status models.JobStatus
	err := m.jobStatuses().FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&status)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job status %s: %w", id.Hex(), err)
	}
	return &status, nil
}

// Close disconnects from MongoDB.
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
