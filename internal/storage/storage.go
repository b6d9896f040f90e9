package storage

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sozialka/social-content-service/internal/models"
)

// Store is the contract the document store fulfils for this service.
// Lookup methods return (nil, nil) when the document does not exist.
type Store interface {
	// Posts
	InsertPost(ctx context.Context, post *models.Post) (primitive.ObjectID, error)
	FindPostByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error)
	CountPosts(ctx context.Context, filter bson.D) (int64, error)
	AggregatePostViews(ctx context.Context, pipeline mongo.Pipeline) ([]models.PostView, error)
	AggregateFeedFacet(ctx context.Context, pipeline mongo.Pipeline) ([]models.PostView, int64, error)
	// IncrementViews bumps exactly one of the two view counters on every
	// post matching filter, atomically at the store.
	IncrementViews(ctx context.Context, filter bson.D, authenticated bool) error

	// Users and follow graph
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FollowedUserIDs(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error)

	// Hashtags
	UpsertHashtags(ctx context.Context, names []string) ([]primitive.ObjectID, error)
	FindHashtagIDs(ctx context.Context, names []string) ([]primitive.ObjectID, error)

	// Engagement records
	SaveBookmark(ctx context.Context, userID, postID primitive.ObjectID) (*models.Engagement, error)
	RemoveBookmark(ctx context.Context, userID, postID primitive.ObjectID) error
	SaveLike(ctx context.Context, userID, postID primitive.ObjectID) (*models.Engagement, error)
	RemoveLike(ctx context.Context, userID, postID primitive.ObjectID) error

	// Transcode job status
	CreateJobStatus(ctx context.Context, status *models.JobStatus) error
	UpdateJobStatus(ctx context.Context, id primitive.ObjectID, state models.JobState, message string) error
	FindJobStatus(ctx context.Context, id primitive.ObjectID) (*models.JobStatus, error)

	Close() error
}
