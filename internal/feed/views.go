package feed

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sozialka/social-content-service/internal/storage"
)

// ViewCounter persists read-side view increments, decoupled from the
// aggregation reads themselves.
type ViewCounter struct {
	store storage.Store
}

// NewViewCounter creates a view counter backed by store.
func NewViewCounter(store storage.Store) *ViewCounter {
	return &ViewCounter{store: store}
}

// IncrementPosts bumps the guest or authenticated view counter by one
// on every post in ids. The increment is atomic per document at the
// store; nothing here reads before writing.
func (v *ViewCounter) IncrementPosts(ctx context.Context, ids []primitive.ObjectID, viewerID *primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	in := make(bson.A, 0, len(ids))
	for _, id := range ids {
		in = append(in, id)
	}
	filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: in}}}}
	if err := v.store.IncrementViews(ctx, filter, viewerID != nil); err != nil {
		return fmt.Errorf("failed to increment post views: %w", err)
	}
	return nil
}

// IncrementMatching bumps the view counter on every post matching the
// planner-built filter, used when the matched set is already defined by
// a query rather than a fetched id list.
func (v *ViewCounter) IncrementMatching(ctx context.Context, filter bson.D, viewerID *primitive.ObjectID) error {
	if err := v.store.IncrementViews(ctx, filter, viewerID != nil); err != nil {
		return fmt.Errorf("failed to increment matching views: %w", err)
	}
	return nil
}
