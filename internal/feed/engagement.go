package feed

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sozialka/social-content-service/internal/models"
)

// requirePost fails with ErrNotFound unless the post exists.
func (s *Service) requirePost(ctx context.Context, postID primitive.ObjectID) error {
	post, err := s.store.FindPostByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("%w: post %s", ErrNotFound, postID.Hex())
	}
	return nil
}

// Bookmark records a bookmark on the post for the user. Calling it
// twice is a no-op; the (user, post) pair stays unique.
func (s *Service) Bookmark(ctx context.Context, userID, postID primitive.ObjectID) (*models.Engagement, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	return s.store.SaveBookmark(ctx, userID, postID)
}

// Unbookmark removes the user's bookmark on the post if present.
func (s *Service) Unbookmark(ctx context.Context, userID, postID primitive.ObjectID) error {
	return s.store.RemoveBookmark(ctx, userID, postID)
}

// Like records a like on the post for the user; idempotent like
// Bookmark.
func (s *Service) Like(ctx context.Context, userID, postID primitive.ObjectID) (*models.Engagement, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	return s.store.SaveLike(ctx, userID, postID)
}

// Unlike removes the user's like on the post if present.
func (s *Service) Unlike(ctx context.Context, userID, postID primitive.ObjectID) error {
	return s.store.RemoveLike(ctx, userID, postID)
}
