package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sozialka/social-content-service/internal/models"
)

// CreatePostRequest carries the caller-validated inputs for a new post.
type CreatePostRequest struct {
	Kind     models.PostKind
	Audience models.Audience
	Content  string `validate:"max=280"`
	ParentID *primitive.ObjectID
	Hashtags []string
	Mentions []primitive.ObjectID
	Medias   []models.Media
}

// validateCreate enforces the post invariants: an original post carries
// no parent, the other kinds require an existing parent, a repost body
// is empty, and any other kind needs a body unless hashtags or mentions
// are present.
func (s *Service) validateCreate(ctx context.Context, req CreatePostRequest) error {
	if !models.ValidKind(req.Kind) {
		return fmt.Errorf("%w: unknown post kind %d", ErrInvalidInput, req.Kind)
	}
	if !models.ValidAudience(req.Audience) {
		return fmt.Errorf("%w: unknown audience %d", ErrInvalidInput, req.Audience)
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if req.Kind == models.KindOriginal {
		if req.ParentID != nil {
			return fmt.Errorf("%w: original post must not reference a parent", ErrInvalidInput)
		}
	} else {
		if req.ParentID == nil {
			return fmt.Errorf("%w: post kind %d requires a parent id", ErrInvalidInput, req.Kind)
		}
		parent, err := s.store.FindPostByID(ctx, *req.ParentID)
		if err != nil {
			return err
		}
		if parent == nil {
			return fmt.Errorf("%w: parent post %s", ErrNotFound, req.ParentID.Hex())
		}
	}

	body := strings.TrimSpace(req.Content)
	if req.Kind == models.KindRepost {
		if body != "" {
			return fmt.Errorf("%w: repost body must be empty", ErrInvalidInput)
		}
	} else if body == "" && len(req.Hashtags) == 0 && len(req.Mentions) == 0 {
		return fmt.Errorf("%w: post body must not be empty", ErrInvalidInput)
	}

	return nil
}

// normalizeHashtags lower-cases, trims and dedupes hashtag names while
// keeping first-seen order.
func normalizeHashtags(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		n := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// CreatePost validates the request, lazily creates any new hashtags and
// stores the post, returning the stored document.
func (s *Service) CreatePost(ctx context.Context, userID primitive.ObjectID, req CreatePostRequest) (*models.Post, error) {
	if err := s.validateCreate(ctx, req); err != nil {
		return nil, err
	}

	hashtagIDs, err := s.store.UpsertHashtags(ctx, normalizeHashtags(req.Hashtags))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	post := &models.Post{
		UserID:    userID,
		Content:   req.Content,
		ParentID:  req.ParentID,
		Kind:      req.Kind,
		Audience:  req.Audience,
		Hashtags:  hashtagIDs,
		Mentions:  req.Mentions,
		Medias:    req.Medias,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := s.store.InsertPost(ctx, post)
	if err != nil {
		return nil, err
	}

	stored, err := s.store.FindPostByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("post %s missing immediately after insert", id.Hex())
	}

	postsCreated.Inc()
	return stored, nil
}
