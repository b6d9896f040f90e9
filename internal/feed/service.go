package feed

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"github.com/sozialka/social-content-service/internal/aggregate"
	"github.com/sozialka/social-content-service/internal/models"
	"github.com/sozialka/social-content-service/internal/storage"
)

// AccessChecker answers whether a viewer may see Circle-audience
// content from a given author. Token verification and the membership
// source behind it live outside this package.
type AccessChecker interface {
	CanView(ctx context.Context, authorID primitive.ObjectID, viewerID *primitive.ObjectID) (bool, error)
}

// Service assembles posts into fully-joined, privacy-filtered,
// engagement-annotated views.
type Service struct {
	store  storage.Store
	access AccessChecker
	views  *ViewCounter
}

// NewService creates the aggregation service.
func NewService(store storage.Store, access AccessChecker) *Service {
	return &Service{
		store:  store,
		access: access,
		views:  NewViewCounter(store),
	}
}

// GetDetail returns one post with every join applied. A post that does
// not exist yields ErrNotFound; a Circle post the viewer may not see
// yields ErrForbidden without leaking content.
func (s *Service) GetDetail(ctx context.Context, postID primitive.ObjectID, viewerID *primitive.ObjectID) (*models.PostView, error) {
	pipeline := aggregate.Concat(
		aggregate.Match(DetailMatch(postID)),
		aggregate.JoinHashtags(),
		aggregate.JoinMentions(),
		aggregate.JoinAuthor(),
		aggregate.JoinEngagementCounts(),
		aggregate.JoinChildCounts(),
		aggregate.DropInternalFields(),
	)

	views, err := s.store.AggregatePostViews(ctx, pipeline)
	if err != nil {
		readErrorsTotal.WithLabelValues("detail").Inc()
		return nil, err
	}
	if len(views) == 0 {
		return nil, fmt.Errorf("%w: post %s", ErrNotFound, postID.Hex())
	}
	view := views[0]

	if view.Audience == models.AudienceCircle {
		ok, err := s.access.CanView(ctx, view.Author.ID, viewerID)
		if err != nil {
			return nil, fmt.Errorf("failed to check circle access: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: post %s", ErrForbidden, postID.Hex())
		}
	}

	readsTotal.WithLabelValues("detail").Inc()
	s.incrementAsync([]primitive.ObjectID{view.ID}, viewerID)
	return &view, nil
}

// GetChildren returns one page of a post's children with pagination
// metadata. The total count, the page fetch and the view increment on
// the matched set run concurrently.
func (s *Service) GetChildren(ctx context.Context, postID primitive.ObjectID, params ListParams, viewerID *primitive.ObjectID) (*models.FeedPage, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	parent, err := s.store.FindPostByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("%w: post %s", ErrNotFound, postID.Hex())
	}

	filter := ChildrenMatch(postID, params.Kind)
	pipeline := aggregate.Concat(
		aggregate.Match(filter),
		aggregate.SortByCreatedAtDesc(),
		aggregate.Paginate(params.Page, params.Limit),
		aggregate.JoinHashtags(),
		aggregate.JoinMentions(),
		aggregate.JoinAuthor(),
		aggregate.JoinEngagementCounts(),
		aggregate.JoinChildCounts(),
		aggregate.DropInternalFields(),
	)

	var (
		count int64
		items []models.PostView
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.CountPosts(gctx, filter)
		count = n
		return err
	})
	g.Go(func() error {
		return s.views.IncrementMatching(gctx, filter, viewerID)
	})
	g.Go(func() error {
		page, err := s.store.AggregatePostViews(gctx, pipeline)
		items = page
		return err
	})
	if err := g.Wait(); err != nil {
		readErrorsTotal.WithLabelValues("children").Inc()
		return nil, err
	}

	readsTotal.WithLabelValues("children").Inc()
	return &models.FeedPage{
		Items: items,
		Total: totalPages(count, params.Limit),
		Page:  params.Page,
		Limit: params.Limit,
	}, nil
}

// GetHomeFeed returns one page of posts authored by the viewer or the
// users they follow, audience-filtered against the viewer, newest
// first. A single faceted pipeline produces the page and the total in
// one pass; the returned posts' real view counters are then bumped as a
// separate write, while the simulated view field in the response stays
// unpersisted.
func (s *Service) GetHomeFeed(ctx context.Context, viewerID primitive.ObjectID, params ListParams) (*models.FeedPage, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	followed, err := s.store.FollowedUserIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	page := aggregate.Concat(
		aggregate.Paginate(params.Page, params.Limit),
		aggregate.JoinHashtags(),
		aggregate.JoinMentions(),
		aggregate.JoinEngagementCounts(),
		aggregate.JoinChildCounts(),
		aggregate.SimulatedViews(true),
		aggregate.DropInternalFields(),
	)
	pipeline := aggregate.Concat(
		aggregate.Match(HomeFeedMatch(viewerID, followed)),
		aggregate.JoinAuthor(),
		aggregate.AudienceFilter(&viewerID),
		aggregate.SortByCreatedAtDesc(),
		aggregate.FacetPage(page),
	)

	items, count, err := s.store.AggregateFeedFacet(ctx, pipeline)
	if err != nil {
		readErrorsTotal.WithLabelValues("home").Inc()
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	viewer := viewerID
	if err := s.views.IncrementPosts(ctx, ids, &viewer); err != nil {
		return nil, err
	}

	readsTotal.WithLabelValues("home").Inc()
	return &models.FeedPage{
		Items: items,
		Total: totalPages(count, params.Limit),
		Page:  params.Page,
		Limit: params.Limit,
	}, nil
}

// incrementAsync bumps view counters without holding up the response.
// Failures are counted and logged, never surfaced.
func (s *Service) incrementAsync(ids []primitive.ObjectID, viewerID *primitive.ObjectID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.views.IncrementPosts(ctx, ids, viewerID); err != nil {
			viewIncrementErrors.Inc()
			log.Printf("view increment failed: %v", err)
		}
	}()
}

func totalPages(count, limit int64) int64 {
	if limit <= 0 {
		return 0
	}
	return (count + limit - 1) / limit
}
