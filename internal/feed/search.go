package feed

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sozialka/social-content-service/internal/aggregate"
	"github.com/sozialka/social-content-service/internal/models"
)

// searchPage runs a faceted, audience-filtered page read over the given
// match condition. The shared shape behind both search entry points;
// unlike the feed reads, search never writes view counters back.
func (s *Service) searchPage(ctx context.Context, filter bson.D, page, limit int64, viewerID *primitive.ObjectID) (*models.FeedPage, error) {
	inner := aggregate.Concat(
		aggregate.Paginate(page, limit),
		aggregate.JoinHashtags(),
		aggregate.JoinMentions(),
		aggregate.JoinEngagementCounts(),
		aggregate.JoinChildCounts(),
		aggregate.SimulatedViews(viewerID != nil),
		aggregate.DropInternalFields(),
	)
	pipeline := aggregate.Concat(
		aggregate.Match(filter),
		aggregate.JoinAuthor(),
		aggregate.AudienceFilter(viewerID),
		aggregate.SortByCreatedAtDesc(),
		aggregate.FacetPage(inner),
	)

	items, count, err := s.store.AggregateFeedFacet(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return &models.FeedPage{
		Items: items,
		Total: totalPages(count, limit),
		Page:  page,
		Limit: limit,
	}, nil
}

// SearchPosts runs a full-text content search, optionally narrowed to a
// media kind and, for a signed-in viewer, to authors the viewer
// follows. Guests see Everyone posts only.
func (s *Service) SearchPosts(ctx context.Context, params SearchParams, viewerID *primitive.ObjectID) (*models.FeedPage, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var authors []primitive.ObjectID
	if params.PeopleFollow && viewerID != nil {
		followed, err := s.store.FollowedUserIDs(ctx, *viewerID)
		if err != nil {
			return nil, err
		}
		authors = append([]primitive.ObjectID{*viewerID}, followed...)
	}

	page, err := s.searchPage(ctx, SearchMatch(params.Content, params.Media, authors), params.Page, params.Limit, viewerID)
	if err != nil {
		readErrorsTotal.WithLabelValues("search").Inc()
		return nil, err
	}
	readsTotal.WithLabelValues("search").Inc()
	return page, nil
}

// SearchByHashtag returns posts tagged with any of the named hashtags.
// The query is a comma-separated list; names are normalized the same
// way post creation normalizes them, and unknown names simply match
// nothing.
func (s *Service) SearchByHashtag(ctx context.Context, hashtag string, params ListParams, viewerID *primitive.ObjectID) (*models.FeedPage, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	names := normalizeHashtags(strings.Split(hashtag, ","))
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: hashtag is required", ErrInvalidInput)
	}

	ids, err := s.store.FindHashtagIDs(ctx, names)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &models.FeedPage{Items: []models.PostView{}, Page: params.Page, Limit: params.Limit}, nil
	}

	page, err := s.searchPage(ctx, HashtagMatch(ids), params.Page, params.Limit, viewerID)
	if err != nil {
		readErrorsTotal.WithLabelValues("hashtags").Inc()
		return nil, err
	}
	readsTotal.WithLabelValues("hashtags").Inc()
	return page, nil
}
