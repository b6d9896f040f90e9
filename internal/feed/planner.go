package feed

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sozialka/social-content-service/internal/models"
)

var validate = validator.New()

// ListParams are the caller-supplied pagination inputs for list reads.
// Kind optionally narrows a children query to one child kind.
type ListParams struct {
	Page  int64            `validate:"gte=1"`
	Limit int64            `validate:"gte=1,lte=100"`
	Kind  *models.PostKind `validate:"-"`
}

// Validate rejects malformed pagination or kind before any store call.
func (p ListParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: page must be >= 1 and limit in [1,100]: %v", ErrInvalidInput, err)
	}
	if p.Kind != nil && !models.ValidKind(*p.Kind) {
		return fmt.Errorf("%w: unknown post kind %d", ErrInvalidInput, *p.Kind)
	}
	return nil
}

// DetailMatch matches a single post by id. Circle access is enforced
// after the fetch because the check needs the author's record.
func DetailMatch(postID primitive.ObjectID) bson.D {
	return bson.D{{Key: "_id", Value: postID}}
}

// ChildrenMatch matches the children of a post, optionally narrowed to
// one child kind.
func ChildrenMatch(parentID primitive.ObjectID, kind *models.PostKind) bson.D {
	filter := bson.D{{Key: "parent_id", Value: parentID}}
	if kind != nil {
		filter = append(filter, bson.E{Key: "type", Value: *kind})
	}
	return filter
}

// sortedIDSet turns an id slice into a sorted $in array so identical
// inputs always produce an identical condition.
func sortedIDSet(ids []primitive.ObjectID) bson.A {
	sorted := make([]primitive.ObjectID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Hex() < sorted[j].Hex()
	})

	in := make(bson.A, 0, len(sorted))
	for _, id := range sorted {
		in = append(in, id)
	}
	return in
}

// HomeFeedMatch matches posts authored by the viewer or anyone the
// viewer follows.
func HomeFeedMatch(viewerID primitive.ObjectID, followed []primitive.ObjectID) bson.D {
	authors := make([]primitive.ObjectID, 0, len(followed)+1)
	authors = append(authors, viewerID)
	authors = append(authors, followed...)
	return bson.D{{Key: "user_id", Value: bson.D{{Key: "$in", Value: sortedIDSet(authors)}}}}
}

// MediaFilter optionally narrows a search to posts carrying a media
// kind. The video filter covers both plain and streaming video.
type MediaFilter string

const (
	MediaFilterNone  MediaFilter = ""
	MediaFilterImage MediaFilter = "image"
	MediaFilterVideo MediaFilter = "video"
)

// SearchParams are the caller-supplied inputs for a full-text search.
// PeopleFollow narrows results to authors the viewer follows and only
// takes effect for a signed-in viewer.
type SearchParams struct {
	Content      string `validate:"required"`
	Media        MediaFilter
	PeopleFollow bool
	Page         int64 `validate:"gte=1"`
	Limit        int64 `validate:"gte=1,lte=100"`
}

// Validate rejects an empty query, malformed pagination or an unknown
// media filter before any store call.
func (p SearchParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: content is required, page must be >= 1 and limit in [1,100]: %v", ErrInvalidInput, err)
	}
	switch p.Media {
	case MediaFilterNone, MediaFilterImage, MediaFilterVideo:
		return nil
	}
	return fmt.Errorf("%w: unknown media filter %q", ErrInvalidInput, p.Media)
}

// SearchMatch matches posts by full-text content search, optionally
// narrowed to a media kind and to a set of authors.
func SearchMatch(content string, media MediaFilter, authors []primitive.ObjectID) bson.D {
	filter := bson.D{
		{Key: "$text", Value: bson.D{
			{Key: "$search", Value: content},
			{Key: "$caseSensitive", Value: true},
		}},
	}
	switch media {
	case MediaFilterImage:
		filter = append(filter, bson.E{Key: "medias.type", Value: bson.D{
			{Key: "$in", Value: bson.A{models.MediaImage}},
		}})
	case MediaFilterVideo:
		filter = append(filter, bson.E{Key: "medias.type", Value: bson.D{
			{Key: "$in", Value: bson.A{models.MediaVideo, models.MediaStreamingVideo}},
		}})
	}
	if len(authors) > 0 {
		filter = append(filter, bson.E{Key: "user_id", Value: bson.D{
			{Key: "$in", Value: sortedIDSet(authors)},
		}})
	}
	return filter
}

// HashtagMatch matches posts tagged with any of the given hashtag ids.
func HashtagMatch(hashtagIDs []primitive.ObjectID) bson.D {
	return bson.D{{Key: "hashtags", Value: bson.D{
		{Key: "$in", Value: sortedIDSet(hashtagIDs)},
	}}}
}
