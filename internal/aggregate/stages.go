// Package aggregate is a library of composable aggregation pipeline
// fragments. Every fragment is a pure function of its parameters and
// returns stage documents the document store interprets; nothing in
// this package touches a live connection, so each fragment can be
// tested in isolation.
package aggregate

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sozialka/social-content-service/internal/models"
)

// Collection names the fragments join against.
const (
	CollPosts     = "posts"
	CollUsers     = "users"
	CollHashtags  = "hashtags"
	CollBookmarks = "bookmarks"
	CollLikes     = "likes"
	CollFollows   = "follows"
	CollJobStatus = "job_statuses"
)

// Facet output field names used by the home-feed pipeline.
const (
	FacetItems = "items"
	FacetTotal = "total"
)

// userPreviewMap projects the joined user documents down to the public
// preview shape. Password and token fields never leave the store.
func userPreviewMap(input string) bson.D {
	return bson.D{
		{Key: "$map", Value: bson.D{
			{Key: "input", Value: input},
			{Key: "as", Value: "u"},
			{Key: "in", Value: bson.D{
				{Key: "_id", Value: "$$u._id"},
				{Key: "name", Value: "$$u.name"},
				{Key: "username", Value: "$$u.username"},
				{Key: "email", Value: "$$u.email"},
				{Key: "avatar", Value: "$$u.avatar"},
				{Key: "location", Value: "$$u.location"},
			}},
		}},
	}
}

// Match wraps a planner-built filter as the opening pipeline stage.
func Match(filter bson.D) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: filter}},
	}
}

// JoinHashtags replaces the hashtag id list with full hashtag documents.
func JoinHashtags() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollHashtags},
			{Key: "localField", Value: "hashtags"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "hashtags"},
		}}},
	}
}

// JoinMentions replaces the mentioned-user id list with projected user
// previews.
func JoinMentions() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollUsers},
			{Key: "localField", Value: "mentions"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "mentions"},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "mentions", Value: userPreviewMap("$mentions")},
		}}},
	}
}

// JoinAuthor resolves the author id to an embedded author preview.
// A missing author document leaves the post in the result set with an
// empty author rather than dropping it.
func JoinAuthor() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollUsers},
			{Key: "localField", Value: "user_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "author_doc"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$author_doc"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "author", Value: bson.D{
				{Key: "_id", Value: "$author_doc._id"},
				{Key: "name", Value: "$author_doc.name"},
				{Key: "username", Value: "$author_doc.username"},
				{Key: "email", Value: "$author_doc.email"},
				{Key: "avatar", Value: "$author_doc.avatar"},
				{Key: "location", Value: "$author_doc.location"},
			}},
		}}},
	}
}

// JoinEngagementCounts attaches bookmark and like counts as the sizes
// of the matched engagement-record sets. The raw records are not kept.
func JoinEngagementCounts() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollBookmarks},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "post_id"},
			{Key: "as", Value: "bookmark_docs"},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollLikes},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "post_id"},
			{Key: "as", Value: "like_docs"},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "bookmarks", Value: bson.D{{Key: "$size", Value: "$bookmark_docs"}}},
			{Key: "likes", Value: bson.D{{Key: "$size", Value: "$like_docs"}}},
		}}},
	}
}

// childCount counts children of the given kind among the looked-up set.
func childCount(kind models.PostKind) bson.D {
	return bson.D{
		{Key: "$size", Value: bson.D{
			{Key: "$filter", Value: bson.D{
				{Key: "input", Value: "$child_docs"},
				{Key: "as", Value: "c"},
				{Key: "cond", Value: bson.D{
					{Key: "$eq", Value: bson.A{"$$c.type", kind}},
				}},
			}},
		}},
	}
}

// JoinChildCounts looks up all posts whose parent id is the current
// post and derives repost, comment and quote counts by child kind.
func JoinChildCounts() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollPosts},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "parent_id"},
			{Key: "as", Value: "child_docs"},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "retweets", Value: childCount(models.KindRepost)},
			{Key: "comments", Value: childCount(models.KindReply)},
			{Key: "quotes", Value: childCount(models.KindQuote)},
		}}},
	}
}

// DropInternalFields removes the working fields earlier stages left
// behind so the result decodes cleanly into the read model.
func DropInternalFields() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$project", Value: bson.D{
			{Key: "author_doc", Value: 0},
			{Key: "bookmark_docs", Value: 0},
			{Key: "like_docs", Value: 0},
			{Key: "child_docs", Value: 0},
		}}},
	}
}

// Paginate applies a 1-indexed page window. Callers validate page and
// limit before a pipeline is ever built.
func Paginate(page, limit int64) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$skip", Value: limit * (page - 1)}},
		{{Key: "$limit", Value: limit}},
	}
}

// AudienceFilter keeps a post when its audience is Everyone, or when it
// is Circle and the joined author's circle contains the viewer. A nil
// viewer is a guest and sees Everyone posts only. It must run after
// JoinAuthor so the author document is available.
func AudienceFilter(viewerID *primitive.ObjectID) mongo.Pipeline {
	if viewerID == nil {
		return mongo.Pipeline{
			{{Key: "$match", Value: bson.D{
				{Key: "audience", Value: models.AudienceEveryone},
			}}},
		}
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "audience", Value: models.AudienceEveryone}},
				bson.D{
					{Key: "audience", Value: models.AudienceCircle},
					{Key: "author_doc.circle", Value: bson.D{
						{Key: "$in", Value: bson.A{*viewerID}},
					}},
				},
			}},
		}}},
	}
}

// SimulatedViews attaches the would-be view count after this read: the
// authenticated counter plus one for a signed-in viewer, the guest
// counter plus one otherwise. Ranking only; never written back.
func SimulatedViews(authenticated bool) mongo.Pipeline {
	field := "$guest_views"
	if authenticated {
		field = "$user_views"
	}
	return mongo.Pipeline{
		{{Key: "$addFields", Value: bson.D{
			{Key: "simulated_views", Value: bson.D{
				{Key: "$add", Value: bson.A{field, 1}},
			}},
		}}},
	}
}

// SortByCreatedAtDesc orders newest first, tie-broken by id so the
// order is stable across identical timestamps.
func SortByCreatedAtDesc() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{
			{Key: "created_at", Value: -1},
			{Key: "_id", Value: -1},
		}}},
	}
}

// FacetPage runs the page sub-pipeline and a pre-pagination count over
// the same input in a single pass. The count lands under
// FacetTotal[0].count.
func FacetPage(page mongo.Pipeline) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$facet", Value: bson.D{
			{Key: FacetItems, Value: page},
			{Key: FacetTotal, Value: mongo.Pipeline{
				{{Key: "$count", Value: "count"}},
			}},
		}}},
	}
}

// Concat glues fragments into one pipeline in the given order.
func Concat(fragments ...mongo.Pipeline) mongo.Pipeline {
	var out mongo.Pipeline
	for _, f := range fragments {
		out = append(out, f...)
	}
	return out
}
