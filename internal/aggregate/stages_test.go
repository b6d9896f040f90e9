package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sozialka/social-content-service/internal/models"
)

// stageKey returns the operator of the i-th stage in a fragment.
func stageKey(t *testing.T, p []bson.D, i int) string {
	t.Helper()
	require.Greater(t, len(p), i)
	require.Len(t, p[i], 1)
	return p[i][0].Key
}

func TestJoinHashtags(t *testing.T) {
	p := JoinHashtags()

	require.Len(t, p, 1)
	assert.Equal(t, "$lookup", stageKey(t, p, 0))

	lookup := p[0][0].Value.(bson.D)
	assert.Equal(t, bson.D{
		{Key: "from", Value: "hashtags"},
		{Key: "localField", Value: "hashtags"},
		{Key: "foreignField", Value: "_id"},
		{Key: "as", Value: "hashtags"},
	}, lookup)
}

func TestJoinMentions_ProjectsSafeFieldsOnly(t *testing.T) {
	p := JoinMentions()

	require.Len(t, p, 2)
	assert.Equal(t, "$lookup", stageKey(t, p, 0))
	assert.Equal(t, "$addFields", stageKey(t, p, 1))

	addFields := p[1][0].Value.(bson.D)
	mapExpr := addFields[0].Value.(bson.D)[0].Value.(bson.D)
	var projected []string
	for _, field := range mapExpr[2].Value.(bson.D) {
		projected = append(projected, field.Key)
	}
	assert.ElementsMatch(t, []string{"_id", "name", "username", "email", "avatar", "location"}, projected)
	assert.NotContains(t, projected, "password")
}

func TestJoinAuthor_PreservesPostWithoutAuthor(t *testing.T) {
	p := JoinAuthor()

	require.Len(t, p, 3)
	assert.Equal(t, "$lookup", stageKey(t, p, 0))
	assert.Equal(t, "$unwind", stageKey(t, p, 1))
	assert.Equal(t, "$addFields", stageKey(t, p, 2))

	unwind := p[1][0].Value.(bson.D)
	assert.Equal(t, bson.D{
		{Key: "path", Value: "$author_doc"},
		{Key: "preserveNullAndEmptyArrays", Value: true},
	}, unwind)
}

func TestJoinEngagementCounts_AttachesSizes(t *testing.T) {
	p := JoinEngagementCounts()

	require.Len(t, p, 3)
	assert.Equal(t, "$lookup", stageKey(t, p, 0))
	assert.Equal(t, "$lookup", stageKey(t, p, 1))
	assert.Equal(t, "$addFields", stageKey(t, p, 2))

	counts := p[2][0].Value.(bson.D)
	assert.Equal(t, "bookmarks", counts[0].Key)
	assert.Equal(t, bson.D{{Key: "$size", Value: "$bookmark_docs"}}, counts[0].Value)
	assert.Equal(t, "likes", counts[1].Key)
	assert.Equal(t, bson.D{{Key: "$size", Value: "$like_docs"}}, counts[1].Value)
}

func TestJoinChildCounts_FiltersByKind(t *testing.T) {
	p := JoinChildCounts()

	require.Len(t, p, 2)
	counts := p[1][0].Value.(bson.D)
	require.Len(t, counts, 3)
	assert.Equal(t, "retweets", counts[0].Key)
	assert.Equal(t, "comments", counts[1].Key)
	assert.Equal(t, "quotes", counts[2].Key)

	// Each count filters the looked-up children by the matching kind.
	size := counts[0].Value.(bson.D)
	filter := size[0].Value.(bson.D)[0].Value.(bson.D)
	cond := filter[2].Value.(bson.D)
	assert.Equal(t, bson.A{"$$c.type", models.KindRepost}, cond[0].Value.(bson.A))
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name     string
		page     int64
		limit    int64
		wantSkip int64
	}{
		{"first page", 1, 10, 0},
		{"second page", 2, 10, 10},
		{"third page small limit", 3, 7, 14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paginate(tt.page, tt.limit)
			require.Len(t, p, 2)
			assert.Equal(t, bson.D{{Key: "$skip", Value: tt.wantSkip}}, p[0])
			assert.Equal(t, bson.D{{Key: "$limit", Value: tt.limit}}, p[1])
		})
	}
}

func TestAudienceFilter(t *testing.T) {
	viewer := primitive.NewObjectID()
	p := AudienceFilter(&viewer)

	require.Len(t, p, 1)
	match := p[0][0].Value.(bson.D)
	or := match[0].Value.(bson.A)
	require.Len(t, or, 2)

	assert.Equal(t, bson.D{{Key: "audience", Value: models.AudienceEveryone}}, or[0])

	circle := or[1].(bson.D)
	assert.Equal(t, bson.E{Key: "audience", Value: models.AudienceCircle}, circle[0])
	assert.Equal(t, "author_doc.circle", circle[1].Key)
	assert.Equal(t, bson.D{{Key: "$in", Value: bson.A{viewer}}}, circle[1].Value)
}

func TestAudienceFilter_GuestSeesEveryoneOnly(t *testing.T) {
	p := AudienceFilter(nil)

	require.Len(t, p, 1)
	match := p[0][0].Value.(bson.D)
	assert.Equal(t, bson.D{{Key: "audience", Value: models.AudienceEveryone}}, match)
}

func TestSimulatedViews(t *testing.T) {
	guest := SimulatedViews(false)
	addFields := guest[0][0].Value.(bson.D)
	assert.Equal(t, "simulated_views", addFields[0].Key)
	assert.Equal(t, bson.D{{Key: "$add", Value: bson.A{"$guest_views", 1}}}, addFields[0].Value.(bson.D))

	authed := SimulatedViews(true)
	addFields = authed[0][0].Value.(bson.D)
	assert.Equal(t, bson.D{{Key: "$add", Value: bson.A{"$user_views", 1}}}, addFields[0].Value.(bson.D))
}

func TestSortByCreatedAtDesc_TieBreaksOnID(t *testing.T) {
	p := SortByCreatedAtDesc()

	require.Len(t, p, 1)
	sort := p[0][0].Value.(bson.D)
	assert.Equal(t, bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	}, sort)
}

func TestFacetPage(t *testing.T) {
	page := Paginate(1, 10)
	p := FacetPage(page)

	require.Len(t, p, 1)
	facet := p[0][0].Value.(bson.D)
	assert.Equal(t, FacetItems, facet[0].Key)
	assert.Equal(t, FacetTotal, facet[1].Key)
}

func TestConcat_PreservesOrder(t *testing.T) {
	p := Concat(
		Match(bson.D{{Key: "_id", Value: 1}}),
		SortByCreatedAtDesc(),
		Paginate(1, 10),
	)

	require.Len(t, p, 4)
	assert.Equal(t, "$match", stageKey(t, p, 0))
	assert.Equal(t, "$sort", stageKey(t, p, 1))
	assert.Equal(t, "$skip", stageKey(t, p, 2))
	assert.Equal(t, "$limit", stageKey(t, p, 3))
}

func TestFragments_AreDeterministic(t *testing.T) {
	viewer := primitive.NewObjectID()

	assert.Equal(t, JoinHashtags(), JoinHashtags())
	assert.Equal(t, JoinMentions(), JoinMentions())
	assert.Equal(t, JoinAuthor(), JoinAuthor())
	assert.Equal(t, JoinEngagementCounts(), JoinEngagementCounts())
	assert.Equal(t, JoinChildCounts(), JoinChildCounts())
	assert.Equal(t, AudienceFilter(&viewer), AudienceFilter(&viewer))
	assert.Equal(t, Paginate(3, 20), Paginate(3, 20))
}
