package models

import (
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PostKind distinguishes an original post from the three kinds that
// reference a parent post.
type PostKind int32

const (
	KindOriginal PostKind = iota
	KindRepost
	KindReply
	KindQuote
)

// ValidKind reports whether k is one of the declared post kinds.
func ValidKind(k PostKind) bool {
	return k >= KindOriginal && k <= KindQuote
}

// Audience is the visibility policy of a post.
type Audience int32

const (
	AudienceEveryone Audience = iota
	AudienceCircle
)

// ValidAudience reports whether a is one of the declared audiences.
func ValidAudience(a Audience) bool {
	return a == AudienceEveryone || a == AudienceCircle
}

// MediaKind classifies an attached media item.
type MediaKind int32

const (
	MediaImage MediaKind = iota
	MediaVideo
	MediaStreamingVideo
)

// JobState is the lifecycle state of a transcode job.
type JobState int32

const (
	JobProcessing JobState = iota
	JobDone
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobProcessing:
		return "processing"
	case JobDone:
		return "done"
	case JobFailed:
		return "failed"
	}
	return "unknown"
}

// MarshalJSON renders the state name. The numeric value stays a detail
// of the stored record.
func (s JobState) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(s.String())), nil
}

// Media is a single attachment on a post.
type Media struct {
	URL  string    `bson:"url" json:"url"`
	Kind MediaKind `bson:"type" json:"type"`
}

// Post is the persisted post document. Counts for likes, bookmarks and
// child posts are never stored here; they are computed at read time.
type Post struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	UserID     primitive.ObjectID   `bson:"user_id" json:"user_id"`
	Content    string               `bson:"content" json:"content"`
	ParentID   *primitive.ObjectID  `bson:"parent_id" json:"parent_id"`
	Kind       PostKind             `bson:"type" json:"type"`
	Audience   Audience             `bson:"audience" json:"audience"`
	Hashtags   []primitive.ObjectID `bson:"hashtags" json:"hashtags"`
	Mentions   []primitive.ObjectID `bson:"mentions" json:"mentions"`
	Medias     []Media              `bson:"medias" json:"medias"`
	GuestViews int64                `bson:"guest_views" json:"guest_views"`
	UserViews  int64                `bson:"user_views" json:"user_views"`
	CreatedAt  time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time            `bson:"updated_at" json:"updated_at"`
}

// User is the subset of the users collection this service touches.
// Credential fields live on the stored document but are never projected
// out by any read path here.
type User struct {
	ID       primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Name     string               `bson:"name" json:"name"`
	Username string               `bson:"username" json:"username"`
	Email    string               `bson:"email" json:"email"`
	Avatar   string               `bson:"avatar" json:"avatar"`
	Location string               `bson:"location" json:"location"`
	Circle   []primitive.ObjectID `bson:"circle" json:"circle"`
}

// UserPreview is the projected author/mention shape embedded in read
// models. It must never carry password or token fields.
type UserPreview struct {
	ID       primitive.ObjectID `bson:"_id" json:"_id"`
	Name     string             `bson:"name" json:"name"`
	Username string             `bson:"username" json:"username"`
	Email    string             `bson:"email" json:"email"`
	Avatar   string             `bson:"avatar" json:"avatar"`
	Location string             `bson:"location" json:"location"`
}

// Hashtag is created lazily on first use and never updated.
type Hashtag struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name      string             `bson:"name" json:"name"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// FollowEdge records that Follower follows Followed; the pair is unique.
type FollowEdge struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Follower  primitive.ObjectID `bson:"user_id" json:"user_id"`
	Followed  primitive.ObjectID `bson:"followed_user_id" json:"followed_user_id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// Engagement is a bookmark or a like; the two collections share this
// shape and the (user, post) pair is unique within each.
type Engagement struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	PostID    primitive.ObjectID `bson:"post_id" json:"post_id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// JobStatus is the durable lifecycle record of a transcode job. Its id
// equals the media folder id the job writes into.
type JobStatus struct {
	ID        primitive.ObjectID `bson:"_id" json:"_id"`
	Name      string             `bson:"name" json:"name"`
	State     JobState           `bson:"status" json:"status"`
	Message   string             `bson:"message" json:"message"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// PostView is the denormalized read model produced by the aggregation
// pipelines. Its shape differs from the stored Post: id lists are
// replaced with joined documents and engagement/child counts.
type PostView struct {
	ID             primitive.ObjectID  `bson:"_id" json:"_id"`
	Content        string              `bson:"content" json:"content"`
	ParentID       *primitive.ObjectID `bson:"parent_id" json:"parent_id"`
	Kind           PostKind            `bson:"type" json:"type"`
	Audience       Audience            `bson:"audience" json:"audience"`
	Author         UserPreview         `bson:"author" json:"author"`
	Hashtags       []Hashtag           `bson:"hashtags" json:"hashtags"`
	Mentions       []UserPreview       `bson:"mentions" json:"mentions"`
	Medias         []Media             `bson:"medias" json:"medias"`
	Bookmarks      int64               `bson:"bookmarks" json:"bookmarks"`
	Likes          int64               `bson:"likes" json:"likes"`
	Reposts        int64               `bson:"retweets" json:"retweets"`
	Comments       int64               `bson:"comments" json:"comments"`
	Quotes         int64               `bson:"quotes" json:"quotes"`
	GuestViews     int64               `bson:"guest_views" json:"guest_views"`
	UserViews      int64               `bson:"user_views" json:"user_views"`
	SimulatedViews int64               `bson:"simulated_views,omitempty" json:"simulated_views,omitempty"`
	CreatedAt      time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at" json:"updated_at"`
}

// FeedPage is one page of joined posts plus pagination metadata. Total
// is the number of pages, not the number of documents.
type FeedPage struct {
	Items []PostView `json:"items"`
	Total int64      `json:"total"`
	Page  int64      `json:"page"`
	Limit int64      `json:"limit"`
}
