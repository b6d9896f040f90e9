// Package auth implements the two identity collaborators the content
// core consumes: bearer-token verification to an optional viewer id,
// and the circle-membership access predicate.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sozialka/social-content-service/internal/storage"
)

// ErrNoToken is returned when the request carries no bearer token.
var ErrNoToken = errors.New("no bearer token")

// Verifier parses and verifies access tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for HMAC-signed access tokens.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// FromRequest extracts the verified viewer id from the Authorization
// header, or ErrNoToken when the header is absent.
func (v *Verifier) FromRequest(r *http.Request) (*primitive.ObjectID, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrNoToken
	}
	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == header {
		return nil, fmt.Errorf("malformed authorization header")
	}
	return v.Verify(raw)
}

// Verify checks the token signature and returns the embedded user id.
func (v *Verifier) Verify(raw string) (*primitive.ObjectID, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", token.Claims)
	}
	sub, ok := claims["user_id"].(string)
	if !ok {
		return nil, fmt.Errorf("token has no user_id claim")
	}
	id, err := primitive.ObjectIDFromHex(sub)
	if err != nil {
		return nil, fmt.Errorf("token user_id is not a valid id: %w", err)
	}
	return &id, nil
}

// circleEntry caches one author's circle membership list.
type circleEntry struct {
	authorFound bool
	circle      []primitive.ObjectID
}

// CircleChecker answers circle-audience visibility questions against
// the users collection, with a short-lived cache in front so hot
// authors are not re-read on every feed row.
type CircleChecker struct {
	store storage.Store
	cache *expirable.LRU[string, circleEntry]
}

// NewCircleChecker creates the checker. Capacity bounds the cache; ttl
// bounds staleness of membership changes.
func NewCircleChecker(store storage.Store, capacity int, ttl time.Duration) *CircleChecker {
	return &CircleChecker{
		store: store,
		cache: expirable.NewLRU[string, circleEntry](capacity, nil, ttl),
	}
}

func (c *CircleChecker) lookup(ctx context.Context, authorID primitive.ObjectID) (circleEntry, error) {
	key := authorID.Hex()
	if entry, ok := c.cache.Get(key); ok {
		return entry, nil
	}

	author, err := c.store.FindUserByID(ctx, authorID)
	if err != nil {
		return circleEntry{}, err
	}
	entry := circleEntry{authorFound: author != nil}
	if author != nil {
		entry.circle = author.Circle
	}
	c.cache.Add(key, entry)
	return entry, nil
}

// CanView reports whether viewerID may see Circle-audience content from
// authorID: the viewer must be the author or a member of the author's
// circle. A guest viewer or a missing author never qualifies.
func (c *CircleChecker) CanView(ctx context.Context, authorID primitive.ObjectID, viewerID *primitive.ObjectID) (bool, error) {
	if viewerID == nil {
		return false, nil
	}
	if *viewerID == authorID {
		return true, nil
	}

	entry, err := c.lookup(ctx, authorID)
	if err != nil {
		return false, fmt.Errorf("failed to load author %s: %w", authorID.Hex(), err)
	}
	if !entry.authorFound {
		return false, nil
	}
	for _, member := range entry.circle {
		if member == *viewerID {
			return true, nil
		}
	}
	return false, nil
}
