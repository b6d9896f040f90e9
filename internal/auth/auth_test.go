package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sozialka/social-content-service/internal/models"
	"github.com/sozialka/social-content-service/internal/storage"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func TestVerifier_RoundTrip(t *testing.T) {
	userID := primitive.NewObjectID()
	raw := signToken(t, testSecret, jwt.MapClaims{"user_id": userID.Hex()})

	v := NewVerifier(testSecret)
	got, err := v.Verify(raw)

	require.NoError(t, err)
	assert.Equal(t, userID, *got)
}

func TestVerifier_RejectsWrongSecret(t *testing.T) {
	raw := signToken(t, "some-other-secret", jwt.MapClaims{"user_id": primitive.NewObjectID().Hex()})

	v := NewVerifier(testSecret)
	_, err := v.Verify(raw)

	assert.Error(t, err)
}

func TestVerifier_RejectsMissingClaim(t *testing.T) {
	raw := signToken(t, testSecret, jwt.MapClaims{"sub": "nope"})

	v := NewVerifier(testSecret)
	_, err := v.Verify(raw)

	assert.Error(t, err)
}

func TestVerifier_FromRequest(t *testing.T) {
	userID := primitive.NewObjectID()
	v := NewVerifier(testSecret)

	r, _ := http.NewRequest(http.MethodGet, "/feed", nil)
	_, err := v.FromRequest(r)
	assert.ErrorIs(t, err, ErrNoToken)

	r.Header.Set("Authorization", "Basic abc")
	_, err = v.FromRequest(r)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoToken)

	r.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{"user_id": userID.Hex()}))
	got, err := v.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, userID, *got)
}

// userStore stubs just the user lookup; everything else panics through
// the embedded nil interface if touched.
type userStore struct {
	storage.Store
	users map[primitive.ObjectID]*models.User
	reads int
}

func (s *userStore) FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	s.reads++
	return s.users[id], nil
}

func TestCircleChecker_CanView(t *testing.T) {
	author := primitive.NewObjectID()
	member := primitive.NewObjectID()
	stranger := primitive.NewObjectID()
	store := &userStore{users: map[primitive.ObjectID]*models.User{
		author: {ID: author, Circle: []primitive.ObjectID{member}},
	}}

	checker := NewCircleChecker(store, 16, time.Minute)
	ctx := context.Background()

	ok, err := checker.CanView(ctx, author, nil)
	require.NoError(t, err)
	assert.False(t, ok, "guests never see circle content")

	ok, err = checker.CanView(ctx, author, &author)
	require.NoError(t, err)
	assert.True(t, ok, "the author always sees their own posts")

	ok, err = checker.CanView(ctx, author, &member)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.CanView(ctx, author, &stranger)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCircleChecker_MissingAuthor(t *testing.T) {
	viewer := primitive.NewObjectID()
	store := &userStore{users: map[primitive.ObjectID]*models.User{}}

	checker := NewCircleChecker(store, 16, time.Minute)
	ok, err := checker.CanView(context.Background(), primitive.NewObjectID(), &viewer)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCircleChecker_CachesAuthorLookups(t *testing.T) {
	author := primitive.NewObjectID()
	member := primitive.NewObjectID()
	store := &userStore{users: map[primitive.ObjectID]*models.User{
		author: {ID: author, Circle: []primitive.ObjectID{member}},
	}}

	checker := NewCircleChecker(store, 16, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := checker.CanView(ctx, author, &member)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.reads, "repeated checks hit the cache")
}
