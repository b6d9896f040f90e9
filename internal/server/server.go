package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sozialka/social-content-service/internal/auth"
	"github.com/sozialka/social-content-service/internal/config"
	"github.com/sozialka/social-content-service/internal/feed"
	"github.com/sozialka/social-content-service/internal/models"
	"github.com/sozialka/social-content-service/internal/transcode"
)

const maxUploadBytes = 500 << 20

// Server handles HTTP requests
type Server struct {
	config    config.ServerConfig
	feed      *feed.Service
	queue     *transcode.Queue
	verifier  *auth.Verifier
	uploadDir string
	server    *http.Server
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, feedSvc *feed.Service, queue *transcode.Queue, verifier *auth.Verifier, uploadDir string) *Server {
	s := &Server{
		config:    cfg,
		feed:      feedSvc,
		queue:     queue,
		verifier:  verifier,
		uploadDir: uploadDir,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/posts", s.handleCreatePost)
	mux.HandleFunc("/posts/", s.handlePostSubtree)
	mux.HandleFunc("/feed", s.handleHomeFeed)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/search/hashtags", s.handleSearchHashtags)
	mux.HandleFunc("/videos", s.handleVideoUpload)
	mux.HandleFunc("/videos/status/", s.handleVideoStatus)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  5 * time.Minute, // video uploads
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": message,
		"data":    data,
	})
}

// writeError maps the service error taxonomy onto status codes without
// leaking content for forbidden or missing posts.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, feed.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, feed.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, feed.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// viewer resolves the optional caller identity. No token means guest;
// a token that fails verification is rejected outright.
func (s *Server) viewer(r *http.Request) (*primitive.ObjectID, error) {
	id, err := s.verifier.FromRequest(r)
	if errors.Is(err, auth.ErrNoToken) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return id, nil
}

func (s *Server) requireViewer(w http.ResponseWriter, r *http.Request) (*primitive.ObjectID, bool) {
	id, err := s.viewer(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return nil, false
	}
	if id == nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return nil, false
	}
	return id, true
}

// listParams parses page/limit/type query values, defaulting page to 1
// and limit to 10; range checks belong to the feed planner.
func listParams(r *http.Request) (feed.ListParams, error) {
	params := feed.ListParams{Page: 1, Limit: 10}

	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return params, fmt.Errorf("%w: page must be a number", feed.ErrInvalidInput)
		}
		params.Page = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return params, fmt.Errorf("%w: limit must be a number", feed.ErrInvalidInput)
		}
		params.Limit = n
	}
	if v := r.URL.Query().Get("type"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return params, fmt.Errorf("%w: type must be a number", feed.ErrInvalidInput)
		}
		kind := models.PostKind(n)
		params.Kind = &kind
	}
	return params, nil
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

type createPostPayload struct {
	Kind     int32          `json:"type"`
	Audience int32          `json:"audience"`
	Content  string         `json:"content"`
	ParentID *string        `json:"parent_id"`
	Hashtags []string       `json:"hashtags"`
	Mentions []string       `json:"mentions"`
	Medias   []models.Media `json:"medias"`
}

// handleCreatePost handles POST /posts
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := s.requireViewer(w, r)
	if !ok {
		return
	}

	var payload createPostPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req := feed.CreatePostRequest{
		Kind:     models.PostKind(payload.Kind),
		Audience: models.Audience(payload.Audience),
		Content:  payload.Content,
		Hashtags: payload.Hashtags,
		Medias:   payload.Medias,
	}
	if payload.ParentID != nil {
		id, err := primitive.ObjectIDFromHex(*payload.ParentID)
		if err != nil {
			http.Error(w, "invalid parent id", http.StatusBadRequest)
			return
		}
		req.ParentID = &id
	}
	for _, m := range payload.Mentions {
		id, err := primitive.ObjectIDFromHex(m)
		if err != nil {
			http.Error(w, "invalid mention id", http.StatusBadRequest)
			return
		}
		req.Mentions = append(req.Mentions, id)
	}

	post, err := s.feed.CreatePost(r.Context(), *userID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "post created", post)
}

// handlePostSubtree dispatches /posts/{id}, /posts/{id}/children,
// /posts/{id}/like and /posts/{id}/bookmark.
func (s *Server) handlePostSubtree(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/posts/"), "/")
	postID, err := primitive.ObjectIDFromHex(parts[0])
	if err != nil {
		http.Error(w, "invalid post id", http.StatusBadRequest)
		return
	}

	switch {
	case len(parts) == 1:
		s.handlePostDetail(w, r, postID)
	case len(parts) == 2 && parts[1] == "children":
		s.handlePostChildren(w, r, postID)
	case len(parts) == 2 && (parts[1] == "like" || parts[1] == "bookmark"):
		s.handleEngagement(w, r, postID, parts[1])
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) handlePostDetail(w http.ResponseWriter, r *http.Request, postID primitive.ObjectID) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	viewerID, err := s.viewer(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	view, err := s.feed.GetDetail(r.Context(), postID, viewerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "post retrieved", view)
}

func (s *Server) handlePostChildren(w http.ResponseWriter, r *http.Request, postID primitive.ObjectID) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	viewerID, err := s.viewer(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	params, err := listParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := s.feed.GetChildren(r.Context(), postID, params, viewerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "children retrieved", page)
}

func (s *Server) handleEngagement(w http.ResponseWriter, r *http.Request, postID primitive.ObjectID, kind string) {
	userID, ok := s.requireViewer(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var err error
		if kind == "like" {
			_, err = s.feed.Like(r.Context(), *userID, postID)
		} else {
			_, err = s.feed.Bookmark(r.Context(), *userID, postID)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, kind+" recorded", nil)
	case http.MethodDelete:
		var err error
		if kind == "like" {
			err = s.feed.Unlike(r.Context(), *userID, postID)
		} else {
			err = s.feed.Unbookmark(r.Context(), *userID, postID)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, kind+" removed", nil)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHomeFeed handles GET /feed
func (s *Server) handleHomeFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	viewerID, ok := s.requireViewer(w, r)
	if !ok {
		return
	}
	params, err := listParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := s.feed.GetHomeFeed(r.Context(), *viewerID, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "feed retrieved", page)
}

// handleSearch handles GET /search: full-text content search with
// optional media and people-follow narrowing. Guests may search; the
// audience filter scopes what they see.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	viewerID, err := s.viewer(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	list, err := listParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	params := feed.SearchParams{
		Content:      r.URL.Query().Get("content"),
		Media:        feed.MediaFilter(r.URL.Query().Get("media_type")),
		PeopleFollow: r.URL.Query().Get("people_follow") == "true",
		Page:         list.Page,
		Limit:        list.Limit,
	}

	page, err := s.feed.SearchPosts(r.Context(), params, viewerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "search results retrieved", page)
}

// handleSearchHashtags handles GET /search/hashtags with a
// comma-separated hashtag query.
func (s *Server) handleSearchHashtags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	viewerID, err := s.viewer(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	params, err := listParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := s.feed.SearchByHashtag(r.Context(), r.URL.Query().Get("hashtag"), params, viewerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "search results retrieved", page)
}

// handleVideoUpload handles POST /videos: the uploaded file lands in a
// temp folder and a transcode job is enqueued for it.
func (s *Server) handleVideoUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.requireViewer(w, r); !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("video")
	if err != nil {
		http.Error(w, "missing video file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	tempDir := filepath.Join(s.uploadDir, "temp")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	dst := filepath.Join(tempDir, uuid.NewString()+filepath.Ext(header.Filename))
	out, err := os.Create(dst)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(dst)
		http.Error(w, "failed to store upload", http.StatusInternalServerError)
		return
	}
	out.Close()

	jobID := primitive.NewObjectID()
	err = s.queue.Enqueue(r.Context(), transcode.Job{
		FilePath:     dst,
		ID:           jobID,
		OriginalName: header.Filename,
	})
	if err != nil {
		os.Remove(dst)
		http.Error(w, "failed to enqueue transcode", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, "video queued for transcoding", map[string]string{
		"id": jobID.Hex(),
	})
}

// handleVideoStatus handles GET /videos/status/{id}
func (s *Server) handleVideoStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := primitive.ObjectIDFromHex(strings.TrimPrefix(r.URL.Path, "/videos/status/"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	status, err := s.queue.Status(r.Context(), id)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if status == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, "status retrieved", status)
}
