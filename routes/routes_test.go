package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"chyrp-api/config"
	"chyrp-api/database"
	"chyrp-api/models"
	"chyrp-api/services"
)

type apiClient struct {
	t      *testing.T
	router *gin.Engine
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db, zap.NewNop()))
	require.NoError(t, database.SeedData(db, zap.NewNop()))

	uploads := t.TempDir()
	cfg := &config.Config{
		App:    config.AppConfig{Name: "chyrp-api", Env: "test"},
		Server: config.ServerConfig{AllowedOrigins: []string{"*"}},
		Auth:   config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour, BcryptCost: 4},
		Storage: config.StorageConfig{
			Driver:       "local",
			LocalDir:     uploads,
			PublicURL:    "http://localhost:5000/uploads",
			MaxSizeBytes: 1 << 20,
		},
		Site:       config.SiteConfig{URL: "http://blog.example.com"},
		Webmention: config.WebmentionConfig{VerifyAsync: false, FetchTimeout: time.Second, AllowPrivateHosts: true},
	}
	blobs, err := services.NewLocalStore(uploads, cfg.Storage.PublicURL)
	require.NoError(t, err)

	router, err := NewRouter(&App{
		Config:  cfg,
		DB:      db,
		Log:     zap.NewNop(),
		Cache:   services.NewMemoryCache(time.Minute, 100),
		Captcha: services.NewMemoryCaptchaStore(),
		Blobs:   blobs,
	})
	require.NoError(t, err)
	return &apiClient{t: t, router: router}
}

func (a *apiClient) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func (a *apiClient) signUp(username string) string {
	a.t.Helper()
	rr := a.do(http.MethodPost, "/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret-" + username,
	})
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = a.do(http.MethodPost, "/login", "", gin.H{"username": username, "password": "secret-" + username})
	require.Equal(a.t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[map[string]string](a.t, rr)["access_token"]
}

func (a *apiClient) createPost(token string, body gin.H) uint {
	a.t.Helper()
	rr := a.do(http.MethodPost, "/posts", token, body)
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())
	return uint(decode[map[string]interface{}](a.t, rr)["post_id"].(float64))
}

func TestAuthEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.signUp("alice")

	rr := api.do(http.MethodPost, "/register", "", gin.H{"username": "alice", "email": "x@example.com", "password": "pw"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = api.do(http.MethodPost, "/register", "", gin.H{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(http.MethodPost, "/login", "", gin.H{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = api.do(http.MethodGet, "/me", "not.a-token", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestProfileHidesPasswordHash(t *testing.T) {
	api := newTestAPI(t)
	token := api.signUp("alice")

	rr := api.do(http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "password")
	assert.Equal(t, "alice", decode[models.User](t, rr).Username)
}

func TestPostLifecycle(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signUp("alice")
	bob := api.signUp("bob")

	rr := api.do(http.MethodPost, "/posts", "", gin.H{"title": "Anon"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(http.MethodPost, "/posts", alice, gin.H{"type": "text", "content": "no title"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "title", decode[map[string]string](t, rr)["field"])

	rr = api.do(http.MethodPost, "/posts", alice, gin.H{"type": "poll", "title": "Vote"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	postID := api.createPost(alice, gin.H{"title": "Hello", "content": "World", "tags": "Go, web", "category_id": 1})
	api.createPost(alice, gin.H{"type": "quote", "content": "Less is more", "attribution": "Mies"})

	rr = api.do(http.MethodGet, fmt.Sprintf("/posts/%d", postID), bob, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	detail := decode[models.PostDetail](t, rr)
	assert.EqualValues(t, 1, detail.ViewCount)
	assert.Equal(t, "alice", detail.Username)
	assert.Equal(t, []string{"go", "web"}, detail.Tags)
	require.NotNil(t, detail.CategorySlug)
	assert.Equal(t, "general", *detail.CategorySlug)

	rr = api.do(http.MethodGet, fmt.Sprintf("/posts/%d", postID), bob, nil)
	assert.EqualValues(t, 1, decode[models.PostDetail](t, rr).ViewCount)

	rr = api.do(http.MethodPost, fmt.Sprintf("/posts/%d/like", postID), bob, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.LikeResult{Liked: true, LikeCount: 1}, decode[models.LikeResult](t, rr))

	rr = api.do(http.MethodGet, "/posts?per_page=1", bob, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	feed := decode[models.FeedResponse](t, rr)
	assert.EqualValues(t, 2, feed.TotalPosts)
	assert.True(t, feed.HasMore)
	require.Len(t, feed.Posts, 1)
	assert.Equal(t, models.PostTypeQuote, feed.Posts[0].Type)

	rr = api.do(http.MethodGet, "/posts/tag/go", "", nil)
	feed = decode[models.FeedResponse](t, rr)
	require.Len(t, feed.Posts, 1)
	assert.EqualValues(t, 1, feed.Posts[0].LikeCount)
	assert.False(t, feed.Posts[0].LikedByUser)

	rr = api.do(http.MethodGet, "/posts/category/general", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "General", decode[models.CategoryFeedResponse](t, rr).CategoryName)
	rr = api.do(http.MethodGet, "/posts/category/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(http.MethodPut, fmt.Sprintf("/posts/%d", postID), bob, gin.H{"title": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = api.do(http.MethodPut, fmt.Sprintf("/posts/%d", postID), alice, gin.H{"title": "Hello again", "tags": "go"})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = api.do(http.MethodGet, fmt.Sprintf("/posts/%d", postID), "", nil)
	detail = decode[models.PostDetail](t, rr)
	assert.Equal(t, "Hello again", detail.Title)
	assert.Equal(t, []string{"go"}, detail.Tags)

	rr = api.do(http.MethodDelete, fmt.Sprintf("/posts/%d", postID), bob, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = api.do(http.MethodDelete, fmt.Sprintf("/posts/%d", postID), alice, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = api.do(http.MethodGet, fmt.Sprintf("/posts/%d", postID), "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(http.MethodGet, "/posts/abc", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCommentEndpoints(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signUp("alice")
	bob := api.signUp("bob")
	postID := api.createPost(alice, gin.H{"title": "Discuss"})

	rr := api.do(http.MethodPost, fmt.Sprintf("/posts/%d/comments", postID), bob, gin.H{"content": "Nice post"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	comment := decode[models.CommentWithAuthor](t, rr)
	assert.Equal(t, "bob", comment.Username)

	rr = api.do(http.MethodPost, fmt.Sprintf("/posts/%d/comments", postID), bob, gin.H{"content": " "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = api.do(http.MethodPost, "/posts/999/comments", bob, gin.H{"content": "hello"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(http.MethodGet, fmt.Sprintf("/posts/%d/comments", postID), "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.CommentWithAuthor](t, rr), 1)

	rr = api.do(http.MethodDelete, fmt.Sprintf("/comments/%d", comment.ID), alice, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = api.do(http.MethodDelete, fmt.Sprintf("/comments/%d", comment.ID), bob, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = api.do(http.MethodGet, fmt.Sprintf("/posts/%d/comments", postID), "", nil)
	assert.Empty(t, decode[[]models.CommentWithAuthor](t, rr))
}

func TestCaptchaEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(http.MethodGet, "/captcha/new", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	challenge := decode[services.Challenge](t, rr)

	var a, b int
	_, err := fmt.Sscanf(challenge.Question, "%d + %d = ?", &a, &b)
	require.NoError(t, err)

	rr = api.do(http.MethodPost, "/captcha/verify", "", gin.H{"captcha_id": challenge.CaptchaID, "answer": fmt.Sprint(a + b)})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = api.do(http.MethodPost, "/captcha/verify", "", gin.H{"captcha_id": challenge.CaptchaID, "answer": fmt.Sprint(a + b)})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, false, decode[map[string]interface{}](t, rr)["success"])
}

func TestUploadEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := api.signUp("alice")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "pixel.png")
	require.NoError(t, err)
	_, err = part.Write(append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	api.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, decode[map[string]string](t, rr)["file_url"], "http://localhost:5000/uploads/")

	req = httptest.NewRequest(http.MethodPost, "/upload", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	api.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPublicListings(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signUp("alice")
	api.createPost(alice, gin.H{"title": "Tagged", "tags": "go"})

	rr := api.do(http.MethodGet, "/categories", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.Category](t, rr), 4)

	rr = api.do(http.MethodGet, "/tags", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	tags := decode[[]models.TagWithCount](t, rr)
	require.Len(t, tags, 1)
	assert.EqualValues(t, 1, tags[0].PostCount)

	rr = api.do(http.MethodGet, "/sitemap.xml", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/xml")
	assert.Contains(t, rr.Body.String(), "http://blog.example.com/tag/go")

	rr = api.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestWebmentionEndpoints(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signUp("alice")
	postID := api.createPost(alice, gin.H{"title": "Cited"})
	target := fmt.Sprintf("http://blog.example.com/posts/%d", postID)

	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<a href="%s">cited</a>`, target)
	}))
	defer src.Close()

	rr := api.do(http.MethodPost, "/webmention", "", gin.H{"source": src.URL, "target": target, "mention_type": "like"})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	rr = api.do(http.MethodPost, "/webmention", "", gin.H{"source": src.URL, "target": "http://elsewhere.example/posts/1"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(http.MethodGet, fmt.Sprintf("/posts/%d/webmentions", postID), "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	mentions := decode[[]models.Webmention](t, rr)
	require.Len(t, mentions, 1)
	assert.True(t, mentions[0].Verified)
	assert.Equal(t, "like", mentions[0].MentionType)
}

func TestTagRouteMatchesExactNameAndFeedParamMatchesSubstring(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signUp("alice")
	api.createPost(alice, gin.H{"title": "Pottery night", "tags": "party"})
	artID := api.createPost(alice, gin.H{"title": "Sketches", "tags": "art"})

	rr := api.do(http.MethodGet, "/posts/tag/art", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	feed := decode[models.FeedResponse](t, rr)
	require.EqualValues(t, 1, feed.TotalPosts)
	assert.Equal(t, artID, feed.Posts[0].ID)

	rr = api.do(http.MethodGet, "/posts?tag=art", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 2, decode[models.FeedResponse](t, rr).TotalPosts)

	rr = api.do(http.MethodGet, "/posts?page=9223372036854775807", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	huge := decode[models.FeedResponse](t, rr)
	assert.Empty(t, huge.Posts)
	assert.False(t, huge.HasMore)
}
