package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"chyrp-api/database"
	"chyrp-api/models"
	"chyrp-api/repositories"
)

// newTestDB opens a private in-memory sqlite database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open("sqlite", dsn, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db, zap.NewNop()))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedCategory(t *testing.T, db *gorm.DB, name, slug string) *models.Category {
	t.Helper()
	category := &models.Category{Name: name, Slug: slug}
	require.NoError(t, db.Create(category).Error)
	return category
}

type postFixture struct {
	db      *gorm.DB
	posts   *PostService
	postRep *repositories.PostRepository
}

func newPostFixture(t *testing.T) *postFixture {
	t.Helper()
	return newCachedPostFixture(t, NopCache{})
}

func newCachedPostFixture(t *testing.T, cache Cache) *postFixture {
	t.Helper()
	db := newTestDB(t)
	postRepo := repositories.NewPostRepository(db)
	return &postFixture{
		db:      db,
		postRep: postRepo,
		posts: NewPostService(
			postRepo,
			repositories.NewTagRepository(db),
			repositories.NewCategoryRepository(db),
			cache,
			zap.NewNop(),
		),
	}
}

func (f *postFixture) createPost(t *testing.T, authorID uint, title, tags string) *models.Post {
	t.Helper()
	post, err := f.posts.CreatePost(context.Background(), authorID, PostInput{Title: title, Content: "body", Tags: tags})
	require.NoError(t, err)
	return post
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

// stallingCache holds the first Set for a key with the given prefix until
// release is closed. entered is closed once that Set has started.
type stallingCache struct {
	Cache
	prefix  string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newStallingCache(inner Cache, prefix string) *stallingCache {
	return &stallingCache{Cache: inner, prefix: prefix, entered: make(chan struct{}), release: make(chan struct{})}
}

func (c *stallingCache) Set(ctx context.Context, key string, value []byte) {
	if strings.HasPrefix(key, c.prefix) {
		c.once.Do(func() {
			close(c.entered)
			<-c.release
		})
	}
	c.Cache.Set(ctx, key, value)
}
