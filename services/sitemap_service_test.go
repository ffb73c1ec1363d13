package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chyrp-api/repositories"
)

func TestSitemapListsPagesPostsAndTaxonomies(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	alice := seedUser(t, f.db, "alice")
	seedCategory(t, f.db, "Photography", "photography")
	post := f.createPost(t, alice.ID, "Hello", "go, web dev")

	svc := NewSitemapService(
		f.postRep,
		repositories.NewCategoryRepository(f.db),
		repositories.NewTagRepository(f.db),
		"https://blog.example.com/",
		NopCache{},
		zap.NewNop(),
	)

	body, err := svc.XML(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(body), `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, string(body), `xmlns="`+sitemapNamespace+`"`)

	var set URLSet
	require.NoError(t, xml.Unmarshal(body, &set))

	locs := make([]string, len(set.URLs))
	for i, u := range set.URLs {
		locs[i] = u.Loc
	}
	assert.Equal(t, []string{
		"https://blog.example.com/",
		"https://blog.example.com/login",
		"https://blog.example.com/register",
		fmt.Sprintf("https://blog.example.com/posts/%d", post.ID),
		"https://blog.example.com/category/photography",
		"https://blog.example.com/tag/go",
		"https://blog.example.com/tag/web%20dev",
	}, locs)
	assert.Equal(t, post.UpdatedAt.UTC().Format("2006-01-02"), set.URLs[3].LastMod)
}

func TestTaxonomyListings(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	alice := seedUser(t, f.db, "alice")
	seedCategory(t, f.db, "Music", "music")
	seedCategory(t, f.db, "Links", "links")
	f.createPost(t, alice.ID, "One", "go")
	f.createPost(t, alice.ID, "Two", "go, rust")
	post := f.createPost(t, alice.ID, "Three", "zig")

	// zig loses its only post but the tag stays
	_, err := f.posts.UpdatePost(ctx, post.ID, alice.ID, PostInput{Title: "Three"})
	require.NoError(t, err)

	svc := NewTaxonomyService(
		repositories.NewCategoryRepository(f.db),
		repositories.NewTagRepository(f.db),
		NewMemoryCache(time.Minute, 10),
		zap.NewNop(),
	)

	categories, err := svc.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "Links", categories[0].Name)

	tags, err := svc.Tags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 3)
	counts := map[string]int64{}
	for _, tag := range tags {
		counts[tag.Name] = tag.PostCount
	}
	assert.Equal(t, map[string]int64{"go": 2, "rust": 1, "zig": 0}, counts)
}
