// File: /services/sitemap_service.go
package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"chyrp-api/repositories"
)

const sitemapNamespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

type URLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []SitemapURL `xml:"url"`
}

type SitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

type SitemapService struct {
	posts      *repositories.PostRepository
	categories *repositories.CategoryRepository
	tags       *repositories.TagRepository
	siteURL    string
	cache      *reader
}

func NewSitemapService(
	posts *repositories.PostRepository,
	categories *repositories.CategoryRepository,
	tags *repositories.TagRepository,
	siteURL string,
	cache Cache,
	log *zap.Logger,
) *SitemapService {
	return &SitemapService{
		posts:      posts,
		categories: categories,
		tags:       tags,
		siteURL:    strings.TrimRight(siteURL, "/"),
		cache:      newReader(cache, log),
	}
}

// XML renders the sitemap document, including the XML header.
func (s *SitemapService) XML(ctx context.Context) ([]byte, error) {
	return remember(ctx, s.cache, sitemapKey, func() ([]byte, error) {
		set, err := s.build(ctx)
		if err != nil {
			return nil, err
		}
		body, err := xml.MarshalIndent(set, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode sitemap: %w", err)
		}
		return append([]byte(xml.Header), body...), nil
	})
}

func (s *SitemapService) build(ctx context.Context) (*URLSet, error) {
	set := &URLSet{Xmlns: sitemapNamespace}
	for _, p := range []string{"/", "/login", "/register"} {
		set.URLs = append(set.URLs, SitemapURL{Loc: s.siteURL + p, ChangeFreq: "daily", Priority: "0.8"})
	}

	posts, err := s.posts.ListForSitemap(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	for _, p := range posts {
		set.URLs = append(set.URLs, SitemapURL{
			Loc:        fmt.Sprintf("%s/posts/%d", s.siteURL, p.ID),
			LastMod:    p.UpdatedAt.UTC().Format("2006-01-02"),
			ChangeFreq: "weekly",
			Priority:   "0.6",
		})
	}

	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	for _, c := range categories {
		set.URLs = append(set.URLs, SitemapURL{
			Loc:        s.siteURL + "/category/" + url.PathEscape(c.Slug),
			ChangeFreq: "weekly",
			Priority:   "0.5",
		})
	}

	tags, err := s.tags.ListWithCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	for _, t := range tags {
		set.URLs = append(set.URLs, SitemapURL{
			Loc:        s.siteURL + "/tag/" + url.PathEscape(t.Name),
			ChangeFreq: "weekly",
			Priority:   "0.4",
		})
	}
	return set, nil
}
