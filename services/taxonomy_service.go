// File: /services/taxonomy_service.go
package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chyrp-api/models"
	"chyrp-api/repositories"
)

// TaxonomyService serves the category and tag listings.
type TaxonomyService struct {
	categories *repositories.CategoryRepository
	tags       *repositories.TagRepository
	cache      *reader
}

func NewTaxonomyService(categories *repositories.CategoryRepository, tags *repositories.TagRepository, cache Cache, log *zap.Logger) *TaxonomyService {
	return &TaxonomyService{categories: categories, tags: tags, cache: newReader(cache, log)}
}

func (s *TaxonomyService) Categories(ctx context.Context) ([]models.Category, error) {
	return remember(ctx, s.cache, categoriesKey, func() ([]models.Category, error) {
		categories, err := s.categories.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		return categories, nil
	})
}

func (s *TaxonomyService) Tags(ctx context.Context) ([]models.TagWithCount, error) {
	return remember(ctx, s.cache, tagsKey, func() ([]models.TagWithCount, error) {
		tags, err := s.tags.ListWithCounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tags: %w", err)
		}
		return tags, nil
	})
}
