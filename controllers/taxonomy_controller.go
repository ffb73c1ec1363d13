// File: /controllers/taxonomy_controller.go
package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chyrp-api/services"
)

type TaxonomyController struct {
	taxonomy *services.TaxonomyService
	sitemap  *services.SitemapService
	log      *zap.Logger
}

func NewTaxonomyController(taxonomy *services.TaxonomyService, sitemap *services.SitemapService, log *zap.Logger) *TaxonomyController {
	return &TaxonomyController{taxonomy: taxonomy, sitemap: sitemap, log: log}
}

func (tc *TaxonomyController) GetCategories(c *gin.Context) {
	categories, err := tc.taxonomy.Categories(c.Request.Context())
	if err != nil {
		respondError(c, tc.log, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (tc *TaxonomyController) GetTags(c *gin.Context) {
	tags, err := tc.taxonomy.Tags(c.Request.Context())
	if err != nil {
		respondError(c, tc.log, err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

func (tc *TaxonomyController) Sitemap(c *gin.Context) {
	body, err := tc.sitemap.XML(c.Request.Context())
	if err != nil {
		respondError(c, tc.log, err)
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", body)
}
