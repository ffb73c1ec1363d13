// File: /controllers/post_controller.go
package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chyrp-api/services"
)

type PostController struct {
	posts *services.PostService
	log   *zap.Logger
}

func NewPostController(posts *services.PostService, log *zap.Logger) *PostController {
	return &PostController{posts: posts, log: log}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(services.DefaultPerPage)))
	return services.ClampPage(page, perPage)
}

// GetPosts serves the main feed. ?tag= and ?category= narrow it.
func (pc *PostController) GetPosts(c *gin.Context) {
	page, perPage := pageParams(c)
	filter := services.FeedFilter{Tag: c.Query("tag"), CategorySlug: c.Query("category")}

	feed, err := pc.posts.ListPosts(c.Request.Context(), currentUser(c), filter, page, perPage)
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (pc *PostController) GetPostsByTag(c *gin.Context) {
	page, perPage := pageParams(c)
	filter := services.FeedFilter{Tag: c.Param("name"), ExactTag: true}

	feed, err := pc.posts.ListPosts(c.Request.Context(), currentUser(c), filter, page, perPage)
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (pc *PostController) GetPostsByCategory(c *gin.Context) {
	page, perPage := pageParams(c)

	feed, err := pc.posts.CategoryFeed(c.Request.Context(), currentUser(c), c.Param("slug"), page, perPage)
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (pc *PostController) GetPost(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}

	post, err := pc.posts.GetPost(c.Request.Context(), postID, currentUser(c))
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (pc *PostController) CreatePost(c *gin.Context) {
	var req services.PostInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	post, err := pc.posts.CreatePost(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Post created successfully",
		"post_id": post.ID,
	})
}

func (pc *PostController) UpdatePost(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.PostInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if _, err := pc.posts.UpdatePost(c.Request.Context(), postID, currentUser(c), req); err != nil {
		respondError(c, pc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post updated successfully"})
}

func (pc *PostController) DeletePost(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := pc.posts.DeletePost(c.Request.Context(), postID, currentUser(c)); err != nil {
		respondError(c, pc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted successfully"})
}

func (pc *PostController) ToggleLike(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := pc.posts.ToggleLike(c.Request.Context(), postID, currentUser(c))
	if err != nil {
		respondError(c, pc.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
