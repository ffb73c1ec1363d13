// File: /controllers/comment_controller.go
package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chyrp-api/services"
)

type CommentController struct {
	comments *services.CommentService
	log      *zap.Logger
}

func NewCommentController(comments *services.CommentService, log *zap.Logger) *CommentController {
	return &CommentController{comments: comments, log: log}
}

type CreateCommentRequest struct {
	Content string `json:"content"`
}

func (cc *CommentController) GetComments(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}

	comments, err := cc.comments.List(c.Request.Context(), postID)
	if err != nil {
		respondError(c, cc.log, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (cc *CommentController) CreateComment(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	comment, err := cc.comments.Add(c.Request.Context(), postID, currentUser(c), req.Content)
	if err != nil {
		respondError(c, cc.log, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (cc *CommentController) DeleteComment(c *gin.Context) {
	commentID, ok := pathID(c, "comment_id")
	if !ok {
		return
	}

	if err := cc.comments.Delete(c.Request.Context(), commentID, currentUser(c)); err != nil {
		respondError(c, cc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted successfully"})
}
