// File: /controllers/webmention_controller.go
package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chyrp-api/services"
)

type WebmentionController struct {
	mentions *services.WebmentionService
	log      *zap.Logger
}

func NewWebmentionController(mentions *services.WebmentionService, log *zap.Logger) *WebmentionController {
	return &WebmentionController{mentions: mentions, log: log}
}

// Receive accepts form-encoded senders as well as JSON.
func (wc *WebmentionController) Receive(c *gin.Context) {
	var req services.WebmentionInput
	if err := c.ShouldBind(&req); err != nil {
		bindError(c, err)
		return
	}

	mention, err := wc.mentions.Receive(c.Request.Context(), req)
	if err != nil {
		respondError(c, wc.log, err)
		return
	}
	c.JSON(http.StatusAccepted, mention)
}

func (wc *WebmentionController) List(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}

	mentions, err := wc.mentions.List(c.Request.Context(), postID, c.Query("all") == "true")
	if err != nil {
		respondError(c, wc.log, err)
		return
	}
	c.JSON(http.StatusOK, mentions)
}
