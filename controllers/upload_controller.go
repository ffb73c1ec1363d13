// File: /controllers/upload_controller.go
package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chyrp-api/services"
	"chyrp-api/utils"
)

type UploadController struct {
	uploads *services.UploadService
	log     *zap.Logger
}

func NewUploadController(uploads *services.UploadService, log *zap.Logger) *UploadController {
	return &UploadController{uploads: uploads, log: log}
}

func (uc *UploadController) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, uc.uploads.MaxSize()+1<<20)

	header, err := c.FormFile("file")
	if err != nil {
		utils.SendFieldError(c, http.StatusBadRequest, "file", "No file part")
		return
	}
	f, err := header.Open()
	if err != nil {
		respondError(c, uc.log, err)
		return
	}
	defer f.Close()

	url, err := uc.uploads.Upload(c.Request.Context(), f, header.Size)
	if err != nil {
		respondError(c, uc.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"file_url": url})
}
