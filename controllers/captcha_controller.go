// File: /controllers/captcha_controller.go
package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chyrp-api/services"
)

type CaptchaController struct {
	captcha *services.CaptchaService
	log     *zap.Logger
}

func NewCaptchaController(captcha *services.CaptchaService, log *zap.Logger) *CaptchaController {
	return &CaptchaController{captcha: captcha, log: log}
}

type VerifyCaptchaRequest struct {
	CaptchaID string `json:"captcha_id" form:"captcha_id"`
	Answer    string `json:"answer" form:"answer"`
}

func (cc *CaptchaController) NewCaptcha(c *gin.Context) {
	challenge, err := cc.captcha.New(c.Request.Context())
	if err != nil {
		respondError(c, cc.log, err)
		return
	}
	c.JSON(http.StatusOK, challenge)
}

func (cc *CaptchaController) VerifyCaptcha(c *gin.Context) {
	var req VerifyCaptchaRequest
	if err := c.ShouldBind(&req); err != nil {
		bindError(c, err)
		return
	}

	ok, err := cc.captcha.Verify(c.Request.Context(), req.CaptchaID, req.Answer)
	if err != nil {
		respondError(c, cc.log, err)
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid captcha"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
