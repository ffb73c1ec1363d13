// File: /controllers/auth_controller.go
package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chyrp-api/services"
)

type AuthController struct {
	auth *services.AuthService
	log  *zap.Logger
}

func NewAuthController(auth *services.AuthService, log *zap.Logger) *AuthController {
	return &AuthController{auth: auth, log: log}
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
}

func (ac *AuthController) Register(c *gin.Context) {
	var req services.RegisterInput
	if err := c.ShouldBind(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := ac.auth.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, ac.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    user,
	})
}

func (ac *AuthController) Login(c *gin.Context) {
	var req services.LoginInput
	if err := c.ShouldBind(&req); err != nil {
		bindError(c, err)
		return
	}

	token, err := ac.auth.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, ac.log, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{AccessToken: token})
}
