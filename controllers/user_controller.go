// File: /controllers/user_controller.go
package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"chyrp-api/repositories"
	"chyrp-api/utils"
)

type UserController struct {
	users *repositories.UserRepository
	log   *zap.Logger
}

func NewUserController(users *repositories.UserRepository, log *zap.Logger) *UserController {
	return &UserController{users: users, log: log}
}

// GetProfile returns the signed-in user.
func (uc *UserController) GetProfile(c *gin.Context) {
	user, err := uc.users.FindByID(c.Request.Context(), currentUser(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.SendError(c, http.StatusNotFound, "User not found")
			return
		}
		respondError(c, uc.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
