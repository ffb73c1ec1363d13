package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chyrp-api/services"
	"chyrp-api/utils"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		err     error
		status  int
		message string
		field   string
	}{
		{name: "field validation", err: &services.ValidationError{Field: "title", Message: "Title is required"}, status: http.StatusBadRequest, message: "Title is required", field: "title"},
		{name: "conflict", err: fmt.Errorf("taken: %w", services.ErrConflict), status: http.StatusConflict, message: "Username or email already exists"},
		{name: "unauthorized", err: services.ErrUnauthorized, status: http.StatusUnauthorized, message: "Invalid credentials"},
		{name: "forbidden", err: fmt.Errorf("post 1: %w", services.ErrForbidden), status: http.StatusForbidden, message: "Forbidden"},
		{name: "not found", err: fmt.Errorf("post %w", services.ErrNotFound), status: http.StatusNotFound, message: "Post not found"},
		{name: "storage failure", err: errors.New("connection reset"), status: http.StatusInternalServerError, message: "Database error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rr)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, zap.NewNop(), tt.err)

			assert.Equal(t, tt.status, rr.Code)
			var body utils.ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body.Message)
			assert.Equal(t, tt.field, body.Field)
			assert.NotContains(t, rr.Body.String(), "connection reset")
		})
	}
}
