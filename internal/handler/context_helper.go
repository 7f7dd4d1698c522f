package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/capstone-api/internal/middleware"
	"github.com/noah-isme/capstone-api/internal/models"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
	"github.com/noah-isme/capstone-api/pkg/response"
)

// requireIdentity returns the caller or writes a 401 and returns nil.
func requireIdentity(c *gin.Context) *models.Identity {
	identity := middleware.IdentityFromContext(c)
	if identity == nil {
		response.Error(c, appErrors.ErrUnauthorized)
	}
	return identity
}

// bindJSON decodes the body or writes a 400 and returns false.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}
