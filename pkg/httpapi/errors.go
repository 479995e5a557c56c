package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/analystcopilot/core/pkg/apperrors"
)

// writeError maps any error to its stable HTTP status and public message,
// per apperrors.HTTPStatus/PublicMessage — never exposing the wrapped
// cause chain to the caller.
func writeError(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatus(err), gin.H{"error": apperrors.PublicMessage(err)})
}
