package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"market-chat/internal/apperrors"
	"market-chat/internal/logger"
)

// respondError writes the {"error", "code"} body for err.
func respondError(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	if appErr.Status >= http.StatusInternalServerError {
		logger.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", requestIDFromContext(c)).
			Msg("request failed")
	}
	c.AbortWithStatusJSON(appErr.Status, gin.H{"error": appErr.Message, "code": appErr.Code})
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, apperrors.BadRequest("invalid "+name, err))
		return 0, false
	}
	return id, true
}

func parseLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		return 0
	}
	return limit
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
