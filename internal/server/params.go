package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// pathID parses a snowflake id path parameter, attaching a validation
// error on failure. Callers must return immediately when ok is false.
func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError(name, "invalid_"+name, "invalid "+name))
		return 0, false
	}
	return id, true
}
