package handler

import (
	"net/http"

	"leadintent_backend/internal/tracking/service"
	"leadintent_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the collaborator ingest key.
const APIKeyHeader = "X-Tracking-API-Key"

// APIKeyAuth guards the collaborator-facing tracking endpoints. Browser
// trackers authenticate with a shared per-site key, not a user JWT.
func APIKeyAuth(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(APIKeyHeader)
		if presented == "" {
			httpkit.Error(c, http.StatusUnauthorized, "missing api key", nil)
			c.Abort()
			return
		}
		if err := svc.Authenticate(c.Request.Context(), presented); err != nil {
			httpkit.HandleError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}
