package middlewares

import (
	"net/http"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/models"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"github.com/gin-gonic/gin"
)

// RequirePermission gates a route on a module/action grant from the caller's
// role. Admins (role id 0) bypass the check.
func RequirePermission(module string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if isAdmin, ok := utils.GetIsAdminFromContext(ctx); ok && isAdmin {
			c.Next()
			return
		}

		username, ok := utils.GetUsernameFromContext(ctx)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		user, err := models.GetUserByUsername(ctx, username)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		permissions, err := models.GetPermissionsForRole(ctx, user.RoleId)
		if err != nil {
			config.LogError(config.GetLogger(), "permissionMiddleware.go", "RequirePermission", "GetPermissionsForRole", user.RoleId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			c.Abort()
			return
		}
		if !permissions[module+"|"+action] {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}
