package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/campus-gate/utils"
)

const (
	ContextGuardID = "guard_id"
	ContextGuard   = "guard"
)

// AuthMiddleware -> token dari header Authorization atau query ?token=
// (browser tidak bisa mengirim header saat membuka websocket)
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		if header := c.GetHeader("Authorization"); header != "" {
			if !strings.HasPrefix(header, "Bearer ") {
				utils.RespondError(c, http.StatusUnauthorized, errors.New("format token tidak valid"))
				c.Abort()
				return
			}
			tokenString = strings.TrimPrefix(header, "Bearer ")
		} else {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("token tidak ditemukan"))
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set(ContextGuardID, claims.GuardID)
		c.Next()
	}
}

// GuardID -> id guard yang sudah diverifikasi AuthMiddleware
func GuardID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextGuardID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}
