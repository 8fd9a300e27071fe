package middlewares

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/campus-gate/store"
	"github.com/yeremiapane/campus-gate/utils"
)

// GuardCheck -> guard di token harus ada, aktif dan sudah dikonfirmasi
func GuardCheck(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		guardID, ok := GuardID(c)
		if !ok {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("unauthorized"))
			c.Abort()
			return
		}

		guard, err := s.GetGuard(c.Request.Context(), guardID)
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(c, http.StatusForbidden, errors.New("security account not found"))
			c.Abort()
			return
		}
		if err != nil {
			utils.RespondFailure(c, http.StatusServiceUnavailable, "failed to verify security account", err)
			c.Abort()
			return
		}

		if !guard.Active || !guard.Confirmed {
			utils.RespondError(c, http.StatusForbidden, errors.New("security account is not active"))
			c.Abort()
			return
		}

		c.Set(ContextGuard, guard)
		c.Next()
	}
}
