package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/campus-gate/middlewares"
	"github.com/yeremiapane/campus-gate/models"
	"github.com/yeremiapane/campus-gate/utils"
)

func currentGuard(c *gin.Context) (uint, bool) {
	guardID, ok := middlewares.GuardID(c)
	if !ok {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	return guardID, ok
}

// currentGuardRecord -> data guard yang dipasang GuardCheck
func currentGuardRecord(c *gin.Context) (models.Security, bool) {
	v, ok := c.Get(middlewares.ContextGuard)
	guard, isGuard := v.(models.Security)
	if !ok || !isGuard {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("unauthorized"))
		return models.Security{}, false
	}
	return guard, true
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid "+name))
		return 0, false
	}
	return uint(id), true
}
