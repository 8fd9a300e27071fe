package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/campus-gate/models"
	"github.com/yeremiapane/campus-gate/services"
	"github.com/yeremiapane/campus-gate/store"
	"github.com/yeremiapane/campus-gate/utils"
)

type VisitController struct {
	Store      store.Store
	CheckIns   *services.CheckInService
	Closer     *services.VisitCloser
	Monitor    *services.ExpirationMonitor
	Correlator *services.Correlator
}

func NewVisitController(s store.Store, checkIns *services.CheckInService, closer *services.VisitCloser,
	monitor *services.ExpirationMonitor, correlator *services.Correlator) *VisitController {
	return &VisitController{
		Store:      s,
		CheckIns:   checkIns,
		Closer:     closer,
		Monitor:    monitor,
		Correlator: correlator,
	}
}

type expiredVisitResponse struct {
	services.ExpiredVisit
	Identity services.Identity `json:"identity"`
}

// CheckIn -> visitor masuk lewat gerbang guard yang sedang login, kecuali
// security_id diisi eksplisit
func (vc *VisitController) CheckIn(c *gin.Context) {
	guardID, ok := currentGuard(c)
	if !ok {
		return
	}

	var body struct {
		VisitorName string `json:"visitor_name" binding:"required"`
		IDNumber    string `json:"id_number" binding:"required"`
		CardType    string `json:"card_type"`
		PhoneNumber string `json:"phone_number"`
		Purpose     string `json:"purpose"`
		SecurityID  *uint  `json:"security_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if body.SecurityID == nil {
		body.SecurityID = &guardID
	}

	visit, visitor, err := vc.CheckIns.CheckIn(c.Request.Context(), services.CheckInInput{
		VisitorName: body.VisitorName,
		IDNumber:    body.IDNumber,
		CardType:    body.CardType,
		PhoneNumber: body.PhoneNumber,
		Purpose:     body.Purpose,
		SecurityID:  body.SecurityID,
	})
	if errors.Is(err, services.ErrInvalidCheckIn) {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		utils.RespondFailure(c, http.StatusInternalServerError, "failed to check in visitor", err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Visitor checked in", gin.H{
		"visit":   visit,
		"visitor": visitor,
	})
}

// TimeOut -> tombol "Time Out" di layar guard. Hanya guard visit itu, atau
// guard gerbang rotasi untuk visit tanpa security_id.
func (vc *VisitController) TimeOut(c *gin.Context) {
	guard, ok := currentGuardRecord(c)
	if !ok {
		return
	}
	visitID, ok := paramID(c, "visit_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	visit, err := vc.Store.GetVisit(ctx, visitID)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(c, http.StatusNotFound, errors.New("visit not found"))
		return
	}
	if err != nil {
		utils.RespondFailure(c, http.StatusServiceUnavailable, "failed to load visit", err)
		return
	}
	if !vc.handledBy(visit, guard) {
		utils.RespondError(c, http.StatusForbidden, errors.New("visit belongs to another gate"))
		return
	}

	if err := vc.Closer.Close(ctx, visitID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(c, http.StatusNotFound, errors.New("visit not found"))
			return
		}
		utils.RespondFailure(c, http.StatusInternalServerError, "failed to time out visit", err)
		return
	}

	visit, err = vc.Store.GetVisit(ctx, visitID)
	if err != nil {
		utils.RespondFailure(c, http.StatusInternalServerError, "failed to load visit", err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Visit timed out", visit)
}

// handledBy -> security_id sama, atau visit tanpa guard yang dirotasi ke
// gerbang guard ini
func (vc *VisitController) handledBy(visit models.Visit, guard models.Security) bool {
	if visit.SecurityID != nil {
		return *visit.SecurityID == guard.ID
	}
	gate, ok := vc.Correlator.GateAssigner().AssignGate(visit)
	return ok && gate == guard.AssignGate
}

// GetExpired -> visit expired milik guard beserta identitas visitor
func (vc *VisitController) GetExpired(c *gin.Context) {
	guardID, ok := currentGuard(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	expired, err := vc.Monitor.ExpiredVisits(ctx, guardID)
	if err != nil {
		utils.RespondFailure(c, http.StatusServiceUnavailable, "failed to load expired visits", err)
		return
	}

	visitors, guards, err := vc.directory(c)
	if err != nil {
		return
	}

	out := make([]expiredVisitResponse, 0, len(expired))
	for _, e := range expired {
		out = append(out, expiredVisitResponse{
			ExpiredVisit: e,
			Identity:     vc.Correlator.Resolve(e.Visit, visitors, guards),
		})
	}
	utils.RespondJSON(c, http.StatusOK, "Expired visits", out)
}

// GetIdentity -> nama visitor dan guard untuk satu visit, placeholder jika
// tidak ditemukan
func (vc *VisitController) GetIdentity(c *gin.Context) {
	visitID, ok := paramID(c, "visit_id")
	if !ok {
		return
	}

	visit, err := vc.Store.GetVisit(c.Request.Context(), visitID)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(c, http.StatusNotFound, errors.New("visit not found"))
		return
	}
	if err != nil {
		utils.RespondFailure(c, http.StatusServiceUnavailable, "failed to load visit", err)
		return
	}

	visitors, guards, err := vc.directory(c)
	if err != nil {
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Visit identity", vc.Correlator.Resolve(visit, visitors, guards))
}

func (vc *VisitController) directory(c *gin.Context) ([]models.Visitor, []models.Security, error) {
	visitors, err := vc.Store.ListVisitors(c.Request.Context())
	if err != nil {
		utils.RespondFailure(c, http.StatusServiceUnavailable, "failed to load visitors", err)
		return nil, nil, err
	}
	guards, err := vc.Store.ListGuards(c.Request.Context())
	if err != nil {
		utils.RespondFailure(c, http.StatusServiceUnavailable, "failed to load security staff", err)
		return nil, nil, err
	}
	return visitors, guards, nil
}
