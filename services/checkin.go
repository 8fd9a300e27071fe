package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/campus-gate/models"
	"github.com/yeremiapane/campus-gate/store"
	"github.com/yeremiapane/campus-gate/utils"
)

const (
	visitCodePrefix   = "VST-"
	visitCodeLength   = 6
	visitCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	visitCodeAttempts = 5
)

var ErrInvalidCheckIn = errors.New("invalid check-in")

// CheckInInput -> data dari form gerbang (validasi form ada di UI)
type CheckInInput struct {
	VisitorName string
	IDNumber    string
	CardType    string
	PhoneNumber string
	Purpose     string
	SecurityID  *uint
}

// CheckInService membuat Visit baru dan memastikan Visitor tidak duplikat
type CheckInService struct {
	store  store.Store
	policy ExpirationPolicy
	Now    func() time.Time
	Codes  func() (string, error)
}

func NewCheckInService(s store.Store, policy ExpirationPolicy) *CheckInService {
	return &CheckInService{
		store:  s,
		policy: policy,
		Now:    time.Now,
		Codes:  NewVisitCode,
	}
}

// NewVisitCode -> format VST-XXXXXX, alfanumerik acak
func NewVisitCode() (string, error) {
	var b strings.Builder
	b.WriteString(visitCodePrefix)
	limit := big.NewInt(int64(len(visitCodeAlphabet)))
	for i := 0; i < visitCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(visitCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func (s *CheckInService) CheckIn(ctx context.Context, in CheckInInput) (models.Visit, models.Visitor, error) {
	idNumber := strings.TrimSpace(in.IDNumber)
	if idNumber == "" {
		return models.Visit{}, models.Visitor{}, fmt.Errorf("%w: id number is required", ErrInvalidCheckIn)
	}

	visitor, created, err := s.store.FindOrCreateVisitor(ctx, models.Visitor{
		Name:        strings.TrimSpace(in.VisitorName),
		IDNumber:    idNumber,
		CardType:    in.CardType,
		PhoneNumber: in.PhoneNumber,
	})
	if err != nil {
		return models.Visit{}, models.Visitor{}, fmt.Errorf("resolve visitor: %w", err)
	}

	entry := s.Now().UTC()
	visitorID := visitor.ID
	visit := models.Visit{
		VisitorID:   &visitorID,
		Purpose:     in.Purpose,
		TimeOfVisit: entry,
		Expiration:  s.policy.ExpirationFor(entry),
		SecurityID:  in.SecurityID,
	}

	// kode acak bisa bentrok; coba ulang beberapa kali
	for attempt := 1; ; attempt++ {
		code, err := s.Codes()
		if err != nil {
			return models.Visit{}, models.Visitor{}, fmt.Errorf("generate visit code: %w", err)
		}
		visit.ID = 0
		visit.VisitCode = code

		err = s.store.CreateVisit(ctx, &visit)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConstraintViolation) || attempt >= visitCodeAttempts {
			return models.Visit{}, models.Visitor{}, fmt.Errorf("create visit: %w", err)
		}
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"visit_id":    visit.ID,
		"visit_code":  visit.VisitCode,
		"visitor_id":  visitor.ID,
		"new_visitor": created,
		"expiration":  visit.Expiration,
	}).Info("Visitor checked in")
	return visit, visitor, nil
}
