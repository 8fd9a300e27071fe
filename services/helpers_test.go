package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/campus-gate/database"
	"github.com/yeremiapane/campus-gate/feed"
	"github.com/yeremiapane/campus-gate/models"
	"github.com/yeremiapane/campus-gate/store"
)

var campus = time.FixedZone("campus", 8*60*60)

type testEnv struct {
	store  *store.GormStore
	hub    *feed.Hub
	policy ExpirationPolicy
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	hub := feed.NewHub(32)
	t.Cleanup(hub.Close)
	return &testEnv{
		store:  store.NewGormStore(db, hub),
		hub:    hub,
		policy: DefaultExpirationPolicy(),
	}
}

func (e *testEnv) guard(t *testing.T, name, gate string) models.Security {
	t.Helper()
	g := models.Security{Name: name, AssignGate: gate, Active: true, Confirmed: true}
	require.NoError(t, e.store.DB().Create(&g).Error)
	return g
}

func (e *testEnv) visit(t *testing.T, code string, guardID *uint, entry time.Time) models.Visit {
	t.Helper()
	v := models.Visit{
		VisitCode:   code,
		Purpose:     "campus tour",
		TimeOfVisit: entry,
		Expiration:  e.policy.ExpirationFor(entry),
		SecurityID:  guardID,
	}
	require.NoError(t, e.store.CreateVisit(context.Background(), &v))
	return v
}

func (e *testEnv) notificationCount(t *testing.T, guardID, visitID uint) int {
	t.Helper()
	rows, err := e.store.FindNotifications(context.Background(), guardID, visitID)
	require.NoError(t, err)
	return len(rows)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func ptr(v uint) *uint { return &v }

// flakyStore membungkus Store untuk menyuntikkan kegagalan
type flakyStore struct {
	store.Store

	mu             sync.Mutex
	failFlagUpdate bool
	failInsertFor  map[uint]bool
	failSelect     bool
	selectBlock    chan struct{}
}

func (f *flakyStore) UpdateVisitFlag(ctx context.Context, visitID uint, guardID *uint, field string, value bool) (int64, error) {
	f.mu.Lock()
	fail := f.failFlagUpdate
	f.mu.Unlock()
	if fail {
		return 0, store.ErrUnavailable
	}
	return f.Store.UpdateVisitFlag(ctx, visitID, guardID, field, value)
}

func (f *flakyStore) InsertNotification(ctx context.Context, guardID, visitID uint, content string) (models.Notification, error) {
	f.mu.Lock()
	fail := f.failInsertFor[visitID]
	f.mu.Unlock()
	if fail {
		return models.Notification{}, store.ErrUnavailable
	}
	return f.Store.InsertNotification(ctx, guardID, visitID, content)
}

func (f *flakyStore) SelectVisits(ctx context.Context, filter store.VisitFilter) ([]models.Visit, error) {
	f.mu.Lock()
	fail, block := f.failSelect, f.selectBlock
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if fail {
		return nil, store.ErrUnavailable
	}
	return f.Store.SelectVisits(ctx, filter)
}

func (f *flakyStore) setFailFlagUpdate(v bool) {
	f.mu.Lock()
	f.failFlagUpdate = v
	f.mu.Unlock()
}
