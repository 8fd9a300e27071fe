package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/campus-gate/feed"
	"github.com/yeremiapane/campus-gate/models"
	"github.com/yeremiapane/campus-gate/store"
)

func receive(t *testing.T, sub *feed.Subscription) feed.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed: %v", sub.Err())
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return feed.Event{}
	}
}

func TestChangeMonitorBroadcastsNotificationChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.guard(t, "Pak Joko", "Gate 1")
	other := env.guard(t, "Pak Rudi", "Gate 2")
	v := env.visit(t, "VST-CM0001", &g.ID, time.Date(2026, 10, 15, 9, 0, 0, 0, campus))

	monitor := NewChangeMonitor(env.store.DB(), env.hub)
	sub := env.hub.Subscribe(store.TableNotifications, g.ID)
	defer sub.Close()
	otherSub := env.hub.Subscribe(store.TableNotifications, other.ID)
	defer otherSub.Close()

	n, err := env.store.InsertNotification(ctx, g.ID, v.ID, "expired")
	require.NoError(t, err)
	require.NoError(t, env.store.MarkNotificationRead(ctx, g.ID, n.ID))
	_, err = env.store.ClearNotifications(ctx, g.ID)
	require.NoError(t, err)

	processed, err := monitor.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, processed)

	// baris sudah dihapus saat poll, jadi INSERT dan UPDATE dilewati
	ev := receive(t, sub)
	assert.Equal(t, feed.ActionDelete, ev.Action)
	assert.Equal(t, n.ID, ev.Notification.ID)
	assert.Equal(t, g.ID, ev.Notification.UserID)
	assert.Equal(t, uint(3), monitor.Cursor())
	assert.Len(t, otherSub.Events(), 0)

	processed, err = monitor.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestChangeMonitorCarriesCurrentRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.guard(t, "Pak Joko", "Gate 1")
	v := env.visit(t, "VST-CM0002", &g.ID, time.Date(2026, 10, 15, 9, 0, 0, 0, campus))

	monitor := NewChangeMonitor(env.store.DB(), env.hub)
	sub := env.hub.Subscribe(store.TableNotifications, g.ID)
	defer sub.Close()

	n, err := env.store.InsertNotification(ctx, g.ID, v.ID, "expired")
	require.NoError(t, err)
	_, err = monitor.Poll(ctx)
	require.NoError(t, err)

	ev := receive(t, sub)
	assert.Equal(t, feed.ActionInsert, ev.Action)
	assert.Equal(t, n.ID, ev.Notification.ID)
	assert.Equal(t, v.ID, ev.Notification.VisitID)
	assert.False(t, ev.Notification.Read)
	assert.NotZero(t, ev.Seq)
}

func TestChangeMonitorSkipBacklog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.guard(t, "Pak Joko", "Gate 1")
	v := env.visit(t, "VST-CM0003", &g.ID, time.Date(2026, 10, 15, 9, 0, 0, 0, campus))

	_, err := env.store.InsertNotification(ctx, g.ID, v.ID, "old")
	require.NoError(t, err)

	monitor := NewChangeMonitor(env.store.DB(), env.hub)
	require.NoError(t, monitor.SkipBacklog(ctx))
	assert.Equal(t, uint(1), monitor.Cursor())

	processed, err := monitor.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestChangeMonitorStartStop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.guard(t, "Pak Joko", "Gate 1")
	v := env.visit(t, "VST-CM0004", &g.ID, time.Date(2026, 10, 15, 9, 0, 0, 0, campus))

	monitor := NewChangeMonitor(env.store.DB(), env.hub)
	monitor.Interval = 10 * time.Millisecond
	require.NoError(t, monitor.Start(ctx))
	assert.Error(t, monitor.Start(ctx))
	defer monitor.Stop()

	sub := env.hub.Subscribe(store.TableNotifications, g.ID)
	defer sub.Close()

	_, err := env.store.InsertNotification(ctx, g.ID, v.ID, "expired")
	require.NoError(t, err)

	ev := receive(t, sub)
	assert.Equal(t, feed.ActionInsert, ev.Action)

	monitor.Stop()
	monitor.Stop()
}

func TestChangeMonitorPrune(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	db := env.store.DB()

	now := time.Now().UTC()
	rows := []models.DBChange{
		{Table: store.TableNotifications, RecordID: 900, ActionType: models.ActionUpdate, ChangedAt: now.Add(-2 * time.Hour)},
		{Table: store.TableNotifications, RecordID: 901, ActionType: models.ActionUpdate, ChangedAt: now},
	}
	require.NoError(t, db.Create(&rows).Error)

	monitor := NewChangeMonitor(db, env.hub)
	processed, err := monitor.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	monitor.Prune(ctx)

	var remaining []models.DBChange
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, uint(901), remaining[0].RecordID)
}

func TestChangeMonitorDeliversLateCommittedChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	db := env.store.DB()
	g := env.guard(t, "Pak Joko", "Gate 1")

	sub := env.hub.Subscribe(store.TableNotifications, g.ID)
	defer sub.Close()
	monitor := NewChangeMonitor(db, env.hub)

	// transaksi dengan ID lebih besar commit lebih dulu
	later := models.DBChange{ID: 52, Table: store.TableNotifications, RecordID: 502, ScopeID: &g.ID, ActionType: models.ActionDelete, ChangedAt: time.Now().UTC()}
	require.NoError(t, db.Create(&later).Error)
	processed, err := monitor.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, uint(52), monitor.Cursor())

	earlier := models.DBChange{ID: 51, Table: store.TableNotifications, RecordID: 501, ScopeID: &g.ID, ActionType: models.ActionDelete, ChangedAt: time.Now().UTC()}
	require.NoError(t, db.Create(&earlier).Error)
	processed, err = monitor.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	delivered := []uint{receive(t, sub).Seq, receive(t, sub).Seq}
	assert.ElementsMatch(t, []uint{51, 52}, delivered)
	assert.Equal(t, uint(52), monitor.Cursor())

	var pending int64
	require.NoError(t, db.Model(&models.DBChange{}).Where("processed = ?", false).Count(&pending).Error)
	assert.Zero(t, pending)
}
