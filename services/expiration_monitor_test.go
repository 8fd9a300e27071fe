package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/campus-gate/store"
)

func newMonitor(env *testEnv, s store.Store, now time.Time) *ExpirationMonitor {
	m := NewExpirationMonitor(s, NewDispatcher(s, env.policy), NewCorrelator(NewModuloGateAssigner("Gate 1", "Gate 2")), env.policy)
	m.Now = fixedClock(now)
	return m
}

func TestRunCycleDispatchesExpiredVisits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.guard(t, "Pak Joko", "Gate 1")
	other := env.guard(t, "Pak Rudi", "Gate 2")

	expired := env.visit(t, "VST-EXP001", &g.ID, time.Date(2026, 10, 15, 9, 0, 0, 0, campus))
	ongoing := env.visit(t, "VST-ONG001", &g.ID, time.Date(2026, 10, 16, 9, 0, 0, 0, campus))
	foreign := env.visit(t, "VST-OTH001", &other.ID, time.Date(2026, 10, 15, 9, 0, 0, 0, campus))

	m := newMonitor(env, env.store, time.Date(2026, 10, 15, 23, 0, 0, 0, campus))
	report, err := m.RunCycle(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, CycleReport{GuardID: g.ID, Evaluated: 1, Sent: 1}, report)

	assert.Equal(t, 1, env.notificationCount(t, g.ID, expired.ID))
	assert.Equal(t, 0, env.notificationCount(t, g.ID, ongoing.ID))
	assert.Equal(t, 0, env.notificationCount(t, g.ID, foreign.ID))
	assert.Equal(t, 0, env.notificationCount(t, other.ID, foreign.ID))

	// siklus kedua tidak menemukan apa pun
	report, err = m.RunCycle(ctx, g.ID)
	require.NoError(t, err)
	assert.Zero(t, report.Evaluated)
	assert.Equal(t, 1, env.notificationCount(t, g.ID, expired.ID))
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.guard(t, "Pak Joko", "Gate 1")
	entry := time.Date(2026, 10, 15, 9, 0, 0, 0, campus)

	a := env.visit(t, "VST-ISO001", &g.ID, entry)
	b := env.visit(t, "VST-ISO002", &g.ID, entry)
	c := env.visit(t, "VST-ISO003", &g.ID, entry)

	flaky := &flakyStore{Store: env.store, failInsertFor: map[uint]bool{b.ID: true}}
	m := newMonitor(env, flaky, entry.Add(14*time.Hour))

	report, err := m.RunCycle(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Evaluated)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)

	assert.Equal(t, 1, env.notificationCount(t, g.ID, a.ID))
	assert.Equal(t, 0, env.notificationCount(t, g.ID, b.ID))
	assert.Equal(t, 1, env.notificationCount(t, g.ID, c.ID))

	// visit yang gagal dicoba lagi pada siklus berikutnya
	flaky.mu.Lock()
	flaky.failInsertFor = nil
	flaky.mu.Unlock()

	report, err = m.RunCycle(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, CycleReport{GuardID: g.ID, Evaluated: 1, Sent: 1}, report)
	assert.Equal(t, 1, env.notificationCount(t, g.ID, b.ID))
}

func TestRunCycleCountsInconsistentDispatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.guard(t, "Pak Joko", "Gate 1")
	v := env.visit(t, "VST-INC001", &g.ID, time.Date(2026, 10, 15, 9, 0, 0, 0, campus))

	flaky := &flakyStore{Store: env.store}
	flaky.setFailFlagUpdate(true)
	m := newMonitor(env, flaky, time.Date(2026, 10, 15, 23, 0, 0, 0, campus))

	report, err := m.RunCycle(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Inconsistent)

	flaky.setFailFlagUpdate(false)
	report, err = m.RunCycle(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.AlreadySent)
	assert.Equal(t, 1, env.notificationCount(t, g.ID, v.ID))

	report, err = m.RunCycle(ctx, g.ID)
	require.NoError(t, err)
	assert.Zero(t, report.Evaluated)
}

func TestRunCycleQueryFailure(t *testing.T) {
	env := newTestEnv(t)
	g := env.guard(t, "Pak Joko", "Gate 1")

	flaky := &flakyStore{Store: env.store, failSelect: true}
	m := newMonitor(env, flaky, time.Now())

	_, err := m.RunCycle(context.Background(), g.ID)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	// guard tidak tertahan setelah siklus gagal
	flaky.mu.Lock()
	flaky.failSelect = false
	flaky.mu.Unlock()
	_, err = m.RunCycle(context.Background(), g.ID)
	assert.NoError(t, err)
}

func TestRunCycleRejectsOverlap(t *testing.T) {
	env := newTestEnv(t)
	g := env.guard(t, "Pak Joko", "Gate 1")

	block := make(chan struct{})
	flaky := &flakyStore{Store: env.store, selectBlock: block}
	m := newMonitor(env, flaky, time.Now())

	done := make(chan error, 1)
	go func() {
		_, err := m.RunCycle(context.Background(), g.ID)
		done <- err
	}()

	assert.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.inflight[g.ID]
	}, time.Second, 5*time.Millisecond)

	_, err := m.RunCycle(context.Background(), g.ID)
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(block)
	require.NoError(t, <-done)
}

func TestRunCyclePicksUpUnassignedVisitsByGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gate1 := env.guard(t, "Pak Joko", "Gate 1")
	gate2 := env.guard(t, "Pak Rudi", "Gate 2")
	entry := time.Date(2026, 10, 15, 9, 0, 0, 0, campus)

	odd := env.visit(t, "VST-UNA001", nil, entry)
	even := env.visit(t, "VST-UNA002", nil, entry)
	require.Equal(t, uint(1), odd.ID%2)
	require.Equal(t, uint(0), even.ID%2)

	m := newMonitor(env, env.store, entry.Add(14*time.Hour))

	report, err := m.RunCycle(ctx, gate1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, env.notificationCount(t, gate1.ID, even.ID))
	assert.Equal(t, 0, env.notificationCount(t, gate1.ID, odd.ID))

	report, err = m.RunCycle(ctx, gate2.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, env.notificationCount(t, gate2.ID, odd.ID))

	for _, id := range []uint{odd.ID, even.ID} {
		stored, err := env.store.GetVisit(ctx, id)
		require.NoError(t, err)
		assert.True(t, stored.NotificationSent)
	}
}

func TestExpiredVisitsIncludesNotified(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.guard(t, "Pak Joko", "Gate 1")
	entry := time.Date(2026, 10, 15, 9, 0, 0, 0, campus)

	env.visit(t, "VST-LST001", &g.ID, entry)
	env.visit(t, "VST-LST002", &g.ID, entry)
	m := newMonitor(env, env.store, entry.Add(14*time.Hour))

	pending, err := m.PendingVisits(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	_, err = NewDispatcher(env.store, env.policy).Dispatch(ctx, pending[0])
	require.NoError(t, err)

	pending, err = m.PendingVisits(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	expired, err := m.ExpiredVisits(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, VisitStatusExpiredNotified, expired[0].Status)
	assert.Equal(t, VisitStatusExpiredUnacknowledged, expired[1].Status)
}
