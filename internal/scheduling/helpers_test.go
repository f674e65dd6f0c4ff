package scheduling

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/dialysis-capacity-scheduling/internal/actor"
	"github.com/hackgods/dialysis-capacity-scheduling/internal/notify"
	redisclient "github.com/hackgods/dialysis-capacity-scheduling/internal/redis"
)

// Monday 2 March 2026.
var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func date(s string) time.Time {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func staffCtx() context.Context {
	return actor.WithActor(context.Background(), actor.Actor{UserID: 100, Role: "nurse"})
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) count(t notify.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.Type == t {
			c++
		}
	}
	return c
}

type fixture struct {
	store    *MemStore
	registry *Registry
	gen      *Generator
	alloc    *Allocator
	engine   *Engine
	notes    *recordingNotifier
	center   *Center
	beds     []Bed
}

func newFixture(t *testing.T, totalCapacity, beds int) *fixture {
	t.Helper()

	logger := zap.NewNop()
	store := NewMemStore()
	notes := &recordingNotifier{}
	alloc := NewAllocator(store, logger)

	f := &fixture{
		store:    store,
		registry: NewRegistry(store, logger),
		gen:      NewGenerator(store, redisclient.NewLocalLocker(), logger, 366),
		alloc:    alloc,
		engine:   NewEngine(store, alloc, notes, logger, time.UTC, WithClock(func() time.Time { return testNow })),
		notes:    notes,
	}

	center, err := f.registry.CreateCenter(staffCtx(), "Riverside Dialysis", totalCapacity)
	require.NoError(t, err)
	f.center = center

	for i := 1; i <= beds; i++ {
		b, err := f.registry.RegisterBed(staffCtx(), center.ID, fmt.Sprintf("B-%02d", i))
		require.NoError(t, err)
		f.beds = append(f.beds, *b)
	}
	return f
}

func (f *fixture) addTemplate(t *testing.T, weekday string, pattern RecurrencePattern, start, end string, capacity int) []SessionTemplate {
	t.Helper()
	ts, err := f.registry.CreateTemplate(staffCtx(), TemplateInput{
		CenterID:          f.center.ID,
		Weekday:           weekday,
		StartTime:         MustTimeOfDay(start),
		EndTime:           MustTimeOfDay(end),
		DefaultCapacity:   capacity,
		RecurrencePattern: pattern,
	})
	require.NoError(t, err)
	return ts
}

func (f *fixture) addSession(t *testing.T, d time.Time, start, end string, capacity int) *ScheduledSession {
	t.Helper()
	s, err := f.engine.CreateSession(staffCtx(), SessionInput{
		CenterID:      f.center.ID,
		Date:          d,
		StartTime:     MustTimeOfDay(start),
		EndTime:       MustTimeOfDay(end),
		AvailableBeds: capacity,
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) session(t *testing.T, id int64) *ScheduledSession {
	t.Helper()
	s, err := f.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	return s
}

func (f *fixture) activeCount(t *testing.T, sessionID int64) int {
	t.Helper()
	appts, err := f.store.ListAppointmentsBySession(context.Background(), sessionID)
	require.NoError(t, err)
	n := 0
	for _, a := range appts {
		if a.Status.Active() {
			n++
		}
	}
	return n
}
