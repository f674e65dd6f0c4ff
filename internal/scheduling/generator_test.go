package scheduling

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/dialysis-capacity-scheduling/internal/redis"
)

func TestGenerate_WeeklyMondayOverTwoWeeks(t *testing.T) {
	f := newFixture(t, 10, 5)
	f.addTemplate(t, "mon", RecurrenceWeekly, "07:00", "11:00", 5)

	res, err := f.gen.Generate(staffCtx(), GenerateRequest{
		CenterID:  f.center.ID,
		StartDate: date("2026-03-02"),
		EndDate:   date("2026-03-15"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 0, res.Skipped)
	require.Len(t, res.Sessions, 2)
	for _, s := range res.Sessions {
		assert.Equal(t, 5, s.AvailableBeds)
		assert.Equal(t, 5, s.Capacity)
		assert.Equal(t, Monday, WeekdayOf(s.Date))
		assert.Equal(t, SessionScheduled, s.Status)
		assert.Equal(t, int64(100), s.CreatedByID)
		require.NotNil(t, s.TemplateID)
	}
	assert.Equal(t, date("2026-03-02"), res.Sessions[0].Date)
	assert.Equal(t, date("2026-03-09"), res.Sessions[1].Date)
}

func TestGenerate_IsIdempotent(t *testing.T) {
	f := newFixture(t, 10, 4)
	f.addTemplate(t, "mon", RecurrenceWeekly, "07:00", "11:00", 4)
	f.addTemplate(t, "wed", RecurrenceWeekly, "12:00", "16:00", 4)

	req := GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-02"), EndDate: date("2026-03-29")}

	first, err := f.gen.Generate(staffCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, 8, first.Created)

	second, err := f.gen.Generate(staffCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 8, second.Skipped)
	assert.Empty(t, second.Sessions)

	all, err := f.store.ListSessions(context.Background(), f.center.ID, req.StartDate, req.EndDate)
	require.NoError(t, err)
	assert.Len(t, all, 8)
}

func TestGenerate_OverlappingRangeOnlyAddsNewDays(t *testing.T) {
	f := newFixture(t, 10, 4)
	f.addTemplate(t, "tue", RecurrenceWeekly, "07:00", "11:00", 4)

	_, err := f.gen.Generate(staffCtx(), GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-02"), EndDate: date("2026-03-08")})
	require.NoError(t, err)

	res, err := f.gen.Generate(staffCtx(), GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-02"), EndDate: date("2026-03-15")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Skipped)
}

func TestGenerate_DailyPattern(t *testing.T) {
	f := newFixture(t, 10, 4)
	f.addTemplate(t, "mon", RecurrenceDaily, "07:00", "11:00", 3)

	res, err := f.gen.Generate(staffCtx(), GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-02"), EndDate: date("2026-03-08")})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Created)
}

func TestGenerate_WeekdayGroupTemplate(t *testing.T) {
	f := newFixture(t, 10, 4)
	ts := f.addTemplate(t, "weekdays", RecurrenceWeekly, "07:00", "11:00", 3)
	require.Len(t, ts, 5)

	res, err := f.gen.Generate(staffCtx(), GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-02"), EndDate: date("2026-03-08")})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Created)
	for _, s := range res.Sessions {
		wd := WeekdayOf(s.Date)
		assert.NotEqual(t, Saturday, wd)
		assert.NotEqual(t, Sunday, wd)
	}
}

func TestGenerate_OverlappingShiftsAllowed(t *testing.T) {
	f := newFixture(t, 10, 4)
	f.addTemplate(t, "mon", RecurrenceWeekly, "07:00", "12:00", 4)
	f.addTemplate(t, "mon", RecurrenceWeekly, "11:00", "16:00", 4)

	res, err := f.gen.Generate(staffCtx(), GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-02"), EndDate: date("2026-03-02")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
}

func TestGenerate_InvalidRange(t *testing.T) {
	f := newFixture(t, 10, 4)

	_, err := f.gen.Generate(staffCtx(), GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-10"), EndDate: date("2026-03-02")})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = f.gen.Generate(staffCtx(), GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-01-01"), EndDate: date("2027-12-31")})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestGenerate_UnknownCenter(t *testing.T) {
	f := newFixture(t, 10, 4)

	_, err := f.gen.Generate(staffCtx(), GenerateRequest{CenterID: 9999, StartDate: date("2026-03-02"), EndDate: date("2026-03-02")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerate_ZeroActiveBedsStillSucceeds(t *testing.T) {
	f := newFixture(t, 10, 0)
	f.addTemplate(t, "mon", RecurrenceWeekly, "07:00", "11:00", 5)

	res, err := f.gen.Generate(staffCtx(), GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-02"), EndDate: date("2026-03-02")})
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Sessions[0].AvailableBeds)
}

func TestGenerate_RaisesZeroCapacitySessionsOnceBedsExist(t *testing.T) {
	f := newFixture(t, 10, 0)
	f.addTemplate(t, "mon", RecurrenceWeekly, "07:00", "11:00", 5)
	req := GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-02"), EndDate: date("2026-03-15")}

	first, err := f.gen.Generate(staffCtx(), req)
	require.NoError(t, err)
	require.Equal(t, 2, first.Created)

	for i := 1; i <= 5; i++ {
		_, err := f.registry.RegisterBed(staffCtx(), f.center.ID, fmt.Sprintf("N-%02d", i))
		require.NoError(t, err)
	}

	second, err := f.gen.Generate(staffCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Skipped)
	assert.Equal(t, 2, second.Refreshed)
	for _, s := range second.Sessions {
		assert.Equal(t, 5, s.Capacity)
		assert.Equal(t, 5, s.AvailableBeds)
	}

	monday := second.Sessions[len(second.Sessions)-1]
	_, err = f.engine.Book(staffCtx(), monday.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, 4, f.session(t, monday.ID).AvailableBeds)

	third, err := f.gen.Generate(staffCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, third.Refreshed)
	assert.Equal(t, 2, third.Skipped)
	assert.Equal(t, 4, f.session(t, monday.ID).AvailableBeds)
}

func TestGenerate_DoesNotRaiseEmptyAdHocSession(t *testing.T) {
	f := newFixture(t, 10, 2)
	adHoc := f.addSession(t, date("2026-03-09"), "07:00", "11:00", 0)
	f.addTemplate(t, "mon", RecurrenceWeekly, "07:00", "11:00", 2)

	res, err := f.gen.Generate(staffCtx(), GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-09"), EndDate: date("2026-03-09")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Refreshed)
	assert.Equal(t, 0, f.session(t, adHoc.ID).Capacity)
}

func TestGenerate_CapacityClampedToCenter(t *testing.T) {
	f := newFixture(t, 3, 3)
	f.addTemplate(t, "mon", RecurrenceWeekly, "07:00", "11:00", 8)

	res, err := f.gen.Generate(staffCtx(), GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-02"), EndDate: date("2026-03-02")})
	require.NoError(t, err)
	require.Len(t, res.Sessions, 1)
	assert.Equal(t, 3, res.Sessions[0].AvailableBeds)
}

func TestGenerate_ExplicitTemplatesReportFailures(t *testing.T) {
	f := newFixture(t, 10, 4)
	good := f.addTemplate(t, "mon", RecurrenceWeekly, "07:00", "11:00", 4)
	inactive := f.addTemplate(t, "mon", RecurrenceWeekly, "12:00", "16:00", 4)
	_, err := f.registry.SetTemplateStatus(staffCtx(), inactive[0].ID, TemplateInactive)
	require.NoError(t, err)

	other, err := f.registry.CreateCenter(staffCtx(), "Hillside", 5)
	require.NoError(t, err)
	foreign, err := f.registry.CreateTemplate(staffCtx(), TemplateInput{
		CenterID: other.ID, Weekday: "mon", StartTime: MustTimeOfDay("07:00"), EndTime: MustTimeOfDay("11:00"),
		DefaultCapacity: 2, RecurrencePattern: RecurrenceWeekly,
	})
	require.NoError(t, err)

	res, err := f.gen.Generate(staffCtx(), GenerateRequest{
		CenterID:    f.center.ID,
		StartDate:   date("2026-03-02"),
		EndDate:     date("2026-03-02"),
		TemplateIDs: []int64{good[0].ID, inactive[0].ID, foreign[0].ID, 424242},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Failures, 3)
	reasons := map[int64]string{}
	for _, fl := range res.Failures {
		reasons[fl.TemplateID] = fl.Reason
	}
	assert.Equal(t, "template is inactive", reasons[inactive[0].ID])
	assert.Equal(t, "template belongs to another center", reasons[foreign[0].ID])
	assert.Equal(t, "template not found", reasons[424242])
}

func TestGenerate_MalformedTemplateDoesNotAbortRun(t *testing.T) {
	f := newFixture(t, 10, 4)
	f.addTemplate(t, "mon", RecurrenceWeekly, "07:00", "11:00", 4)

	// stored without going through the registry's validation
	broken, err := f.store.CreateTemplates(context.Background(), []SessionTemplate{{
		CenterID:          f.center.ID,
		Weekday:           Monday,
		StartTime:         MustTimeOfDay("15:00"),
		EndTime:           MustTimeOfDay("11:00"),
		DefaultCapacity:   4,
		RecurrencePattern: RecurrenceWeekly,
		Status:            TemplateActive,
		CreatedByID:       1,
	}})
	require.NoError(t, err)

	res, err := f.gen.Generate(staffCtx(), GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-02"), EndDate: date("2026-03-09")})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Created)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, broken[0].ID, res.Failures[0].TemplateID)
	assert.Contains(t, res.Failures[0].Reason, "invalid session template")
}

func TestGenerate_CancelledSessionIsRegenerated(t *testing.T) {
	f := newFixture(t, 10, 4)
	f.addTemplate(t, "mon", RecurrenceWeekly, "07:00", "11:00", 4)
	req := GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-02"), EndDate: date("2026-03-02")}

	first, err := f.gen.Generate(staffCtx(), req)
	require.NoError(t, err)
	_, err = f.engine.CancelSession(staffCtx(), first.Sessions[0].ID)
	require.NoError(t, err)

	again, err := f.gen.Generate(staffCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Created)
}

type busyLocker struct{}

func (busyLocker) WithCenterLock(context.Context, int64, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestGenerate_ConcurrentRunRejected(t *testing.T) {
	f := newFixture(t, 10, 4)
	f.addTemplate(t, "mon", RecurrenceWeekly, "07:00", "11:00", 4)

	gen := NewGenerator(f.store, busyLocker{}, zap.NewNop(), 366)
	_, err := gen.Generate(staffCtx(), GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-02"), EndDate: date("2026-03-02")})
	assert.ErrorIs(t, err, ErrGenerationInProgress)
}

// lostLocker runs fn with a context already cancelled as if the lease
// had been taken by another process.
type lostLocker struct{}

func (lostLocker) WithCenterLock(ctx context.Context, _ int64, fn func(context.Context) error) error {
	runCtx, cancel := context.WithCancelCause(ctx)
	cancel(redisclient.ErrLockLost)
	return fn(runCtx)
}

func TestGenerate_StopsWhenLockLost(t *testing.T) {
	f := newFixture(t, 10, 4)
	f.addTemplate(t, "mon", RecurrenceWeekly, "07:00", "11:00", 4)
	req := GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-02"), EndDate: date("2026-03-02")}

	gen := NewGenerator(f.store, lostLocker{}, zap.NewNop(), 366)
	_, err := gen.Generate(staffCtx(), req)
	assert.ErrorIs(t, err, redisclient.ErrLockLost)

	res, err := f.gen.Generate(staffCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
}

func TestGenerate_RequiresActor(t *testing.T) {
	f := newFixture(t, 10, 4)

	_, err := f.gen.Generate(context.Background(), GenerateRequest{CenterID: f.center.ID, StartDate: date("2026-03-02"), EndDate: date("2026-03-02")})
	assert.Error(t, err)
}
