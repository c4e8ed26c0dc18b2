package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"parking-access-backend/internal/db"
	"parking-access-backend/internal/ledger"
	"parking-access-backend/internal/model"
	"parking-access-backend/internal/store"
)

var day = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

func at(hh, mm, ss int) *time.Time {
	t := day.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute + time.Duration(ss)*time.Second)
	return &t
}

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return gormDB
}

func newLedger(t *testing.T, opts ...ledger.Option) (*ledger.Ledger, store.Store, *gorm.DB) {
	t.Helper()
	gormDB := newSQLiteDB(t)
	s := store.NewGormStore(gormDB)
	opts = append([]ledger.Option{ledger.WithClock(func() time.Time { return *at(12, 0, 0) })}, opts...)
	return ledger.New(s, opts...), s, gormDB
}

func countEvents(t *testing.T, gormDB *gorm.DB, vehicleID int64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gormDB.Model(&model.AccessEvent{}).Where("vehiculo_id = ?", vehicleID).Count(&n).Error)
	return n
}

func TestLedger_DuplicateEntry(t *testing.T) {
	l, _, gormDB := newLedger(t)
	ctx := context.Background()

	first, err := l.AppendEntry(ctx, 5, at(10, 0, 0), nil, nil)
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	_, err = l.AppendEntry(ctx, 5, at(10, 5, 0), nil, nil)
	assert.ErrorIs(t, err, ledger.ErrDuplicateEntry)
	assert.Equal(t, ledger.CodeDuplicateEntry, ledger.Code(err))
	assert.EqualValues(t, 1, countEvents(t, gormDB, 5))
}

func TestLedger_ExitWithoutEntry(t *testing.T) {
	l, _, gormDB := newLedger(t)

	_, _, err := l.AppendExit(context.Background(), 7, nil, nil)
	assert.ErrorIs(t, err, ledger.ErrNoOpenEntry)
	assert.Equal(t, ledger.CodeNoOpenEntry, ledger.Code(err))
	assert.Zero(t, countEvents(t, gormDB, 7))
}

func TestLedger_ExitComputesStay(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	_, err := l.AppendEntry(ctx, 3, at(9, 0, 0), nil, nil)
	require.NoError(t, err)

	door := "Norte"
	exit, stay, err := l.AppendExit(ctx, 3, at(9, 30, 15), &door)
	require.NoError(t, err)

	require.NotNil(t, exit.StayDuration)
	assert.EqualValues(t, 1815, *exit.StayDuration)
	assert.Equal(t, ledger.Stay{Seconds: 1815, Minutes: 30, Hours: 0}, stay)
	assert.Equal(t, model.MovementExit, exit.Movement)
	assert.Equal(t, "Norte", *exit.Door)

	status, err := l.CurrentStatus(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, ledger.Outside, status.Presence)
	assert.Nil(t, status.OpenEntry)
	assert.Nil(t, status.Elapsed)
	require.Len(t, status.Recent, 2)
	assert.Equal(t, model.MovementExit, status.Recent[0].Movement)
}

func TestLedger_StatusWhileInside(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	_, err := l.AppendEntry(ctx, 5, at(10, 0, 0), nil, nil)
	require.NoError(t, err)
	_, err = l.AppendEntry(ctx, 5, at(10, 5, 0), nil, nil)
	require.ErrorIs(t, err, ledger.ErrDuplicateEntry)

	status, err := l.CurrentStatus(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, ledger.Inside, status.Presence)
	require.NotNil(t, status.OpenEntry)
	assert.True(t, at(10, 0, 0).Equal(status.OpenEntry.Timestamp))
	require.NotNil(t, status.Elapsed)
	// The clock is fixed at 12:00:00.
	assert.Equal(t, ledger.Stay{Seconds: 7200, Minutes: 120, Hours: 2}, *status.Elapsed)
}

func TestLedger_StayIsFlooredSeconds(t *testing.T) {
	testCases := []struct {
		name     string
		gap      time.Duration
		expected int64
	}{
		{name: "same instant", gap: 0, expected: 0},
		{name: "sub-second", gap: 999 * time.Millisecond, expected: 0},
		{name: "just under two seconds", gap: 1999 * time.Millisecond, expected: 1},
		{name: "exact hour", gap: time.Hour, expected: 3600},
		{name: "hour and a fraction", gap: time.Hour + 500*time.Millisecond, expected: 3600},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l, _, _ := newLedger(t)
			ctx := context.Background()
			in := at(8, 0, 0)
			out := in.Add(tc.gap)

			_, err := l.AppendEntry(ctx, 11, in, nil, nil)
			require.NoError(t, err)
			exit, stay, err := l.AppendExit(ctx, 11, &out, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, *exit.StayDuration)
			assert.Equal(t, tc.expected, stay.Seconds)
		})
	}
}

func TestLedger_NegativeStayWritesNothing(t *testing.T) {
	l, _, gormDB := newLedger(t)
	ctx := context.Background()

	_, err := l.AppendEntry(ctx, 4, at(9, 0, 0), nil, nil)
	require.NoError(t, err)

	_, _, err = l.AppendExit(ctx, 4, at(8, 59, 59), nil)
	assert.ErrorIs(t, err, ledger.ErrNegativeDuration)
	assert.Equal(t, ledger.CodeNegativeStay, ledger.Code(err))
	assert.EqualValues(t, 1, countEvents(t, gormDB, 4))

	open, err := l.IsOpen(ctx, 4)
	require.NoError(t, err)
	assert.True(t, open)
}

func TestLedger_EntryStayDuration(t *testing.T) {
	l, _, gormDB := newLedger(t)
	ctx := context.Background()

	negative := int64(-1)
	_, err := l.AppendEntry(ctx, 6, at(9, 0, 0), nil, &negative)
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "tiempo_estadia", verr.Field)
	assert.Zero(t, countEvents(t, gormDB, 6))

	given := int64(120)
	entry, err := l.AppendEntry(ctx, 6, at(9, 0, 0), nil, &given)
	require.NoError(t, err)
	assert.EqualValues(t, 120, *entry.StayDuration)
}

func TestLedger_AppendDispatchesOnMovement(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	receipt, err := l.Append(ctx, ledger.AppendRequest{Movement: model.MovementEntry, VehicleID: 9, Timestamp: at(7, 0, 0)})
	require.NoError(t, err)
	assert.Nil(t, receipt.Stay)

	ignored := int64(99999)
	receipt, err = l.Append(ctx, ledger.AppendRequest{Movement: model.MovementExit, VehicleID: 9, Timestamp: at(7, 1, 0), StayDuration: &ignored})
	require.NoError(t, err)
	require.NotNil(t, receipt.Stay)
	assert.EqualValues(t, 60, receipt.Stay.Seconds)
	assert.EqualValues(t, 60, *receipt.Event.StayDuration)

	_, err = l.Append(ctx, ledger.AppendRequest{Movement: "Parada", VehicleID: 9})
	var verr *ledger.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestLedger_DefaultTimestampIsNow(t *testing.T) {
	l, _, _ := newLedger(t)

	entry, err := l.AppendEntry(context.Background(), 12, nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, at(12, 0, 0).Equal(entry.Timestamp))
	assert.Equal(t, time.UTC, entry.Timestamp.Location())
}

func TestLedger_InvalidVehicleID(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	_, err := l.IsOpen(ctx, 0)
	assert.Equal(t, ledger.CodeValidation, ledger.Code(err))
	_, err = l.AppendEntry(ctx, -3, nil, nil, nil)
	assert.Equal(t, ledger.CodeValidation, ledger.Code(err))
	_, err = l.CurrentStatus(ctx, 0)
	assert.Equal(t, ledger.CodeValidation, ledger.Code(err))
}

func TestLedger_RoundTrip(t *testing.T) {
	l, s, _ := newLedger(t)
	ctx := context.Background()

	door := "Puerta 2"
	stay := int64(30)
	created, err := l.AppendEntry(ctx, 21, at(6, 15, 30), &door, &stay)
	require.NoError(t, err)

	fetched, err := ledger.NewAdmin(s).Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, created.Movement, fetched.Movement)
	assert.True(t, created.Timestamp.Equal(fetched.Timestamp))
	assert.Equal(t, *created.Door, *fetched.Door)
	assert.Equal(t, *created.StayDuration, *fetched.StayDuration)
	assert.Equal(t, created.VehicleID, fetched.VehicleID)
}

func TestLedger_LatestEntryTieBreaksOnID(t *testing.T) {
	l, _, gormDB := newLedger(t)
	ctx := context.Background()

	// Two entries at the same instant can only come from an admin correction.
	ts := at(9, 0, 0)
	require.NoError(t, gormDB.Create(&model.AccessEvent{Movement: model.MovementEntry, Timestamp: *ts, VehicleID: 30}).Error)
	second := model.AccessEvent{Movement: model.MovementEntry, Timestamp: *ts, VehicleID: 30}
	require.NoError(t, gormDB.Create(&second).Error)
	require.NoError(t, gormDB.Create(&model.AccessEvent{Movement: model.MovementExit, Timestamp: *at(8, 0, 0), VehicleID: 30}).Error)

	entry, err := l.LatestEntry(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, second.ID, entry.ID)

	open, err := l.IsOpen(ctx, 30)
	require.NoError(t, err)
	assert.True(t, open)
}

func TestLedger_HistoryMostRecentFirst(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := l.AppendEntry(ctx, 40, at(8+i, 0, 0), nil, nil)
		require.NoError(t, err)
		_, _, err = l.AppendExit(ctx, 40, at(8+i, 30, 0), nil)
		require.NoError(t, err)
	}

	history, err := l.History(ctx, 40)
	require.NoError(t, err)
	require.Len(t, history, 8)
	for i := 1; i < len(history); i++ {
		assert.True(t, ledger.RecentFirst(history[i-1], history[i]))
	}

	status, err := l.CurrentStatus(ctx, 40)
	require.NoError(t, err)
	assert.Len(t, status.Recent, 5)
	assert.Equal(t, history[:5], status.Recent)
}

func TestLedger_CancelledContextWritesNothing(t *testing.T) {
	l, _, gormDB := newLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.AppendEntry(ctx, 50, nil, nil, nil)
	assert.Error(t, err)
	assert.Zero(t, countEvents(t, gormDB, 50))
}

func TestLedger_ConcurrentEntriesOneWins(t *testing.T) {
	l, _, gormDB := newLedger(t)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.AppendEntry(context.Background(), 60, nil, nil, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ledger.ErrDuplicateEntry):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, dup)
	assert.EqualValues(t, 1, countEvents(t, gormDB, 60))
}

// Random attempts against a few vehicles, with timestamps that may repeat
// or go backwards: the ledger's view of each vehicle must match the last
// successful movement, and failed attempts add no rows.
func TestLedger_OpenStateTracksLastSuccess(t *testing.T) {
	l, _, gormDB := newLedger(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	vehicles := []int64{101, 102, 103}
	open := map[int64]bool{}
	last := map[int64]time.Time{}
	rows := map[int64]int64{}
	clock := *at(6, 0, 0)

	for i := 0; i < 200; i++ {
		v := vehicles[rng.Intn(len(vehicles))]
		switch rng.Intn(5) {
		case 0:
			// same instant as the previous attempt
		case 1:
			clock = clock.Add(-time.Duration(rng.Intn(120)+1) * time.Second)
		default:
			clock = clock.Add(time.Duration(rng.Intn(90)+1) * time.Second)
		}
		ts := clock
		backwards := ts.Before(last[v])

		if rng.Intn(2) == 0 {
			_, err := l.AppendEntry(ctx, v, &ts, nil, nil)
			switch {
			case open[v]:
				require.ErrorIs(t, err, ledger.ErrDuplicateEntry)
			case backwards:
				require.Equal(t, ledger.CodeValidation, ledger.Code(err), "step %d", i)
			default:
				require.NoError(t, err, "step %d", i)
				open[v] = true
				last[v] = ts
				rows[v]++
			}
		} else {
			_, _, err := l.AppendExit(ctx, v, &ts, nil)
			switch {
			case !open[v]:
				require.ErrorIs(t, err, ledger.ErrNoOpenEntry)
			case backwards:
				require.ErrorIs(t, err, ledger.ErrNegativeDuration, "step %d", i)
			default:
				require.NoError(t, err, "step %d", i)
				open[v] = false
				last[v] = ts
				rows[v]++
			}
		}

		got, err := l.IsOpen(ctx, v)
		require.NoError(t, err)
		require.Equal(t, open[v], got, "vehicle %d after step %d", v, i)
		require.Equal(t, rows[v], countEvents(t, gormDB, v))

		history, err := l.History(ctx, v)
		require.NoError(t, err)
		require.Equal(t, open[v], ledger.OpenAfter(history))
	}
}

func TestLedger_BackdatedEntryIsRejected(t *testing.T) {
	l, _, gormDB := newLedger(t)
	ctx := context.Background()

	_, err := l.AppendEntry(ctx, 9, at(8, 0, 0), nil, nil)
	require.NoError(t, err)
	_, _, err = l.AppendExit(ctx, 9, at(10, 0, 0), nil)
	require.NoError(t, err)

	_, err = l.AppendEntry(ctx, 9, at(9, 0, 0), nil, nil)
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "fecha_hora", verr.Field)
	assert.EqualValues(t, 2, countEvents(t, gormDB, 9))

	open, err := l.IsOpen(ctx, 9)
	require.NoError(t, err)
	assert.False(t, open)

	// The same instant as the exit is accepted; the id breaks the tie.
	_, err = l.AppendEntry(ctx, 9, at(10, 0, 0), nil, nil)
	require.NoError(t, err)
	open, err = l.IsOpen(ctx, 9)
	require.NoError(t, err)
	assert.True(t, open)

	_, stay, err := l.AppendExit(ctx, 9, at(10, 0, 0), nil)
	require.NoError(t, err)
	assert.Zero(t, stay.Seconds)
}

func TestLedger_TimestampsKeepMicroseconds(t *testing.T) {
	l, s, _ := newLedger(t)
	ctx := context.Background()

	in := day.Add(8*time.Hour + 999999600*time.Nanosecond)
	out := day.Add(8*time.Hour + 999999800*time.Nanosecond)

	entry, err := l.AppendEntry(ctx, 14, &in, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 999999000, entry.Timestamp.Nanosecond())

	exit, stay, err := l.AppendExit(ctx, 14, &out, nil)
	require.NoError(t, err)
	assert.Zero(t, stay.Seconds)

	fetched, err := ledger.NewAdmin(s).Get(ctx, exit.ID)
	require.NoError(t, err)
	assert.True(t, exit.Timestamp.Equal(fetched.Timestamp))
}
