package service_test

import (
	"context"
	"math"
	"testing"

	"roastkit/internal/dto"
	"roastkit/internal/model"
	"roastkit/internal/service"
	"roastkit/internal/testdb"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedBatch(t *testing.T, r *roastery) uuid.UUID {
	t.Helper()
	roaster := testdb.SeedUser(t, r.db, "roaster-"+uuid.NewString()[:8], model.RoleRoaster)
	v := testdb.SeedVariety(t, r.db, "Nicaragua Jinotega", 5000, 0)
	resp, err := r.batches.Start(context.Background(), roaster.ID, startReq(v.ID, 1000))
	require.NoError(t, err)
	return uuid.MustParse(resp.ID)
}

func TestTelemetry_OrderedByTimeIndex(t *testing.T) {
	r := newRoastery(t)
	ctx := context.Background()
	id := startedBatch(t, r)

	for _, ti := range []int{120, 0, 60, 240, 180} {
		_, err := r.telemetry.Append(ctx, id, dto.LogEntryRequest{TimeIndex: intPtr(ti), Temperature: floatPtr(150 + float64(ti)/10), Airflow: 25})
		require.NoError(t, err)
	}

	resp, err := r.telemetry.List(ctx, id)
	require.NoError(t, err)
	require.Len(t, resp.Logs, 5)
	for i, want := range []int{0, 60, 120, 180, 240} {
		assert.Equal(t, want, resp.Logs[i].TimeIndex)
	}
	assert.Nil(t, resp.FirstCrack)
}

func TestTelemetry_FirstCrackIsEarliestFlagged(t *testing.T) {
	r := newRoastery(t)
	ctx := context.Background()
	id := startedBatch(t, r)

	_, err := r.telemetry.Append(ctx, id, dto.LogEntryRequest{TimeIndex: intPtr(540), Temperature: floatPtr(199), IsFirstCrack: true})
	require.NoError(t, err)
	_, err = r.telemetry.Append(ctx, id, dto.LogEntryRequest{TimeIndex: intPtr(480), Temperature: floatPtr(196), IsFirstCrack: true})
	require.NoError(t, err)

	resp, err := r.telemetry.List(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, resp.FirstCrack)
	assert.Equal(t, 480, resp.FirstCrack.TimeIndex)
}

func TestTelemetry_InvalidReadings(t *testing.T) {
	r := newRoastery(t)
	id := startedBatch(t, r)

	bad := []dto.LogEntryRequest{
		{TimeIndex: nil, Temperature: floatPtr(180)},
		{TimeIndex: intPtr(-1), Temperature: floatPtr(180)},
		{TimeIndex: intPtr(10), Temperature: nil},
		{TimeIndex: intPtr(10), Temperature: floatPtr(math.NaN())},
		{TimeIndex: intPtr(10), Temperature: floatPtr(180), Airflow: 101},
		{TimeIndex: intPtr(10), Temperature: floatPtr(180), Airflow: -5},
	}
	for i, req := range bad {
		_, err := r.telemetry.Append(context.Background(), id, req)
		assert.ErrorIs(t, err, service.ErrInvalidReading, "case %d", i)
	}
}

func TestTelemetry_AcceptedAfterFinish(t *testing.T) {
	r := newRoastery(t)
	ctx := context.Background()
	id := startedBatch(t, r)
	_, err := r.batches.Finish(ctx, id, dto.FinishBatchRequest{FinalTime: "10:00", FinalTemp: 201})
	require.NoError(t, err)

	_, err = r.telemetry.Append(ctx, id, dto.LogEntryRequest{TimeIndex: intPtr(700), Temperature: floatPtr(190)})
	require.NoError(t, err)

	got, err := r.telemetry.List(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, got.Logs)
	assert.Equal(t, 700, got.Logs[len(got.Logs)-1].TimeIndex)

	batch, err := r.batches.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "finished", batch.State)
	assert.Equal(t, 700, batch.Result.ActualYield)
}

func TestTelemetry_UnknownBatch(t *testing.T) {
	r := newRoastery(t)
	_, err := r.telemetry.Append(context.Background(), uuid.New(), dto.LogEntryRequest{TimeIndex: intPtr(0), Temperature: floatPtr(180)})
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = r.telemetry.List(context.Background(), uuid.New())
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestFirstCrack_Empty(t *testing.T) {
	assert.Nil(t, service.FirstCrack(nil))
	assert.Nil(t, service.FirstCrack([]model.RoastLog{{TimeIndex: 1}}))
}
