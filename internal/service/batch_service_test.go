package service_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"roastkit/internal/dto"
	"roastkit/internal/model"
	"roastkit/internal/repository"
	"roastkit/internal/service"
	"roastkit/internal/testdb"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ── Helpers ──────────────────────────────────────────────────────────────────

type fakeStore struct {
	mu    sync.Mutex
	err   error
	keys  []string
	onPut func()
}

func (f *fakeStore) Put(_ context.Context, key, _ string, _ []byte) (string, error) {
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return "", f.err
	}
	f.keys = append(f.keys, key)
	hook := f.onPut
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return "https://cdn.test/" + key, nil
}

type roastery struct {
	db        *gorm.DB
	batches   service.BatchService
	inventory service.InventoryService
	telemetry service.TelemetryService
	store     *fakeStore
}

func newRoastery(t *testing.T) *roastery {
	t.Helper()
	db := testdb.Open(t)
	store := &fakeStore{}
	batchRepo := repository.NewBatchRepository(db)
	varietyRepo := repository.NewVarietyRepository(db)
	movementRepo := repository.NewStockMovementRepository(db)
	return &roastery{
		db:        db,
		batches:   service.NewBatchService(batchRepo, varietyRepo, movementRepo, store, nil),
		inventory: service.NewInventoryService(varietyRepo, movementRepo, store),
		telemetry: service.NewTelemetryService(repository.NewRoastLogRepository(db), batchRepo),
		store:     store,
	}
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func startReq(varietyID uuid.UUID, grams int) dto.StartBatchRequest {
	return dto.StartBatchRequest{BeanVarietyID: varietyID.String(), InitialWeight: grams}
}

func countMovements(t *testing.T, db *gorm.DB, varietyID uuid.UUID, kind model.MovementKind) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.StockMovement{}).
		Where("bean_variety_id = ? AND kind = ?", varietyID, kind).Count(&n).Error)
	return n
}

// ── Tests: Yield ─────────────────────────────────────────────────────────────

func TestYield_Rounding(t *testing.T) {
	cases := map[int]int{3000: 2100, 1: 1, 2: 1, 5: 4, 15: 11, 1001: 701, 1005: 704}
	for grams, want := range cases {
		assert.Equal(t, want, service.Yield(grams), "yield of %d g", grams)
	}
}

// ── Tests: Full roast ────────────────────────────────────────────────────────

func TestRoast_FullCycle(t *testing.T) {
	r := newRoastery(t)
	ctx := context.Background()
	roaster := testdb.SeedUser(t, r.db, "maria", model.RoleRoaster)
	v := testdb.SeedVariety(t, r.db, "Ethiopia Guji", 3000, 0)

	started, err := r.batches.Start(ctx, roaster.ID, startReq(v.ID, 3000))
	require.NoError(t, err)
	assert.Equal(t, "in_progress", started.State)
	assert.Equal(t, 2100, started.EstimatedYield)
	assert.Equal(t, 1, started.BatchNumber)
	assert.Nil(t, started.Result)
	assert.Equal(t, 0, testdb.Reload(t, r.db, v.ID).StockGreen)

	batchID := uuid.MustParse(started.ID)
	for i, temp := range []float64{180, 150, 165, 190, 205} {
		_, err := r.telemetry.Append(ctx, batchID, dto.LogEntryRequest{
			TimeIndex:    intPtr(i * 60),
			Temperature:  floatPtr(temp),
			Airflow:      50,
			IsFirstCrack: i == 3,
		})
		require.NoError(t, err)
	}

	finished, err := r.batches.Finish(ctx, batchID, dto.FinishBatchRequest{FinalTime: "12:30", FinalTemp: 208})
	require.NoError(t, err)
	assert.Equal(t, "finished", finished.State)
	require.NotNil(t, finished.Result)
	assert.Equal(t, 2100, finished.Result.ActualYield)
	assert.Equal(t, "12:30", finished.Result.FinalTime)
	assert.Equal(t, 208, finished.Result.FinalTemp)
	assert.Len(t, finished.Logs, 5)
	require.NotNil(t, finished.FirstCrack)
	assert.Equal(t, 180, finished.FirstCrack.TimeIndex)

	after := testdb.Reload(t, r.db, v.ID)
	assert.Equal(t, 0, after.StockGreen)
	assert.Equal(t, 2100, after.StockRoasted)
	assert.Equal(t, int64(1), countMovements(t, r.db, v.ID, model.MovementRoastDebit))
	assert.Equal(t, int64(1), countMovements(t, r.db, v.ID, model.MovementRoastYield))
}

// ── Tests: Start ─────────────────────────────────────────────────────────────

func TestStart_InsufficientStock_LeavesStockUntouched(t *testing.T) {
	r := newRoastery(t)
	roaster := testdb.SeedUser(t, r.db, "maria", model.RoleRoaster)
	v := testdb.SeedVariety(t, r.db, "Kenya AA", 1000, 0)

	_, err := r.batches.Start(context.Background(), roaster.ID, startReq(v.ID, 1500))
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrInsufficientStock)

	var stockErr *service.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 1000, stockErr.Available)
	assert.Equal(t, 1500, stockErr.Requested)

	assert.Equal(t, 1000, testdb.Reload(t, r.db, v.ID).StockGreen)
	var batches int64
	r.db.Model(&model.RoastBatch{}).Count(&batches)
	assert.Zero(t, batches)
}

func TestStart_InvalidWeight(t *testing.T) {
	r := newRoastery(t)
	roaster := testdb.SeedUser(t, r.db, "maria", model.RoleRoaster)
	v := testdb.SeedVariety(t, r.db, "Kenya AA", 1000, 0)

	for _, grams := range []int{0, -10, service.MaxGrams + 1} {
		_, err := r.batches.Start(context.Background(), roaster.ID, startReq(v.ID, grams))
		assert.ErrorIs(t, err, service.ErrInvalidWeight)
	}
	assert.Equal(t, 1000, testdb.Reload(t, r.db, v.ID).StockGreen)
}

func TestStart_UnknownVariety(t *testing.T) {
	r := newRoastery(t)
	roaster := testdb.SeedUser(t, r.db, "maria", model.RoleRoaster)

	_, err := r.batches.Start(context.Background(), roaster.ID, startReq(uuid.New(), 100))
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestStart_SecondBatchWhileRoasting(t *testing.T) {
	r := newRoastery(t)
	ctx := context.Background()
	roaster := testdb.SeedUser(t, r.db, "maria", model.RoleRoaster)
	v := testdb.SeedVariety(t, r.db, "Brazil Cerrado", 5000, 0)

	_, err := r.batches.Start(ctx, roaster.ID, startReq(v.ID, 1000))
	require.NoError(t, err)

	_, err = r.batches.Start(ctx, roaster.ID, startReq(v.ID, 1000))
	assert.ErrorIs(t, err, service.ErrRoastInProgress)
	assert.Equal(t, 4000, testdb.Reload(t, r.db, v.ID).StockGreen)
}

func TestStart_NumbersBatchesPerRoasterAndDay(t *testing.T) {
	r := newRoastery(t)
	ctx := context.Background()
	roaster := testdb.SeedUser(t, r.db, "maria", model.RoleRoaster)
	v := testdb.SeedVariety(t, r.db, "Brazil Cerrado", 5000, 0)

	first, err := r.batches.Start(ctx, roaster.ID, startReq(v.ID, 1000))
	require.NoError(t, err)
	_, err = r.batches.Finish(ctx, uuid.MustParse(first.ID), dto.FinishBatchRequest{FinalTime: "10:00", FinalTemp: 200})
	require.NoError(t, err)

	second, err := r.batches.Start(ctx, roaster.ID, startReq(v.ID, 1000))
	require.NoError(t, err)
	assert.Equal(t, 2, second.BatchNumber)
}

func TestStart_ExplicitBatchNumber(t *testing.T) {
	r := newRoastery(t)
	roaster := testdb.SeedUser(t, r.db, "maria", model.RoleRoaster)
	v := testdb.SeedVariety(t, r.db, "Brazil Cerrado", 5000, 0)

	req := startReq(v.ID, 1000)
	req.BatchNumber = intPtr(42)
	resp, err := r.batches.Start(context.Background(), roaster.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 42, resp.BatchNumber)
}

func TestStart_ConcurrentStartsNeverOverdraw(t *testing.T) {
	r := newRoastery(t)
	ctx := context.Background()
	v := testdb.SeedVariety(t, r.db, "Colombia Huila", 5000, 0)

	const workers = 8
	roasters := make([]*model.User, workers)
	for i := range roasters {
		roasters[i] = testdb.SeedUser(t, r.db, "roaster"+uuid.NewString()[:8], model.RoleRoaster)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(roasterID uuid.UUID) {
			defer wg.Done()
			_, err := r.batches.Start(ctx, roasterID, startReq(v.ID, 1000))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, service.ErrInsufficientStock)
		}(roasters[i].ID)
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 0, testdb.Reload(t, r.db, v.ID).StockGreen)
}

// ── Tests: Finish ────────────────────────────────────────────────────────────

func TestFinish_Twice_CreditsOnce(t *testing.T) {
	r := newRoastery(t)
	ctx := context.Background()
	roaster := testdb.SeedUser(t, r.db, "maria", model.RoleRoaster)
	v := testdb.SeedVariety(t, r.db, "Guatemala Antigua", 2000, 0)

	started, err := r.batches.Start(ctx, roaster.ID, startReq(v.ID, 2000))
	require.NoError(t, err)
	id := uuid.MustParse(started.ID)

	_, err = r.batches.Finish(ctx, id, dto.FinishBatchRequest{FinalTime: "11:00", FinalTemp: 205})
	require.NoError(t, err)
	_, err = r.batches.Finish(ctx, id, dto.FinishBatchRequest{FinalTime: "11:30", FinalTemp: 210})
	assert.ErrorIs(t, err, service.ErrAlreadyFinished)

	after := testdb.Reload(t, r.db, v.ID)
	assert.Equal(t, 1400, after.StockRoasted)
	assert.Equal(t, int64(1), countMovements(t, r.db, v.ID, model.MovementRoastYield))

	got, err := r.batches.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "11:00", got.Result.FinalTime)
}

func TestFinish_InvalidFinalTime(t *testing.T) {
	r := newRoastery(t)
	ctx := context.Background()
	roaster := testdb.SeedUser(t, r.db, "maria", model.RoleRoaster)
	v := testdb.SeedVariety(t, r.db, "Guatemala Antigua", 2000, 0)
	started, err := r.batches.Start(ctx, roaster.ID, startReq(v.ID, 1000))
	require.NoError(t, err)

	for _, bad := range []string{"", "12", "12:60", "abc", "12:3"} {
		_, err := r.batches.Finish(ctx, uuid.MustParse(started.ID), dto.FinishBatchRequest{FinalTime: bad, FinalTemp: 200})
		assert.ErrorIs(t, err, service.ErrInvalidFinish, "final time %q", bad)
	}
	assert.Zero(t, testdb.Reload(t, r.db, v.ID).StockRoasted)
}

func TestFinish_UnknownBatch(t *testing.T) {
	r := newRoastery(t)
	_, err := r.batches.Finish(context.Background(), uuid.New(), dto.FinishBatchRequest{FinalTime: "10:00", FinalTemp: 200})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestFinishWithPhoto_StoresURL(t *testing.T) {
	r := newRoastery(t)
	ctx := context.Background()
	roaster := testdb.SeedUser(t, r.db, "maria", model.RoleRoaster)
	v := testdb.SeedVariety(t, r.db, "Peru Cajamarca", 2000, 0)
	started, err := r.batches.Start(ctx, roaster.ID, startReq(v.ID, 1000))
	require.NoError(t, err)

	photo := &service.Photo{Data: []byte("jpeg"), ContentType: "image/jpeg", Filename: "beans.JPG"}
	resp, err := r.batches.FinishWithPhoto(ctx, uuid.MustParse(started.ID), dto.FinishBatchRequest{FinalTime: "9:45", FinalTemp: 199}, photo)
	require.NoError(t, err)
	require.NotNil(t, resp.Result.ResultPhotoURL)
	assert.Contains(t, *resp.Result.ResultPhotoURL, started.ID)
	assert.Contains(t, *resp.Result.ResultPhotoURL, ".jpg")
	require.Len(t, r.store.keys, 1)
}

func TestFinishWithPhoto_UploadFailure_LeavesBatchInProgress(t *testing.T) {
	r := newRoastery(t)
	ctx := context.Background()
	roaster := testdb.SeedUser(t, r.db, "maria", model.RoleRoaster)
	v := testdb.SeedVariety(t, r.db, "Peru Cajamarca", 2000, 0)
	started, err := r.batches.Start(ctx, roaster.ID, startReq(v.ID, 1000))
	require.NoError(t, err)

	r.store.err = errors.New("bucket unavailable")
	photo := &service.Photo{Data: []byte("png"), ContentType: "image/png", Filename: "x.png"}
	_, err = r.batches.FinishWithPhoto(ctx, uuid.MustParse(started.ID), dto.FinishBatchRequest{FinalTime: "9:45", FinalTemp: 199}, photo)
	assert.ErrorIs(t, err, service.ErrUploadFailed)

	got, err := r.batches.Get(ctx, uuid.MustParse(started.ID))
	require.NoError(t, err)
	assert.Equal(t, "in_progress", got.State)
	assert.Zero(t, testdb.Reload(t, r.db, v.ID).StockRoasted)
}

func TestFinishWithPhoto_LosingRaceLogsOrphanedPhoto(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	r := newRoastery(t)
	ctx := context.Background()
	roaster := testdb.SeedUser(t, r.db, "maria", model.RoleRoaster)
	v := testdb.SeedVariety(t, r.db, "Peru Cajamarca", 2000, 0)
	started, err := r.batches.Start(ctx, roaster.ID, startReq(v.ID, 1000))
	require.NoError(t, err)
	id := uuid.MustParse(started.ID)

	// Another request finishes the batch while the photo is uploading
	r.store.onPut = func() {
		_, err := r.batches.Finish(ctx, id, dto.FinishBatchRequest{FinalTime: "9:40", FinalTemp: 198})
		require.NoError(t, err)
	}
	photo := &service.Photo{Data: []byte("jpeg"), ContentType: "image/jpeg", Filename: "beans.jpg"}
	_, err = r.batches.FinishWithPhoto(ctx, id, dto.FinishBatchRequest{FinalTime: "9:45", FinalTemp: 199}, photo)
	assert.ErrorIs(t, err, service.ErrAlreadyFinished)

	require.Len(t, r.store.keys, 1)
	assert.Contains(t, buf.String(), "photo orphaned")
	assert.Contains(t, buf.String(), r.store.keys[0])

	got, err := r.batches.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "9:40", got.Result.FinalTime)
	assert.Nil(t, got.Result.ResultPhotoURL)
	assert.Equal(t, 700, testdb.Reload(t, r.db, v.ID).StockRoasted)
}

func TestFinishWithPhoto_NoStoreConfigured(t *testing.T) {
	db := testdb.Open(t)
	svc := service.NewBatchService(
		repository.NewBatchRepository(db),
		repository.NewVarietyRepository(db),
		repository.NewStockMovementRepository(db),
		nil, nil,
	)
	ctx := context.Background()
	roaster := testdb.SeedUser(t, db, "maria", model.RoleRoaster)
	v := testdb.SeedVariety(t, db, "Peru Cajamarca", 2000, 0)
	started, err := svc.Start(ctx, roaster.ID, startReq(v.ID, 1000))
	require.NoError(t, err)

	_, err = svc.FinishWithPhoto(ctx, uuid.MustParse(started.ID), dto.FinishBatchRequest{FinalTime: "9:45", FinalTemp: 199},
		&service.Photo{Data: []byte("x"), Filename: "x.jpg"})
	assert.ErrorIs(t, err, service.ErrUploadFailed)
}

// ── Tests: Active / List ─────────────────────────────────────────────────────

func TestFindActive(t *testing.T) {
	r := newRoastery(t)
	ctx := context.Background()
	roaster := testdb.SeedUser(t, r.db, "maria", model.RoleRoaster)
	v := testdb.SeedVariety(t, r.db, "Rwanda Nyamasheke", 2000, 0)

	none, err := r.batches.FindActive(ctx, roaster.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	started, err := r.batches.Start(ctx, roaster.ID, startReq(v.ID, 500))
	require.NoError(t, err)
	active, err := r.batches.FindActive(ctx, roaster.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, started.ID, active.ID)

	_, err = r.batches.Finish(ctx, uuid.MustParse(started.ID), dto.FinishBatchRequest{FinalTime: "8:00", FinalTemp: 196})
	require.NoError(t, err)
	active, err = r.batches.FindActive(ctx, roaster.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	all, err := r.batches.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].BeanVariety)
	assert.Equal(t, "Rwanda Nyamasheke", all[0].BeanVariety.Name)
}

// ── Tests: QC ────────────────────────────────────────────────────────────────

func TestRecordQC(t *testing.T) {
	r := newRoastery(t)
	ctx := context.Background()
	roaster := testdb.SeedUser(t, r.db, "maria", model.RoleRoaster)
	v := testdb.SeedVariety(t, r.db, "Panama Geisha", 2000, 0)
	started, err := r.batches.Start(ctx, roaster.ID, startReq(v.ID, 1000))
	require.NoError(t, err)
	id := uuid.MustParse(started.ID)

	resp, err := r.batches.RecordQC(ctx, id, dto.QCRequest{CuppingScore: intPtr(88), SensoryNotes: "jasmine, bergamot", IsApproved: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, 88, *resp.QC.CuppingScore)
	assert.Equal(t, "jasmine, bergamot", *resp.QC.SensoryNotes)
	assert.True(t, *resp.QC.IsApproved)
	assert.Equal(t, "in_progress", resp.State)

	resp, err = r.batches.RecordQC(ctx, id, dto.QCRequest{CuppingScore: intPtr(79), IsApproved: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, 79, *resp.QC.CuppingScore)
	assert.False(t, *resp.QC.IsApproved)
	assert.Equal(t, 1000, testdb.Reload(t, r.db, v.ID).StockGreen)
}

func TestRecordQC_ScoreOutOfRange(t *testing.T) {
	r := newRoastery(t)
	ctx := context.Background()
	roaster := testdb.SeedUser(t, r.db, "maria", model.RoleRoaster)
	v := testdb.SeedVariety(t, r.db, "Panama Geisha", 2000, 0)
	started, err := r.batches.Start(ctx, roaster.ID, startReq(v.ID, 1000))
	require.NoError(t, err)

	for _, score := range []int{-1, 101} {
		_, err := r.batches.RecordQC(ctx, uuid.MustParse(started.ID), dto.QCRequest{CuppingScore: intPtr(score), IsApproved: boolPtr(true)})
		assert.ErrorIs(t, err, service.ErrInvalidScore)
	}
}

func TestRecordQC_UnknownBatch(t *testing.T) {
	r := newRoastery(t)
	_, err := r.batches.RecordQC(context.Background(), uuid.New(), dto.QCRequest{CuppingScore: intPtr(80), IsApproved: boolPtr(true)})
	assert.ErrorIs(t, err, service.ErrNotFound)
}
