package service

import (
	"context"
	"errors"
	"regexp"
	"time"

	"roastkit/internal/dto"
	"roastkit/internal/infra"
	"roastkit/internal/model"
	"roastkit/internal/repository"
	"roastkit/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// YieldRatio is the share of green weight credited as roasted stock.
var YieldRatio = decimal.RequireFromString("0.7")

// Yield returns round(initialWeight × YieldRatio).
func Yield(initialWeight int) int {
	return int(decimal.NewFromInt(int64(initialWeight)).Mul(YieldRatio).Round(0).IntPart())
}

// finalTimePattern accepts elapsed roast times such as 9:05, 12:30 or 1:02:30.
var finalTimePattern = regexp.MustCompile(`^(\d{1,2}:)?\d{1,3}:[0-5]\d$`)

// BatchService drives a roast batch from start to finish and records its
// cupping evaluation.
type BatchService interface {
	Start(ctx context.Context, roasterID uuid.UUID, req dto.StartBatchRequest) (*dto.BatchResponse, error)
	Finish(ctx context.Context, id uuid.UUID, req dto.FinishBatchRequest) (*dto.BatchResponse, error)
	// FinishWithPhoto stores the result photo first; if that fails the batch
	// stays in progress.
	FinishWithPhoto(ctx context.Context, id uuid.UUID, req dto.FinishBatchRequest, photo *Photo) (*dto.BatchResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.BatchResponse, error)
	List(ctx context.Context) ([]dto.BatchResponse, error)
	// FindActive returns nil without error when the roaster has no batch in progress.
	FindActive(ctx context.Context, roasterID uuid.UUID) (*dto.BatchResponse, error)
	RecordQC(ctx context.Context, id uuid.UUID, req dto.QCRequest) (*dto.BatchResponse, error)
}

type batchService struct {
	batches    repository.BatchRepository
	varieties  repository.VarietyRepository
	movements  repository.StockMovementRepository
	store      infra.ObjectStore
	dispatcher *worker.Dispatcher
	now        func() time.Time
}

func NewBatchService(
	batches repository.BatchRepository,
	varieties repository.VarietyRepository,
	movements repository.StockMovementRepository,
	store infra.ObjectStore,
	dispatcher *worker.Dispatcher,
) BatchService {
	return &batchService{
		batches:    batches,
		varieties:  varieties,
		movements:  movements,
		store:      store,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// ── Start ────────────────────────────────────────────────────────────────────
// One transaction:
//   1. refuse if the roaster already has a batch in progress
//   2. conditional debit of green stock (never below zero)
//   3. assign the day's batch number when the client did not send one
//   4. insert the batch and the debit movement

func (s *batchService) Start(ctx context.Context, roasterID uuid.UUID, req dto.StartBatchRequest) (*dto.BatchResponse, error) {
	if req.InitialWeight <= 0 || req.InitialWeight > MaxGrams {
		return nil, ErrInvalidWeight
	}
	varietyID, err := uuid.Parse(req.BeanVarietyID)
	if err != nil {
		return nil, notFound("bean variety")
	}

	batch := &model.RoastBatch{
		BeanVarietyID:  varietyID,
		RoasterID:      roasterID,
		InitialWeight:  req.InitialWeight,
		EstimatedYield: Yield(req.InitialWeight),
		Density:        req.Density,
		TargetProfile:  req.TargetProfile,
		Status:         model.BatchInProgress,
	}

	err = runTx(ctx, s.batches.DB(), func(tx *gorm.DB) error {
		if _, err := s.batches.FindActiveByRoasterTx(tx, roasterID); err == nil {
			return ErrRoastInProgress
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		n, err := s.varieties.DebitGreenTx(tx, varietyID, req.InitialWeight)
		if err != nil {
			return err
		}
		v, err := s.varieties.FindByIDTx(tx, varietyID)
		if err != nil {
			return translateNotFound(err, "bean variety")
		}
		if n == 0 {
			return &InsufficientStockError{Available: v.StockGreen, Requested: req.InitialWeight}
		}

		if req.BatchNumber != nil {
			batch.BatchNumber = *req.BatchNumber
		} else {
			now := s.now()
			dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			if batch.BatchNumber, err = s.batches.NextBatchNumberTx(tx, roasterID, dayStart); err != nil {
				return err
			}
		}

		if err := s.batches.CreateTx(tx, batch); err != nil {
			switch {
			case errors.Is(err, gorm.ErrDuplicatedKey):
				return ErrRoastInProgress
			case errors.Is(err, gorm.ErrForeignKeyViolated):
				return notFound("roaster")
			}
			return err
		}

		return s.movements.CreateTx(tx, &model.StockMovement{
			BeanVarietyID: varietyID,
			Counter:       model.CounterGreen,
			Kind:          model.MovementRoastDebit,
			Delta:         -req.InitialWeight,
			BalanceAfter:  v.StockGreen,
			BatchID:       &batch.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("batch_id", batch.ID.String()).
		Str("variety_id", varietyID.String()).
		Str("roaster_id", roasterID.String()).
		Int("grams", req.InitialWeight).
		Msg("batch started")
	return s.Get(ctx, batch.ID)
}

// ── Finish ───────────────────────────────────────────────────────────────────
// The status flip is conditional on the batch still being in progress, so of
// two racing finishes only one credits roasted stock.

func (s *batchService) Finish(ctx context.Context, id uuid.UUID, req dto.FinishBatchRequest) (*dto.BatchResponse, error) {
	if _, err := s.finishable(ctx, id, req); err != nil {
		return nil, err
	}
	return s.finish(ctx, id, req)
}

func (s *batchService) FinishWithPhoto(ctx context.Context, id uuid.UUID, req dto.FinishBatchRequest, photo *Photo) (*dto.BatchResponse, error) {
	if _, err := s.finishable(ctx, id, req); err != nil {
		return nil, err
	}
	if photo == nil {
		return s.finish(ctx, id, req)
	}

	key := batchPhotoKey(id, photo, s.now())
	url, err := upload(ctx, s.store, key, photo)
	if err != nil {
		log.Warn().Err(err).Str("batch_id", id.String()).Msg("finish aborted")
		return nil, err
	}
	req.ResultPhotoURL = &url

	res, err := s.finish(ctx, id, req)
	if err != nil {
		// The object stays in the bucket with no batch pointing at it
		log.Warn().Err(err).
			Str("batch_id", id.String()).
			Str("object_key", key).
			Msg("finish failed after upload, photo orphaned")
		return nil, err
	}
	return res, nil
}

// finishable validates the request and rejects unknown or finished batches
// before anything is uploaded.
func (s *batchService) finishable(ctx context.Context, id uuid.UUID, req dto.FinishBatchRequest) (*model.RoastBatch, error) {
	if !finalTimePattern.MatchString(req.FinalTime) {
		return nil, ErrInvalidFinish
	}
	b, err := s.batches.FindByIDTx(s.batches.DB().WithContext(ctx), id)
	if err != nil {
		return nil, translateNotFound(err, "roast batch")
	}
	if b.IsFinished() {
		return nil, ErrAlreadyFinished
	}
	return b, nil
}

func (s *batchService) finish(ctx context.Context, id uuid.UUID, req dto.FinishBatchRequest) (*dto.BatchResponse, error) {
	var batch *model.RoastBatch
	err := runTx(ctx, s.batches.DB(), func(tx *gorm.DB) error {
		var err error
		if batch, err = s.batches.FindByIDTx(tx, id); err != nil {
			return translateNotFound(err, "roast batch")
		}
		yield := Yield(batch.InitialWeight)

		n, err := s.batches.FinishTx(tx, id, repository.FinishColumns{
			ActualYield:    yield,
			FinalTime:      req.FinalTime,
			FinalTemp:      req.FinalTemp,
			ResultPhotoURL: req.ResultPhotoURL,
		})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrAlreadyFinished
		}

		if n, err = s.varieties.CreditTx(tx, batch.BeanVarietyID, model.CounterRoasted, yield); err != nil {
			return err
		}
		if n == 0 {
			return notFound("bean variety")
		}
		v, err := s.varieties.FindByIDTx(tx, batch.BeanVarietyID)
		if err != nil {
			return err
		}
		return s.movements.CreateTx(tx, &model.StockMovement{
			BeanVarietyID: batch.BeanVarietyID,
			Counter:       model.CounterRoasted,
			Kind:          model.MovementRoastYield,
			Delta:         yield,
			BalanceAfter:  v.StockRoasted,
			BatchID:       &batch.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("batch_id", id.String()).
		Str("variety_id", batch.BeanVarietyID.String()).
		Int("grams", Yield(batch.InitialWeight)).
		Str("final_time", req.FinalTime).
		Msg("batch finished")

	// Report rendering is best-effort
	if s.dispatcher != nil {
		if err := s.dispatcher.EnqueueRoastReport(ctx, id); err != nil {
			log.Warn().Err(err).Str("batch_id", id.String()).Msg("roast report not queued")
		}
	}
	return s.Get(ctx, id)
}

func (s *batchService) Get(ctx context.Context, id uuid.UUID) (*dto.BatchResponse, error) {
	b, err := s.batches.FindByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err, "roast batch")
	}
	return batchToResponse(b), nil
}

func (s *batchService) List(ctx context.Context) ([]dto.BatchResponse, error) {
	batches, err := s.batches.List(ctx)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.BatchResponse, len(batches))
	for i := range batches {
		resp[i] = *batchToResponse(&batches[i])
	}
	return resp, nil
}

func (s *batchService) FindActive(ctx context.Context, roasterID uuid.UUID) (*dto.BatchResponse, error) {
	b, err := s.batches.FindActiveByRoaster(ctx, roasterID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return batchToResponse(b), nil
}

// RecordQC may run at any point after the batch was created and as often as
// needed; it never touches stock.
func (s *batchService) RecordQC(ctx context.Context, id uuid.UUID, req dto.QCRequest) (*dto.BatchResponse, error) {
	if req.CuppingScore == nil || *req.CuppingScore < 0 || *req.CuppingScore > 100 {
		return nil, ErrInvalidScore
	}
	approved := req.IsApproved != nil && *req.IsApproved

	n, err := s.batches.UpdateQC(ctx, id, repository.QCColumns{
		CuppingScore: *req.CuppingScore,
		SensoryNotes: req.SensoryNotes,
		IsApproved:   approved,
	})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, notFound("roast batch")
	}
	log.Info().Str("batch_id", id.String()).Int("score", *req.CuppingScore).Bool("approved", approved).Msg("qc recorded")
	return s.Get(ctx, id)
}
