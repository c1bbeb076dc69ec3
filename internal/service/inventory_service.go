package service

import (
	"context"
	"time"

	"roastkit/internal/dto"
	"roastkit/internal/infra"
	"roastkit/internal/model"
	"roastkit/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// InventoryService owns the two stock counters of every bean variety.
// Roasts debit and credit the same counters through BatchService.
type InventoryService interface {
	CreateVariety(ctx context.Context, req dto.CreateVarietyRequest, sack *Photo) (*dto.VarietyResponse, error)
	ListVarieties(ctx context.Context) ([]dto.VarietyResponse, error)
	GetVariety(ctx context.Context, id uuid.UUID) (*dto.VarietyResponse, error)
	UpdateVariety(ctx context.Context, id uuid.UUID, req dto.UpdateVarietyRequest) (*dto.VarietyResponse, error)
	Restock(ctx context.Context, id uuid.UUID, req dto.RestockRequest, sack *Photo) (*dto.VarietyResponse, error)
	DeleteVariety(ctx context.Context, id uuid.UUID) error
	ListMovements(ctx context.Context, id uuid.UUID, limit int) ([]dto.MovementResponse, error)
	LowStock(ctx context.Context, threshold int) ([]dto.VarietyResponse, error)
}

type inventoryService struct {
	varieties repository.VarietyRepository
	movements repository.StockMovementRepository
	store     infra.ObjectStore
	now       func() time.Time
}

func NewInventoryService(
	varieties repository.VarietyRepository,
	movements repository.StockMovementRepository,
	store infra.ObjectStore,
) InventoryService {
	return &inventoryService{varieties: varieties, movements: movements, store: store, now: time.Now}
}

// MaxGrams caps any single quantity entering the ledger (1000 tonnes).
const MaxGrams = 1_000_000_000

// ParseCounter maps a restock type to a counter. Empty means green.
func ParseCounter(s string) (model.StockCounter, error) {
	switch s {
	case "", "green", "GB":
		return model.CounterGreen, nil
	case "roasted", "RB":
		return model.CounterRoasted, nil
	}
	return "", ErrInvalidCounter
}

func (s *inventoryService) CreateVariety(ctx context.Context, req dto.CreateVarietyRequest, sack *Photo) (*dto.VarietyResponse, error) {
	if req.StockGreen < 0 || req.StockRoasted < 0 || req.StockGreen > MaxGrams || req.StockRoasted > MaxGrams {
		return nil, ErrInvalidAmount
	}
	v := &model.BeanVariety{Name: req.Name, StockGreen: req.StockGreen, StockRoasted: req.StockRoasted}

	err := runTx(ctx, s.varieties.DB(), func(tx *gorm.DB) error {
		if err := s.varieties.CreateTx(tx, v); err != nil {
			return err
		}
		// Opening balances go on the ledger like any restock
		for _, open := range []struct {
			counter model.StockCounter
			amount  int
		}{{model.CounterGreen, v.StockGreen}, {model.CounterRoasted, v.StockRoasted}} {
			if open.amount == 0 {
				continue
			}
			if err := s.movements.CreateTx(tx, &model.StockMovement{
				BeanVarietyID: v.ID,
				Counter:       open.counter,
				Kind:          model.MovementRestock,
				Delta:         open.amount,
				BalanceAfter:  open.amount,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("variety_id", v.ID.String()).Str("name", v.Name).Int("stock_green", v.StockGreen).Msg("variety created")

	s.attachSackPhoto(ctx, v, sack)
	return varietyToResponse(v), nil
}

// attachSackPhoto stores the sack photo and links it to the variety.
// Failures are logged and never fail the surrounding operation.
func (s *inventoryService) attachSackPhoto(ctx context.Context, v *model.BeanVariety, sack *Photo) {
	if sack == nil {
		return
	}
	url, err := upload(ctx, s.store, sackPhotoKey(v.ID, sack, s.now()), sack)
	if err != nil {
		log.Warn().Err(err).Str("variety_id", v.ID.String()).Msg("sack photo not stored")
		return
	}
	if err := s.varieties.SetSackPhoto(ctx, v.ID, url); err != nil {
		log.Warn().Err(err).Str("variety_id", v.ID.String()).Msg("sack photo stored but not linked")
		return
	}
	v.SackPhotoURL = &url
}

func (s *inventoryService) ListVarieties(ctx context.Context) ([]dto.VarietyResponse, error) {
	varieties, err := s.varieties.List(ctx)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.VarietyResponse, len(varieties))
	for i := range varieties {
		resp[i] = *varietyToResponse(&varieties[i])
	}
	return resp, nil
}

func (s *inventoryService) GetVariety(ctx context.Context, id uuid.UUID) (*dto.VarietyResponse, error) {
	v, err := s.varieties.FindByIDWithBatches(ctx, id)
	if err != nil {
		return nil, translateNotFound(err, "bean variety")
	}
	return varietyToResponse(v), nil
}

func (s *inventoryService) UpdateVariety(ctx context.Context, id uuid.UUID, req dto.UpdateVarietyRequest) (*dto.VarietyResponse, error) {
	n, err := s.varieties.UpdateName(ctx, id, req.Name)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, notFound("bean variety")
	}
	v, err := s.varieties.FindByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err, "bean variety")
	}
	return varietyToResponse(v), nil
}

func (s *inventoryService) Restock(ctx context.Context, id uuid.UUID, req dto.RestockRequest, sack *Photo) (*dto.VarietyResponse, error) {
	if req.Amount <= 0 || req.Amount > MaxGrams {
		return nil, ErrInvalidAmount
	}
	counter, err := ParseCounter(req.Type)
	if err != nil {
		return nil, err
	}

	var v *model.BeanVariety
	err = runTx(ctx, s.varieties.DB(), func(tx *gorm.DB) error {
		n, err := s.varieties.CreditTx(tx, id, counter, req.Amount)
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound("bean variety")
		}
		if v, err = s.varieties.FindByIDTx(tx, id); err != nil {
			return err
		}
		balance := v.StockGreen
		if counter == model.CounterRoasted {
			balance = v.StockRoasted
		}
		return s.movements.CreateTx(tx, &model.StockMovement{
			BeanVarietyID: id,
			Counter:       counter,
			Kind:          model.MovementRestock,
			Delta:         req.Amount,
			BalanceAfter:  balance,
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("variety_id", id.String()).Str("counter", string(counter)).Int("grams", req.Amount).Msg("variety restocked")

	s.attachSackPhoto(ctx, v, sack)
	return varietyToResponse(v), nil
}

func (s *inventoryService) DeleteVariety(ctx context.Context, id uuid.UUID) error {
	err := runTx(ctx, s.varieties.DB(), func(tx *gorm.DB) error {
		n, err := s.varieties.DeleteCascadeTx(tx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound("bean variety")
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("variety_id", id.String()).Msg("variety deleted")
	return nil
}

func (s *inventoryService) ListMovements(ctx context.Context, id uuid.UUID, limit int) ([]dto.MovementResponse, error) {
	if _, err := s.varieties.FindByID(ctx, id); err != nil {
		return nil, translateNotFound(err, "bean variety")
	}
	movements, err := s.movements.ListByVariety(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.MovementResponse, len(movements))
	for i := range movements {
		resp[i] = movementToResponse(&movements[i])
	}
	return resp, nil
}

func (s *inventoryService) LowStock(ctx context.Context, threshold int) ([]dto.VarietyResponse, error) {
	varieties, err := s.varieties.ListLowStock(ctx, threshold)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.VarietyResponse, len(varieties))
	for i := range varieties {
		resp[i] = *varietyToResponse(&varieties[i])
	}
	return resp, nil
}
