package registrations

import (
	"context"
	"fmt"
	"strings"

	"ms-perfiles/internal/logger"
	"ms-perfiles/internal/models"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type Reporting struct {
	DB     EventDBLayer
	Logger *logger.Logger
}

func NewReporting(db EventDBLayer, log *logger.Logger) *Reporting {
	return &Reporting{DB: db, Logger: log}
}

func (r *Reporting) GetCombinationCount(ctx context.Context, serial, model, side string) (*models.CombinationCount, error) {
	key := models.NormalizeKey(serial, model, side)
	if err := validateKey(key); err != nil {
		return nil, err
	}

	count, err := r.DB.CountFor(ctx, key)
	if err != nil {
		return nil, r.fail("count combination", err)
	}
	last, err := r.DB.LastEventFor(ctx, key)
	if err != nil {
		return nil, r.fail("last event", err)
	}

	return &models.CombinationCount{
		CombinationKey: key,
		Count:          count,
		Ceiling:        models.RegistrationCeiling,
		CanRegister:    count < models.RegistrationCeiling,
		Last:           last.Last(),
	}, nil
}

// GetCombinationHistory lists every event of serial, most recent first.
func (r *Reporting) GetCombinationHistory(ctx context.Context, serial string) ([]models.EventView, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, &ValidationError{Field: "serial", Message: "is required"}
	}

	events, err := r.DB.HistoryBySerial(ctx, serial)
	if err != nil {
		return nil, r.fail("serial history", err)
	}

	views := make([]models.EventView, 0, len(events))
	for i := range events {
		views = append(views, events[i].View())
	}
	return views, nil
}

// ListBySerial pages through serials in ascending order. page is raised to
// 1 and pageSize clamped to [1, MaxPageSize]; zero pageSize means
// DefaultPageSize.
func (r *Reporting) ListBySerial(ctx context.Context, page, pageSize int) (*models.SerialPage, error) {
	page, pageSize = clampPage(page, pageSize)

	total, err := r.DB.CountSerials(ctx)
	if err != nil {
		return nil, r.fail("count serials", err)
	}
	rows, err := r.DB.ListLatestBySerial(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, r.fail("list serials", err)
	}

	return &models.SerialPage{
		Rows: rows,
		Pagination: models.Pagination{
			Page:     page,
			PageSize: pageSize,
			Total:    total,
			Pages:    (total + pageSize - 1) / pageSize,
		},
	}, nil
}

func (r *Reporting) GetStatsGeneral(ctx context.Context) (*models.GeneralStats, error) {
	stats, err := r.DB.Stats(ctx, models.RegistrationCeiling)
	if err != nil {
		return nil, r.fail("general stats", err)
	}
	return stats, nil
}

// Models returns the fixed product model catalogue offered to operators.
func (r *Reporting) Models() []string {
	out := make([]string, len(models.ProductModels))
	copy(out, models.ProductModels)
	return out
}

func (r *Reporting) fail(op string, err error) error {
	r.Logger.Error("REPORTING", fmt.Sprintf("%s: %v", op, err))
	return storeUnavailable(op, err)
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}
