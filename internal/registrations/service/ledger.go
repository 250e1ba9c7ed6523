package registrations

import (
	"context"
	"fmt"
	"time"

	"ms-perfiles/internal/models"
)

type EventDBLayer interface {
	CountFor(ctx context.Context, key models.CombinationKey) (int, error)
	LastEventFor(ctx context.Context, key models.CombinationKey) (*models.RegistrationEvent, error)
	AppendIfBelow(ctx context.Context, event *models.RegistrationEvent, ceiling int) (bool, int, error)
	HistoryBySerial(ctx context.Context, serial string) ([]models.RegistrationEvent, error)
	ListLatestBySerial(ctx context.Context, offset, limit int) ([]models.SerialRow, error)
	CountSerials(ctx context.Context) (int, error)
	Stats(ctx context.Context, ceiling int) (*models.GeneralStats, error)
	GetByID(ctx context.Context, id int64) (*models.RegistrationEvent, error)
	UpdateEvent(ctx context.Context, event *models.RegistrationEvent) error
	DeleteEvent(ctx context.Context, id int64) error
}

// Ledger appends registration events while holding every combination at or
// below models.RegistrationCeiling.
type Ledger struct {
	DB EventDBLayer
}

func NewLedger(db EventDBLayer) *Ledger {
	return &Ledger{DB: db}
}

func (l *Ledger) CountFor(ctx context.Context, key models.CombinationKey) (int, error) {
	count, err := l.DB.CountFor(ctx, key)
	if err != nil {
		return 0, storeUnavailable("count combination", err)
	}
	return count, nil
}

// LastEventFor returns nil when the combination has no events.
func (l *Ledger) LastEventFor(ctx context.Context, key models.CombinationKey) (*models.RegistrationEvent, error) {
	event, err := l.DB.LastEventFor(ctx, key)
	if err != nil {
		return nil, storeUnavailable("last event", err)
	}
	return event, nil
}

// Append records one event for key or fails with *LimitReachedError when the
// combination is full. The returned count includes the new event.
func (l *Ledger) Append(ctx context.Context, key models.CombinationKey, employeeName string, date time.Time) (*models.RegistrationEvent, int, error) {
	event := &models.RegistrationEvent{
		Serial:       key.Serial,
		Model:        key.Model,
		Side:         key.Side,
		RegisteredOn: models.DateOnly(date),
		EmployeeName: employeeName,
	}

	appended, count, err := l.DB.AppendIfBelow(ctx, event, models.RegistrationCeiling)
	if err != nil {
		return nil, 0, storeUnavailable(fmt.Sprintf("append %s", key), err)
	}
	if !appended {
		return nil, count, &LimitReachedError{Key: key, CurrentCount: count, Ceiling: models.RegistrationCeiling}
	}
	return event, count, nil
}
