package registrations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"ms-perfiles/internal/logger"
	"ms-perfiles/internal/models"
	"ms-perfiles/internal/registrations/db"
)

// UpdateEventRequest replaces the descriptive fields of an event. It is an
// administrative correction and bypasses authentication and the ceiling.
type UpdateEventRequest struct {
	Serial       string `json:"serial"`
	Model        string `json:"model"`
	Side         string `json:"side"`
	EmployeeName string `json:"employee_name"`
}

// Admin exposes record maintenance outside the registration protocol.
type Admin struct {
	DB     EventDBLayer
	Logger *logger.Logger
}

func NewAdmin(db EventDBLayer, log *logger.Logger) *Admin {
	return &Admin{DB: db, Logger: log}
}

func (a *Admin) GetEvent(ctx context.Context, id int64) (*models.EventView, error) {
	event, err := a.DB.GetByID(ctx, id)
	if err != nil {
		return nil, a.fail("get event", id, err)
	}
	view := event.View()
	return &view, nil
}

func (a *Admin) UpdateEvent(ctx context.Context, id int64, req UpdateEventRequest) (*models.EventView, error) {
	key := models.NormalizeKey(req.Serial, req.Model, req.Side)
	if err := validateKey(key); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.EmployeeName)
	if name == "" {
		return nil, &ValidationError{Field: "employee_name", Message: "is required"}
	}
	if utf8.RuneCountInString(name) > models.MaxEmployeeNameLength {
		return nil, &ValidationError{Field: "employee_name", Message: fmt.Sprintf("must be at most %d characters", models.MaxEmployeeNameLength)}
	}

	event, err := a.DB.GetByID(ctx, id)
	if err != nil {
		return nil, a.fail("get event", id, err)
	}
	event.Serial = key.Serial
	event.Model = key.Model
	event.Side = key.Side
	event.EmployeeName = name

	if err := a.DB.UpdateEvent(ctx, event); err != nil {
		return nil, a.fail("update event", id, err)
	}
	a.Logger.LogRegistration("UPDATED", key.String(), fmt.Sprintf("event %d", id))

	view := event.View()
	return &view, nil
}

func (a *Admin) DeleteEvent(ctx context.Context, id int64) error {
	if err := a.DB.DeleteEvent(ctx, id); err != nil {
		return a.fail("delete event", id, err)
	}
	a.Logger.LogRegistration("DELETED", fmt.Sprintf("event %d", id), "removed by administrator")
	return nil
}

func (a *Admin) fail(op string, id int64, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return &EventNotFoundError{ID: id}
	}
	a.Logger.Error("ADMIN", fmt.Sprintf("%s %d: %v", op, id, err))
	return storeUnavailable(op, err)
}
