package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// RegistrationCeiling is the maximum number of registration events a single
// (serial, model, side) combination may accumulate.
const RegistrationCeiling = 60

// Column widths of registration_events, counted in characters.
const (
	MaxSerialLength       = 100
	MaxModelLength        = 100
	MaxEmployeeNameLength = 200
)

type Side string

const (
	SideTop Side = "TOP"
	SideBot Side = "BOT"
)

func (s Side) Valid() bool {
	return s == SideTop || s == SideBot
}

// CombinationKey is the unit of ceiling enforcement. It is derived from the
// event columns and never stored on its own.
type CombinationKey struct {
	Serial string `json:"serial"`
	Model  string `json:"model"`
	Side   Side   `json:"side"`
}

func (k CombinationKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Serial, k.Model, k.Side)
}

// RegistrationEvent is one row of the append-only ledger.
type RegistrationEvent struct {
	bun.BaseModel `bun:"table:registration_events"`

	ID           int64     `bun:"id,pk,autoincrement"`
	Serial       string    `bun:"serial,type:varchar(100),notnull"`
	Model        string    `bun:"model,type:varchar(100),notnull"`
	Side         Side      `bun:"side,type:varchar(3),notnull"`
	RegisteredOn time.Time `bun:"registered_on,notnull"`
	EmployeeName string    `bun:"employee_name,type:varchar(200),notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func (e *RegistrationEvent) Key() CombinationKey {
	return CombinationKey{Serial: e.Serial, Model: e.Model, Side: e.Side}
}

// DateOnly truncates t to its calendar date in t's location and returns it as
// midnight UTC so stored dates do not drift across time zones.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EventView is the wire representation of a RegistrationEvent.
type EventView struct {
	ID           int64  `json:"id"`
	Serial       string `json:"serial"`
	Model        string `json:"model"`
	Side         Side   `json:"side"`
	RegisteredOn string `json:"registered_on"`
	EmployeeName string `json:"employee_name"`
}

func (e *RegistrationEvent) View() EventView {
	return EventView{
		ID:           e.ID,
		Serial:       e.Serial,
		Model:        e.Model,
		Side:         e.Side,
		RegisteredOn: e.RegisteredOn.Format("2006-01-02"),
		EmployeeName: e.EmployeeName,
	}
}

// LastEvent is the date and attributed employee of the most recent event of a
// combination.
type LastEvent struct {
	RegisteredOn string `json:"registered_on"`
	EmployeeName string `json:"employee_name"`
}

func (e *RegistrationEvent) Last() *LastEvent {
	if e == nil {
		return nil
	}
	return &LastEvent{
		RegisteredOn: e.RegisteredOn.Format("2006-01-02"),
		EmployeeName: e.EmployeeName,
	}
}

// CombinationCount is recomputed on every read.
type CombinationCount struct {
	CombinationKey
	Count       int        `json:"count"`
	Ceiling     int        `json:"ceiling"`
	CanRegister bool       `json:"can_register"`
	Last        *LastEvent `json:"last,omitempty"`
}

// NormalizeKey trims surrounding whitespace from each part. Side is matched
// exactly afterwards; "top" is not a valid side.
func NormalizeKey(serial, model, side string) CombinationKey {
	return CombinationKey{
		Serial: strings.TrimSpace(serial),
		Model:  strings.TrimSpace(model),
		Side:   Side(strings.TrimSpace(side)),
	}
}
