package models

import "time"

// SerialRow is one line of the serial listing: the most recent event of a
// serial plus counts at two granularities. CombinationCount is scoped to the
// (serial, model, side) of that event; SerialCount covers every event of the
// serial.
type SerialRow struct {
	ID               int64     `bun:"id" json:"id"`
	Serial           string    `bun:"serial" json:"serial"`
	Model            string    `bun:"model" json:"model"`
	Side             Side      `bun:"side" json:"side"`
	RegisteredOn     time.Time `bun:"registered_on" json:"-"`
	Date             string    `bun:"-" json:"registered_on"`
	EmployeeName     string    `bun:"employee_name" json:"employee_name"`
	CombinationCount int       `bun:"combination_count" json:"count"`
	SerialCount      int       `bun:"serial_count" json:"serial_count"`
}

type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"limit"`
	Total    int `json:"total"`
	Pages    int `json:"pages"`
}

type SerialPage struct {
	Rows       []SerialRow `json:"rows"`
	Pagination Pagination  `json:"pagination"`
}

type GeneralStats struct {
	TotalCombinations    int `bun:"total_combinations" json:"total_combinations"`
	TotalEvents          int `bun:"total_events" json:"total_events"`
	ActiveCombinations   int `bun:"active_combinations" json:"active_combinations"`
	InactiveCombinations int `bun:"inactive_combinations" json:"inactive_combinations"`
}
