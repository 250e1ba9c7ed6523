package models

import (
	"github.com/uptrace/bun"
)

// Credential is owned by the credential store. The service only reads it.
type Credential struct {
	bun.BaseModel `bun:"table:credentials"`

	ID             int64  `bun:"id,pk,autoincrement"`
	DisplayName    string `bun:"display_name,notnull"`
	EmployeeNumber string `bun:"employee_number,notnull,unique"`
	LoginAlias     string `bun:"login_alias,nullzero,unique"`
	PasswordHash   string `bun:"password_hash,notnull"`
}

// EmployeeLookup answers whether a raw badge or typed number resolves to a
// known operator.
type EmployeeLookup struct {
	Found         bool   `json:"found"`
	NormalizedKey string `json:"normalized"`
	DisplayName   string `json:"display_name,omitempty"`
}
