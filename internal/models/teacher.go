package models

import (
	"database/sql"
	"time"
)

type Teacher struct {
	ID        int64          `db:"id" json:"id"`
	Name      string         `db:"name" json:"name" validate:"required,max=200"`
	Email     sql.NullString `db:"email" json:"-"`
	TenantID  string         `db:"tenant_id" json:"-"`
	CreatedAt time.Time      `db:"created_at" json:"-"`
	UpdatedAt time.Time      `db:"updated_at" json:"-"`
}

func (t *Teacher) Validate() error {
	return Validator().Struct(t)
}
