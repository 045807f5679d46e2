package models

import (
	"database/sql"
	"time"
)

const DefaultMaxPoints = 100.0

type Assignment struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name" validate:"required,max=200"`
	TenantID    string         `db:"tenant_id" json:"-"`
	MaxPoints   float64        `db:"max_points" json:"max_points" validate:"gt=0"`
	Date        *time.Time     `db:"date" json:"date,omitempty"`
	Description sql.NullString `db:"description" json:"-"`
	CreatedAt   time.Time      `db:"created_at" json:"-"`
	UpdatedAt   time.Time      `db:"updated_at" json:"-"`
}

func (a *Assignment) Validate() error {
	return Validator().Struct(a)
}

// DateString renders the assignment date as YYYY-MM-DD, or nil when unset.
func (a *Assignment) DateString() *string {
	if a.Date == nil {
		return nil
	}
	s := a.Date.Format("2006-01-02")
	return &s
}
