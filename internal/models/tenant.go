package models

import "time"

type Tenant struct {
	ID        string    `db:"id" json:"id" validate:"required,tenantid"`
	Name      string    `db:"name" json:"name" validate:"required,max=200"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (t *Tenant) Validate() error {
	return Validator().Struct(t)
}
