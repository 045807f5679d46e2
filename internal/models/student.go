package models

import (
	"strings"
	"time"
)

type Student struct {
	ID        int64     `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"first_name" csv:"First Name" validate:"required,max=100,personname"`
	LastName  string    `db:"last_name" json:"last_name" csv:"Last Name" validate:"required,max=100,personname"`
	Email     string    `db:"email" json:"email" csv:"Email" validate:"required,max=254,email"`
	TenantID  string    `db:"tenant_id" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"-"`
	UpdatedAt time.Time `db:"updated_at" json:"-"`
}

// Normalize trims the name fields and lower-cases the email, which is the
// student's identity within a tenant.
func (s *Student) Normalize() {
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	s.Email = NormalizeEmail(s.Email)
}

func (s *Student) Validate() error {
	return Validator().Struct(s)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
