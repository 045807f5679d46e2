package models

import "strings"

type Tag struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name" validate:"required,max=100"`
	TenantID string `db:"tenant_id" json:"-"`
}

// NormalizeTagName lower-cases and trims tag names so "Quiz" and " quiz" are the same tag.
func NormalizeTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
