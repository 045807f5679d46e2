package admin

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/gradeinsight/internal/models"
	"github.com/shrimpsizemoose/gradeinsight/internal/store"
)

const (
	DefaultTeacherName  = "Admin Teacher"
	DefaultTeacherEmail = "admin@gradeinsight.com"
)

var DefaultTags = []string{"Homework", "Quiz", "Test", "Project", "Extra Credit", "Participation"}

// Admin runs tenant maintenance commands against a store.
type Admin struct {
	store store.GradeStore
	out   io.Writer
}

func New(s store.GradeStore, out io.Writer) *Admin {
	return &Admin{store: s, out: out}
}

// Bootstrap reports what CreateTenant had to create.
type Bootstrap struct {
	Tenant         *models.Tenant
	TenantCreated  bool
	TeacherCreated bool
	TagsCreated    []string
}

// CreateTenant makes sure the tenant exists with a default teacher and the
// default tags. Running it again only fills in what is missing.
func (a *Admin) CreateTenant(ctx context.Context, id, name string) (*Bootstrap, error) {
	tenant := &models.Tenant{ID: id, Name: name}
	if err := tenant.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tenant: %w", err)
	}

	t, created, err := a.store.GetOrCreateTenant(ctx, id, name)
	if err != nil {
		return nil, err
	}
	b := &Bootstrap{Tenant: t, TenantCreated: created}

	tx, err := a.store.BeginUpload(ctx, id)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	teacher, err := tx.GetTeacherByName(ctx, DefaultTeacherName)
	if err != nil {
		return nil, err
	}
	if teacher == nil {
		teacher = &models.Teacher{
			Name:  DefaultTeacherName,
			Email: sql.NullString{String: DefaultTeacherEmail, Valid: true},
		}
		if err := tx.CreateTeacher(ctx, teacher); err != nil {
			return nil, err
		}
		b.TeacherCreated = true
	}

	for _, raw := range DefaultTags {
		name := models.NormalizeTagName(raw)
		existing, err := tx.GetTagByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}
		if err := tx.CreateTag(ctx, &models.Tag{Name: name}); err != nil {
			return nil, err
		}
		b.TagsCreated = append(b.TagsCreated, name)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	logger.Info.Printf("[%s] bootstrap done: tenant created=%t teacher created=%t tags created=%d",
		id, b.TenantCreated, b.TeacherCreated, len(b.TagsCreated))
	return b, nil
}
