package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shrimpsizemoose/gradeinsight/internal/ingest"
	"github.com/shrimpsizemoose/gradeinsight/internal/models"
	"github.com/shrimpsizemoose/gradeinsight/internal/scoring"
	"github.com/shrimpsizemoose/gradeinsight/internal/store"
	"github.com/shrimpsizemoose/gradeinsight/internal/tenant"
)

type Service struct {
	Config   *Config
	Store    store.GradeStore
	Cache    *StatsCache
	Engine   *ingest.Engine
	Resolver *tenant.Resolver
}

func NewService(configPath string) (*Service, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := NewStore(config.Database.DSN, config.Database.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	cache, err := NewStatsCache(config)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to init cache: %w", err)
	}

	return NewServiceWith(config, store, cache), nil
}

// NewServiceWith wires a service around an already opened store and cache.
func NewServiceWith(config *Config, s store.GradeStore, cache *StatsCache) *Service {
	if cache == nil {
		cache = &StatsCache{}
	}
	engine := ingest.NewEngine(s, ingest.Options{
		DefaultMaxPoints:  config.Upload.DefaultMaxPoints,
		ExtraCreditFactor: config.Upload.ExtraCreditFactor,
		MaxRows:           config.Upload.MaxRows,
		Timeout:           time.Duration(config.Upload.TimeoutSeconds) * time.Second,
	})
	engine.OnCommit = cache.Invalidate

	return &Service{
		Config:   config,
		Store:    s,
		Cache:    cache,
		Engine:   engine,
		Resolver: tenant.NewResolver(config.Server.BaseDomain, config.Tenants.Reserved),
	}
}

func (s *Service) tags(ctx context.Context, tenantID string) (scoring.TagIndex, error) {
	links, err := s.Store.ListAssignmentTags(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return scoring.NewTagIndex(links), nil
}

func (s *Service) Dashboard(ctx context.Context, tenantID string) (*scoring.Dashboard, error) {
	students, err := s.Store.ListStudents(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Store.ListGradeRows(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	tags, err := s.tags(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	d := scoring.BuildDashboard(students, rows, tags)
	return &d, nil
}

func (s *Service) GradesTable(ctx context.Context, tenantID string) ([]scoring.StudentGrades, error) {
	students, err := s.Store.ListStudents(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Store.ListGradeRows(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	tags, err := s.tags(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return scoring.GradesTable(students, rows, tags), nil
}

// StudentReport returns nil when no student has that email in the tenant.
func (s *Service) StudentReport(ctx context.Context, tenantID, email string) (*scoring.StudentReport, error) {
	student, err := s.Store.GetStudentByEmail(ctx, tenantID, email)
	if err != nil || student == nil {
		return nil, err
	}
	rows, err := s.Store.ListStudentGradeRows(ctx, tenantID, student.ID)
	if err != nil {
		return nil, err
	}
	tags, err := s.tags(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	report := scoring.Report(*student, rows, tags)
	return &report, nil
}

func (s *Service) Students(ctx context.Context, tenantID string) ([]scoring.StudentStats, error) {
	students, err := s.Store.ListStudents(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Store.ListGradeRows(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return scoring.StudentsWithStats(students, rows), nil
}

func (s *Service) SearchStudents(ctx context.Context, tenantID, query string) ([]models.Student, error) {
	students, err := s.Store.SearchStudents(ctx, tenantID, query)
	if err != nil {
		return nil, err
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, nil
}

func (s *Service) Assignments(ctx context.Context, tenantID string) ([]scoring.AssignmentStats, error) {
	assignments, err := s.Store.ListAssignments(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Store.ListGradeRows(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	tags, err := s.tags(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return scoring.AssignmentSummaries(assignments, rows, tags), nil
}

func (s *Service) Tags(ctx context.Context, tenantID string) ([]models.Tag, error) {
	tags, err := s.Store.ListTags(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []models.Tag{}
	}
	return tags, nil
}

// Stats serves tenant counts from the cache when possible.
func (s *Service) Stats(ctx context.Context, tenantID string) (*store.TenantCounts, error) {
	if counts, ok := s.Cache.Get(ctx, tenantID); ok {
		return counts, nil
	}

	counts, err := s.Store.CountTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dashboard stats: %w", err)
	}
	s.Cache.Set(ctx, tenantID, counts)
	return counts, nil
}

func (s *Service) Close() error {
	var errs []error

	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := s.Cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing: %v", errs)
	}
	return nil
}
