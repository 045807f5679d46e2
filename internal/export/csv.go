package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/gradeinsight/internal/models"
	"github.com/shrimpsizemoose/gradeinsight/internal/store"
)

var header = []string{"student_email", "student_name", "assignment_name", "score", "max_points", "percentage"}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteGradesCSV writes one line per grade.
func WriteGradesCSV(w io.Writer, rows []store.GradeRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		pct := models.Percentage(r.Score, r.MaxPoints)
		err := cw.Write([]string{
			r.Email,
			r.FirstName + " " + r.LastName,
			r.AssignmentName,
			formatFloat(r.Score),
			formatFloat(r.MaxPoints),
			strconv.FormatFloat(pct, 'f', 2, 64),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVExporter periodically dumps every configured tenant's grades into dir.
type CSVExporter struct {
	store     store.GradeStore
	dir       string
	tenants   []string
	scheduler *gocron.Scheduler
	now       func() time.Time
}

func NewCSVExporter(s store.GradeStore, dir string, tenants []string) *CSVExporter {
	return &CSVExporter{
		store:     s,
		dir:       dir,
		tenants:   tenants,
		scheduler: gocron.NewScheduler(time.UTC),
		now:       time.Now,
	}
}

func (e *CSVExporter) Start(schedule string) error {
	_, err := e.scheduler.Cron(schedule).Do(func() {
		if err := e.ExportAll(context.Background()); err != nil {
			logger.Error.Printf("Export failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule export: %w", err)
	}

	e.scheduler.StartAsync()
	return nil
}

func (e *CSVExporter) Stop() {
	e.scheduler.Stop()
}

// ExportAll exports the configured tenants, or all tenants when none are
// configured. It keeps going past a failing tenant.
func (e *CSVExporter) ExportAll(ctx context.Context) error {
	tenants := e.tenants
	if len(tenants) == 0 {
		all, err := e.store.ListTenants(ctx)
		if err != nil {
			return err
		}
		for _, t := range all {
			tenants = append(tenants, t.ID)
		}
	}

	var failed int
	for _, tenantID := range tenants {
		path, err := e.Export(ctx, tenantID)
		if err != nil {
			failed++
			logger.Error.Printf("[%s] export failed: %v", tenantID, err)
			continue
		}
		logger.Info.Printf("[%s] exported grades to %s", tenantID, path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tenant exports failed", failed, len(tenants))
	}
	return nil
}

func (e *CSVExporter) Export(ctx context.Context, tenantID string) (string, error) {
	rows, err := e.store.ListGradeRows(ctx, tenantID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}
	name := fmt.Sprintf("%s_grades_%s.csv", tenantID, e.now().UTC().Format("20060102_150405"))
	path := filepath.Join(e.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	if err := WriteGradesCSV(f, rows); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, f.Close()
}
