package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/gradeinsight/internal/metrics"
	"github.com/shrimpsizemoose/gradeinsight/internal/models"
	"github.com/shrimpsizemoose/gradeinsight/internal/roster"
	"github.com/shrimpsizemoose/gradeinsight/internal/store"
	"github.com/shrimpsizemoose/gradeinsight/internal/store/sqlite"
)

func setupStore(t *testing.T) store.GradeStore {
	s, err := sqlite.NewSQLiteStore(&store.DBConfig{
		DSN:           ":memory:",
		Type:          store.DBTypeSQLite,
		MigrationsDir: "../../migrations",
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	for _, id := range []string{"acme", "globex"} {
		_, _, err := s.GetOrCreateTenant(context.Background(), id, id)
		require.NoError(t, err)
	}
	return s
}

func csvData(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

func templateData(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, roster.Template(&buf))
	return buf.Bytes()
}

func counts(t *testing.T, s store.GradeStore, tenantID string) *store.TenantCounts {
	c, err := s.CountTenant(context.Background(), tenantID)
	require.NoError(t, err)
	return c
}

func TestImportSingleRow(t *testing.T) {
	s := setupStore(t)
	engine := NewEngine(s, Options{})

	result, err := engine.Import(context.Background(), Request{
		TenantID:    "acme",
		TeacherName: "Ms. Frizzle",
		ClassTag:    "period-1",
		Data: csvData(
			"Last Name,First Name,Email,Quiz 1",
			"Points,,,20",
			"Smith,John,John@X.com,18",
		),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.StudentsProcessed)
	assert.Equal(t, 1, result.StudentsCreated)
	assert.Equal(t, 1, result.AssignmentsCreated)
	assert.Equal(t, 1, result.GradesCreated)
	assert.Equal(t, 0, result.Errors)
	assert.NotEmpty(t, result.UploadID)
	assert.Equal(t, []string{}, result.ErrorDetails)

	rows, err := s.ListGradeRows(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "john@x.com", rows[0].Email)
	assert.Equal(t, "Quiz 1", rows[0].AssignmentName)
	assert.Equal(t, 18.0, rows[0].Score)
	assert.Equal(t, 20.0, rows[0].MaxPoints)
	assert.Equal(t, "Ms. Frizzle", rows[0].TeacherName)
	assert.Equal(t, "period-1", rows[0].ClassTag.String)
}

func TestImportIsIdempotent(t *testing.T) {
	s := setupStore(t)
	engine := NewEngine(s, Options{})
	req := Request{TenantID: "acme", TeacherName: "Ms. Frizzle", Data: templateData(t)}

	first, err := engine.Import(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 8, first.GradesCreated)
	before := counts(t, s, "acme")

	second, err := engine.Import(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.GradesCreated)
	assert.Equal(t, 8, second.GradesUpdated)
	assert.Equal(t, 0, second.StudentsCreated)
	assert.Equal(t, 0, second.AssignmentsCreated)
	assert.Equal(t, 3, second.StudentsProcessed)

	assert.Equal(t, before, counts(t, s, "acme"))
}

func TestReuploadOverwritesGrade(t *testing.T) {
	s := setupStore(t)
	engine := NewEngine(s, Options{})
	ctx := context.Background()

	_, err := engine.Import(ctx, Request{
		TenantID:    "acme",
		TeacherName: "Ms. Frizzle",
		ClassTag:    "period-1",
		Data:        csvData("Last Name,First Name,Email,Quiz 1", "Points,,,20", "Smith,John,john@x.com,12"),
	})
	require.NoError(t, err)

	result, err := engine.Import(ctx, Request{
		TenantID:    "acme",
		TeacherName: "Mr. Keating",
		ClassTag:    "period-2",
		Data:        csvData("Last Name,First Name,Email,Quiz 1", "Points,,,50", "Smith,Johnny,john@x.com,19"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.StudentsUpdated)
	assert.Equal(t, 1, result.GradesUpdated)

	rows, err := s.ListGradeRows(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 19.0, rows[0].Score)
	assert.Equal(t, "Johnny", rows[0].FirstName)
	assert.Equal(t, "Mr. Keating", rows[0].TeacherName)
	assert.Equal(t, "period-2", rows[0].ClassTag.String)
	assert.Equal(t, 20.0, rows[0].MaxPoints, "metadata only applies on creation")
}

func TestTenantIsolation(t *testing.T) {
	s := setupStore(t)
	engine := NewEngine(s, Options{})
	data := templateData(t)

	for _, tenantID := range []string{"acme", "globex"} {
		result, err := engine.Import(context.Background(), Request{TenantID: tenantID, TeacherName: "Ms. Frizzle", Data: data})
		require.NoError(t, err)
		assert.Equal(t, 3, result.StudentsCreated, tenantID)
		assert.Equal(t, 8, result.GradesCreated, tenantID)
	}

	for _, tenantID := range []string{"acme", "globex"} {
		c := counts(t, s, tenantID)
		assert.Equal(t, int64(3), c.Students, tenantID)
		assert.Equal(t, int64(3), c.Assignments, tenantID)
		assert.Equal(t, int64(8), c.Grades, tenantID)
	}
}

func TestRowIsolation(t *testing.T) {
	s := setupStore(t)
	engine := NewEngine(s, Options{})
	imported := testutil.ToFloat64(metrics.RowsTotal.WithLabelValues("acme", "imported"))
	rejected := testutil.ToFloat64(metrics.RowsTotal.WithLabelValues("acme", "rejected"))

	lines := []string{"Last Name,First Name,Email,Quiz 1"}
	for i := 1; i <= 10; i++ {
		email := fmt.Sprintf("student%d@x.com", i)
		if i == 5 {
			email = "not-an-email"
		}
		lines = append(lines, fmt.Sprintf("Student,Number,%s,%d", email, 50+i))
	}

	result, err := engine.Import(context.Background(), Request{TenantID: "acme", TeacherName: "Ms. Frizzle", Data: csvData(lines...)})
	require.NoError(t, err)
	assert.Equal(t, 9, result.StudentsProcessed)
	assert.Equal(t, 9, result.GradesCreated)
	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.ErrorDetails, 1)
	assert.Contains(t, result.ErrorDetails[0], "row 6")
	assert.Contains(t, result.ErrorDetails[0], "not-an-email")

	assert.Equal(t, int64(9), counts(t, s, "acme").Students)

	assert.Equal(t, imported+9, testutil.ToFloat64(metrics.RowsTotal.WithLabelValues("acme", "imported")))
	assert.Equal(t, rejected+1, testutil.ToFloat64(metrics.RowsTotal.WithLabelValues("acme", "rejected")))
}

func TestScoreBound(t *testing.T) {
	s := setupStore(t)
	engine := NewEngine(s, Options{ExtraCreditFactor: 1.5})

	result, err := engine.Import(context.Background(), Request{
		TenantID:    "acme",
		TeacherName: "Ms. Frizzle",
		Data: csvData(
			"Last Name,First Name,Email,Quiz 1",
			"Points,,,20",
			"Smith,John,john@x.com,30",
			"Doe,Jane,jane@x.com,30.01",
		),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.StudentsProcessed)
	assert.Equal(t, 1, result.GradesCreated)
	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.ErrorDetails, 1)
	assert.Contains(t, result.ErrorDetails[0], "row 4")
	assert.Contains(t, result.ErrorDetails[0], "Quiz 1")
	assert.Contains(t, result.ErrorDetails[0], "30.01")
}

func TestTemplateRoundTrip(t *testing.T) {
	s := setupStore(t)
	engine := NewEngine(s, Options{})

	result, err := engine.Import(context.Background(), Request{TenantID: "acme", TeacherName: "Ms. Frizzle", Data: templateData(t)})
	require.NoError(t, err)
	assert.Equal(t, 3, result.StudentsProcessed)
	assert.Equal(t, 3, result.AssignmentsCreated)
	assert.Equal(t, 8, result.GradesCreated)
	assert.Equal(t, 1, result.GradesSkipped)
	assert.Equal(t, 0, result.Errors)
	assert.Empty(t, result.Warnings)

	assignments, err := s.ListAssignments(context.Background(), "acme")
	require.NoError(t, err)
	byName := make(map[string]models.Assignment)
	for _, a := range assignments {
		byName[a.Name] = a
	}
	assert.Equal(t, 20.0, byName["Quiz 1"].MaxPoints)
	midterm := byName["Midterm"]
	require.NotNil(t, midterm.Date)
	assert.Equal(t, "2024-10-04", *midterm.DateString())
}

func TestInputErrorsWriteNothing(t *testing.T) {
	s := setupStore(t)
	engine := NewEngine(s, Options{MaxRows: 2})

	testCases := []struct {
		name    string
		teacher string
		data    []byte
	}{
		{name: "missing columns", teacher: "Ms. Frizzle", data: csvData("Name,Email,Quiz 1", "John,j@x.com,5")},
		{name: "too many rows", teacher: "Ms. Frizzle", data: templateData(t)},
		{name: "no teacher", teacher: "  ", data: csvData("Last Name,First Name,Email,Quiz 1", "Smith,John,j@x.com,5")},
		{name: "teacher name too long", teacher: strings.Repeat("a", 201), data: csvData("Last Name,First Name,Email,Quiz 1", "Smith,John,j@x.com,5")},
		{name: "assignment name too long", teacher: "Ms. Frizzle", data: csvData("Last Name,First Name,Email,"+strings.Repeat("q", 201), "Smith,John,j@x.com,5")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := engine.Import(context.Background(), Request{TenantID: "acme", TeacherName: tc.teacher, Data: tc.data})
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, roster.IsInputError(err))
		})
	}

	assert.Equal(t, &store.TenantCounts{}, counts(t, s, "acme"))
}

func TestTagsAttachToNewAssignments(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	tx, err := s.BeginUpload(ctx, "acme")
	require.NoError(t, err)
	honors := &models.Tag{Name: "honors"}
	require.NoError(t, tx.CreateTag(ctx, honors))
	require.NoError(t, tx.Commit())

	engine := NewEngine(s, Options{})
	result, err := engine.Import(ctx, Request{
		TenantID:    "acme",
		TeacherName: "Ms. Frizzle",
		TagIDs:      []int64{honors.ID, 9999},
		NewTags:     []string{"Unit 1", " unit 1", ""},
		Data:        csvData("Last Name,First Name,Email,Quiz 1,Quiz 2", "Smith,John,j@x.com,5,6"),
	})
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "1 selected tags")

	tags, err := s.ListTags(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "honors", tags[0].Name)
	assert.Equal(t, "unit 1", tags[1].Name)

	links, err := s.ListAssignmentTags(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, links, 4)

	_, err = engine.Import(ctx, Request{
		TenantID:    "acme",
		TeacherName: "Ms. Frizzle",
		NewTags:     []string{"review"},
		Data:        csvData("Last Name,First Name,Email,Quiz 1", "Smith,John,j@x.com,7"),
	})
	require.NoError(t, err)
	links, err = s.ListAssignmentTags(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, links, 4, "existing assignments keep their tags")
}

func TestOnCommit(t *testing.T) {
	s := setupStore(t)
	engine := NewEngine(s, Options{})
	var invalidated []string
	engine.OnCommit = func(_ context.Context, tenantID string) {
		invalidated = append(invalidated, tenantID)
	}

	_, err := engine.Import(context.Background(), Request{TenantID: "globex", TeacherName: "Ms. Frizzle", Data: templateData(t)})
	require.NoError(t, err)
	assert.Equal(t, []string{"globex"}, invalidated)
}

// flakyStore wraps every upload transaction so tests can inject failures.
type flakyStore struct {
	store.GradeStore
	wrap func(store.UploadTx) store.UploadTx
}

func (f *flakyStore) BeginUpload(ctx context.Context, tenantID string) (store.UploadTx, error) {
	tx, err := f.GradeStore.BeginUpload(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return f.wrap(tx), nil
}

type flakyTx struct {
	store.UploadTx
	duplicateEmails map[string]int
	gradeErr        error
	grades          int
	// stall makes CreateGrade wait for the upload deadline
	stall bool
}

func (t *flakyTx) CreateStudent(ctx context.Context, s *models.Student) error {
	if t.duplicateEmails[s.Email] > 0 {
		t.duplicateEmails[s.Email]--
		return fmt.Errorf("failed to create student: %w", store.ErrDuplicateEntry)
	}
	return t.UploadTx.CreateStudent(ctx, s)
}

func (t *flakyTx) CreateGrade(ctx context.Context, g *models.Grade) error {
	t.grades++
	if t.gradeErr != nil && t.grades == 2 {
		return t.gradeErr
	}
	if t.stall {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return errors.New("upload deadline never fired")
		}
	}
	return t.UploadTx.CreateGrade(ctx, g)
}

func TestDuplicateEntryIsRetried(t *testing.T) {
	base := setupStore(t)
	data := csvData(
		"Last Name,First Name,Email,Quiz 1",
		"Smith,John,john@x.com,18",
		"Doe,Jane,jane@x.com,17",
	)

	t.Run("retry succeeds", func(t *testing.T) {
		s := &flakyStore{GradeStore: base, wrap: func(tx store.UploadTx) store.UploadTx {
			return &flakyTx{UploadTx: tx, duplicateEmails: map[string]int{"john@x.com": 1}}
		}}
		result, err := NewEngine(s, Options{}).Import(context.Background(), Request{TenantID: "acme", TeacherName: "Ms. Frizzle", Data: data})
		require.NoError(t, err)
		assert.Equal(t, 2, result.StudentsProcessed)
		assert.Equal(t, 2, result.GradesCreated)
		assert.Equal(t, 0, result.Errors)
	})

	t.Run("second duplicate becomes a row error", func(t *testing.T) {
		s := &flakyStore{GradeStore: base, wrap: func(tx store.UploadTx) store.UploadTx {
			return &flakyTx{UploadTx: tx, duplicateEmails: map[string]int{"new@x.com": 2}}
		}}
		result, err := NewEngine(s, Options{}).Import(context.Background(), Request{
			TenantID:    "globex",
			TeacherName: "Ms. Frizzle",
			Data: csvData(
				"Last Name,First Name,Email,Quiz 1",
				"New,Kid,new@x.com,10",
				"Doe,Jane,jane@x.com,17",
			),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.StudentsProcessed)
		assert.Equal(t, 1, result.Errors)
		require.Len(t, result.ErrorDetails, 1)
		assert.Contains(t, result.ErrorDetails[0], "duplicate entry")

		students, err := base.ListStudents(context.Background(), "globex")
		require.NoError(t, err)
		require.Len(t, students, 1, "rolled back row leaves nothing behind")
		assert.Equal(t, "jane@x.com", students[0].Email)
	})
}

func TestPersistenceErrorRollsBackUpload(t *testing.T) {
	base := setupStore(t)
	boom := errors.New("disk full")
	s := &flakyStore{GradeStore: base, wrap: func(tx store.UploadTx) store.UploadTx {
		return &flakyTx{UploadTx: tx, gradeErr: boom}
	}}

	result, err := NewEngine(s, Options{}).Import(context.Background(), Request{TenantID: "acme", TeacherName: "Ms. Frizzle", Data: templateData(t)})
	require.Error(t, err)
	assert.Nil(t, result)

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, boom)
	assert.False(t, roster.IsInputError(err))

	assert.Equal(t, &store.TenantCounts{}, counts(t, base, "acme"))
}

func TestCanceledContextIsPersistenceError(t *testing.T) {
	s := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(s, Options{}).Import(ctx, Request{TenantID: "acme", TeacherName: "Ms. Frizzle", Data: templateData(t)})
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUploadTimeoutRollsBack(t *testing.T) {
	base := setupStore(t)
	s := &flakyStore{GradeStore: base, wrap: func(tx store.UploadTx) store.UploadTx {
		return &flakyTx{UploadTx: tx, stall: true}
	}}
	engine := NewEngine(s, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	result, err := engine.Import(context.Background(), Request{TenantID: "acme", TeacherName: "Ms. Frizzle", Data: templateData(t)})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Less(t, time.Since(start), 5*time.Second)

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, &store.TenantCounts{}, counts(t, base, "acme"))
}
