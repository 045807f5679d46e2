package postgres

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shrimpsizemoose/gradeinsight/internal/models"
	"github.com/shrimpsizemoose/gradeinsight/internal/store"
)

// setupTestDB starts a throwaway Postgres container and applies the migrations
func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	ctx := context.Background()

	container, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_DB":       "testdb",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := NewPostgresStore(dsn, "../../../migrations")
	require.NoError(t, err, "Failed to create store")

	cleanup := func() {
		s.Close()
		container.Terminate(ctx)
	}

	return s, cleanup
}

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		log.Println("Skipping Postgres integration tests. Use -short=false to run them.")
		os.Exit(0)
	}
	log.Println("Starting Postgres store tests...")
	code := m.Run()
	log.Println("Finished Postgres store tests")
	os.Exit(code)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, s.ApplyMigrations("../../../migrations"))
}

func TestUploadTransaction(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, created, err := s.GetOrCreateTenant(ctx, "acme", "Acme")
	require.NoError(t, err)
	require.True(t, created)

	tx, err := s.BeginUpload(ctx, "acme")
	require.NoError(t, err)
	defer tx.Rollback()

	teacher := &models.Teacher{Name: "Mr. Keating"}
	require.NoError(t, tx.CreateTeacher(ctx, teacher))
	student := &models.Student{FirstName: "Todd", LastName: "Anderson", Email: "todd@welton.edu"}
	require.NoError(t, tx.CreateStudent(ctx, student))
	assignment := &models.Assignment{Name: "Poem", MaxPoints: 10}
	require.NoError(t, tx.CreateAssignment(ctx, assignment))
	grade := &models.Grade{StudentID: student.ID, TeacherID: teacher.ID, AssignmentID: assignment.ID, Score: 9}
	require.NoError(t, tx.CreateGrade(ctx, grade))

	t.Run("duplicate grade is classified", func(t *testing.T) {
		require.NoError(t, tx.Savepoint(ctx, "row_2"))
		dup := &models.Grade{StudentID: student.ID, TeacherID: teacher.ID, AssignmentID: assignment.ID, Score: 5}
		err := tx.CreateGrade(ctx, dup)
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrDuplicateEntry))
		require.NoError(t, tx.RollbackToSavepoint(ctx, "row_2"))
		require.NoError(t, tx.ReleaseSavepoint(ctx, "row_2"))
	})

	t.Run("update in place", func(t *testing.T) {
		grade.Score = 10
		require.NoError(t, tx.UpdateGrade(ctx, grade))
		got, err := tx.GetGrade(ctx, student.ID, assignment.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 10.0, got.Score)
	})

	require.NoError(t, tx.Commit())

	rows, err := s.ListGradeRows(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Mr. Keating", rows[0].TeacherName)

	counts, err := s.CountTenant(ctx, "acme")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, counts.AveragePercentage, 0.001)
}
