package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/gradeinsight/internal/models"
)

func newMockStore(t *testing.T) (*BaseStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &BaseStore{
		DB: sqlx.NewDb(db, "postgres"),
		Converter: func(query string) string {
			return sqlx.Rebind(sqlx.DOLLAR, query)
		},
		IsUniqueViolation: func(err error) bool {
			var pqErr *pq.Error
			return errors.As(err, &pqErr) && pqErr.Code == "23505"
		},
	}, mock
}

func TestCreateStudentClassifiesErrors(t *testing.T) {
	testCases := []struct {
		name      string
		driverErr error
		duplicate bool
	}{
		{
			name:      "unique violation",
			driverErr: &pq.Error{Code: "23505", Constraint: "uq_student_email_tenant"},
			duplicate: true,
		},
		{
			name:      "foreign key violation",
			driverErr: &pq.Error{Code: "23503"},
			duplicate: false,
		},
		{
			name:      "connection failure",
			driverErr: errors.New("connection reset by peer"),
			duplicate: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			ctx := context.Background()

			mock.ExpectBegin()
			mock.ExpectQuery(`INSERT INTO students`).WillReturnError(tc.driverErr)
			mock.ExpectRollback()

			tx, err := s.BeginUpload(ctx, "acme")
			require.NoError(t, err)

			err = tx.CreateStudent(ctx, &models.Student{FirstName: "A", LastName: "B", Email: "a@b.c"})
			require.Error(t, err)
			assert.Equal(t, tc.duplicate, errors.Is(err, ErrDuplicateEntry))

			require.NoError(t, tx.Rollback())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateStudentScopesTenant(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO students \(first_name, last_name, email, tenant_id, created_at, updated_at\)\s+VALUES \(\$1, \$2, \$3, \$4, \$5, \$6\)`).
		WithArgs("Ada", "Lovelace", "ada@x.com", "acme", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectCommit()

	tx, err := s.BeginUpload(ctx, "acme")
	require.NoError(t, err)

	student := &models.Student{FirstName: "Ada", LastName: "Lovelace", Email: "ada@x.com"}
	require.NoError(t, tx.CreateStudent(ctx, student))
	require.NoError(t, tx.Commit())

	assert.Equal(t, int64(42), student.ID)
	assert.Equal(t, "acme", student.TenantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTagsByIDsSkipsEmpty(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := s.BeginUpload(ctx, "acme")
	require.NoError(t, err)

	tags, err := tx.GetTagsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}
