package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	r := NewResolver("gradeinsight.com", nil)

	testCases := []struct {
		name    string
		host    string
		want    string
		wantErr error
	}{
		{name: "subdomain", host: "acme.gradeinsight.com", want: "acme"},
		{name: "port and case", host: " ACME.GradeInsight.com:8080 ", want: "acme"},
		{name: "hyphenated", host: "north-high.gradeinsight.com", want: "north-high"},
		{name: "bare base domain", host: "gradeinsight.com", want: Main},
		{name: "bare base domain with port", host: "gradeinsight.com:443", want: Main},
		{name: "empty", host: "", wantErr: ErrInvalidHost},
		{name: "foreign domain", host: "acme.example.com", wantErr: ErrInvalidHost},
		{name: "suffix lookalike", host: "evilgradeinsight.com", wantErr: ErrInvalidHost},
		{name: "reserved www", host: "www.gradeinsight.com", wantErr: ErrReservedSubdomain},
		{name: "reserved api", host: "api.gradeinsight.com", wantErr: ErrReservedSubdomain},
		{name: "too short", host: "ab.gradeinsight.com", wantErr: ErrInvalidTenantFormat},
		{name: "leading hyphen", host: "-acme.gradeinsight.com", wantErr: ErrInvalidTenantFormat},
		{name: "trailing hyphen", host: "acme-.gradeinsight.com", wantErr: ErrInvalidTenantFormat},
		{name: "underscore", host: "ac_me.gradeinsight.com", wantErr: ErrInvalidTenantFormat},
		{name: "nested subdomain", host: "a.acme.gradeinsight.com", wantErr: ErrInvalidTenantFormat},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(tc.host)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveCustomReserved(t *testing.T) {
	r := NewResolver("localhost", []string{"Admin"})

	_, err := r.Resolve("admin.localhost")
	assert.ErrorIs(t, err, ErrReservedSubdomain)

	got, err := r.Resolve("www.localhost:8000")
	require.NoError(t, err)
	assert.Equal(t, "www", got)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	id, ok := FromContext(WithTenant(context.Background(), "acme"))
	assert.True(t, ok)
	assert.Equal(t, "acme", id)
}
