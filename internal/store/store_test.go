package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raaihank/lvs-console/internal/logparse"
)

func TestRuleCountInsert(t *testing.T) {
	query, args := ruleCountInsert(7, []logparse.RuleCount{
		{Rule: "Open Circuit", Count: 3},
		{Rule: "Short Circuit", Count: 1},
	})

	assert.Contains(t, query, "($1, $2, $3),($4, $5, $6)")
	assert.Contains(t, query, "ON CONFLICT (run_id, rule)")
	assert.Equal(t, []any{int64(7), "Open Circuit", 3, int64(7), "Short Circuit", 1}, args)
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"password", "postgres://lvs:secret@db:5432/lvs?sslmode=disable", "postgres://lvs:***@db:5432/lvs?sslmode=disable"},
		{"no credentials", "postgres://db:5432/lvs", "postgres://db:5432/lvs"},
		{"user only", "postgres://lvs@db:5432/lvs", "postgres://lvs@db:5432/lvs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maskDatabaseURL(tt.in))
		})
	}
}
