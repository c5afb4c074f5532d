package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

func TestListQuery(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	q, args := listQuery("SELECT id FROM audit_log WHERE 1=1", "created_at", domain.ListOpts{})
	assert.Equal(t, "SELECT id FROM audit_log WHERE 1=1 ORDER BY created_at DESC", q)
	assert.Empty(t, args)

	q, args = listQuery("SELECT id FROM audit_log WHERE 1=1", "created_at", domain.ListOpts{Since: &since, Limit: 10, Offset: 20})
	assert.Equal(t, "SELECT id FROM audit_log WHERE 1=1 AND created_at >= $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3", q)
	assert.Equal(t, []any{since, 10, 20}, args)
}
