package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildQueries_Placeholders(t *testing.T) {
	pg := buildQueries(Dialect{Name: "postgres", Placeholder: Dollar, TimestampType: "TIMESTAMPTZ"})
	assert.Contains(t, pg.upsert, "VALUES ($1, $2, $3, $4, $5)")
	assert.Contains(t, pg.create, "updated_at  TIMESTAMPTZ NOT NULL")

	lite := buildQueries(Dialect{Name: "sqlite", Placeholder: Question, TimestampType: "DATETIME"})
	assert.Contains(t, lite.get, "instance_id = ? AND graph_id = ? AND node_id = ?")
	assert.Contains(t, lite.clear, "WHERE instance_id = ?")
}
