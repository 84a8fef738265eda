package query

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retro-backend/internal/models"
)

func coreSchema(t *testing.T) models.Schema {
	schema, err := models.NewSchema(models.QuestionSetCore)
	require.NoError(t, err)
	return schema
}

func TestColumns(t *testing.T) {
	schema := coreSchema(t)
	assert.Equal(t, []string{
		"sprint", "team", "member_name", "role", "submitted_at", "comments",
		"q1", "q2", "q3", "q4", "q5", "q6", "q7", "q8",
	}, Columns(schema))

	schema.TrackRole = false
	schema.Comments = false
	assert.Equal(t, []string{
		"sprint", "team", "member_name", "submitted_at",
		"q1", "q2", "q3", "q4", "q5", "q6", "q7", "q8",
	}, Columns(schema))
}

func TestFlatten(t *testing.T) {
	schema := coreSchema(t)
	r := models.Feedback{
		ID:          "a",
		Sprint:      "Sprint 1",
		Team:        "Darwin",
		MemberName:  "Alice",
		Role:        models.RoleQA,
		Responses:   []string{"Poor", "Average", "Good", "Excellent", "Poor", "Average", "Good", "Excellent"},
		Comments:    "ok",
		SubmittedAt: time.Date(2025, 7, 4, 16, 5, 9, 0, time.UTC),
	}

	table := Flatten([]models.Feedback{r}, schema)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, []string{
		"Sprint 1", "Darwin", "Alice", "QA", "2025-07-04 16:05:09", "ok",
		"Poor", "Average", "Good", "Excellent", "Poor", "Average", "Good", "Excellent",
	}, table.Rows[0])
	assert.Len(t, table.Rows[0], len(table.Columns))
}

func TestFlatten_Empty(t *testing.T) {
	table := Flatten(nil, coreSchema(t))
	assert.NotNil(t, table.Rows)
	assert.Empty(t, table.Rows)
	assert.NotEmpty(t, table.Columns)
}

func TestWriteCSV(t *testing.T) {
	table := Table{
		Columns: []string{"sprint", "team", "comments", "q1"},
		Rows: [][]string{
			{"Sprint 1", "Darwin", "fine, mostly", "Good"},
			{"Sprint 1", "Tejas", `said "meh"`, "Poor"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "sprint,team,comments,q1", lines[0])
	assert.Equal(t, `Sprint 1,Darwin,"fine, mostly",Good`, lines[1])
	assert.Equal(t, `Sprint 1,Tejas,"said ""meh""",Poor`, lines[2])
}

func TestExportFilename(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		expected string
	}{
		{"No filters", Filter{}, "feedback_all-sprints_all-teams.csv"},
		{"Sprint only", Filter{Sprint: "Sprint 1"}, "feedback_sprint-1_all-teams.csv"},
		{"Team only", Filter{Team: "Cheetahs"}, "feedback_all-sprints_cheetahs.csv"},
		{"Both", Filter{Sprint: "Sprint 3", Team: "Constructors"}, "feedback_sprint-3_constructors.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExportFilename(tt.filter))
		})
	}
}
