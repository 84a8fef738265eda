package query

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"retro-backend/internal/models"
	"retro-backend/internal/utils"
)

// Table is a flattened, display-ready view of feedback records
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Columns lists the flattened column names for a schema: metadata first,
// then one column per question.
func Columns(schema models.Schema) []string {
	cols := []string{"sprint", "team", "member_name"}
	if schema.TrackRole {
		cols = append(cols, "role")
	}
	cols = append(cols, "submitted_at")
	if schema.Comments {
		cols = append(cols, "comments")
	}
	for q := 1; q <= schema.QuestionCount(); q++ {
		cols = append(cols, fmt.Sprintf("q%d", q))
	}
	return cols
}

// Flatten turns records into rows, one response per qN column
func Flatten(records []models.Feedback, schema models.Schema) Table {
	table := Table{Columns: Columns(schema), Rows: make([][]string, 0, len(records))}

	for _, r := range records {
		row := []string{r.Sprint, r.Team, r.MemberName}
		if schema.TrackRole {
			row = append(row, r.Role)
		}

		submittedAt := ""
		if !r.SubmittedAt.IsZero() {
			submittedAt = r.SubmittedAt.Format(models.TimestampLayout)
		}
		row = append(row, submittedAt)

		if schema.Comments {
			row = append(row, r.Comments)
		}
		for q := 1; q <= schema.QuestionCount(); q++ {
			row = append(row, r.Response(q))
		}
		table.Rows = append(table.Rows, row)
	}

	return table
}

// WriteCSV writes the table with a header row
func WriteCSV(w io.Writer, table Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	if err := cw.WriteAll(table.Rows); err != nil {
		return fmt.Errorf("writing csv rows: %w", err)
	}
	return nil
}

// ExportFilename encodes the active filters, e.g. feedback_sprint-1_all-teams.csv
func ExportFilename(f Filter) string {
	sprint := "all-sprints"
	if f.Sprint != "" {
		sprint = utils.Slugify(f.Sprint)
	}
	team := "all-teams"
	if f.Team != "" {
		team = utils.Slugify(f.Team)
	}
	return strings.Join([]string{"feedback", sprint, team}, "_") + ".csv"
}
