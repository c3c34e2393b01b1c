package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"reddata/warehouse/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

// WriteStatsCSV writes the aggregation results for human review. Nil
// statistics become empty cells; writing rows in universe order keeps
// repeated runs byte-identical for identical inputs.
func WriteStatsCSV(path string, rows []models.PropertyStats) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	wr := csv.NewWriter(f)

	header := append([]string{"property_id"}, models.StatsColumns()...)
	header = append(header, "created_at")
	if err := wr.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range rows {
		record := make([]string, 0, len(header))
		record = append(record, row.PropertyID)
		for _, v := range row.NumericValues() {
			if v == nil {
				record = append(record, "")
			} else {
				record = append(record, strconv.FormatFloat(*v, 'g', -1, 64))
			}
		}
		record = append(record, row.CreatedAt.Format(timeLayout))

		if err := wr.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	wr.Flush()
	if err := wr.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}
