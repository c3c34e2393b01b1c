package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// ElectionResult is one party's vote count in one administrative unit.
type ElectionResult struct {
	AGS      string
	Election string
	Party    string
	Votes    *int64
}

// ParseElectionsCSV reads a semicolon-delimited results file into long
// format. The header row is found dynamically since the published files
// carry several comment lines before it; every column after ags and name
// is treated as a party.
func ParseElectionsCSV(path, election string) ([]ElectionResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	headerIdx, agsIdx := findElectionHeader(records)
	if headerIdx < 0 {
		return nil, fmt.Errorf("%s has no header row with an ags column", path)
	}

	header := records[headerIdx]
	var partyIdx []int
	var parties []string
	for i, col := range header {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		if i == agsIdx || col == "" {
			continue
		}
		lower := strings.ToLower(col)
		if lower == "name" || lower == "gebiet" || lower == "wahlkreis_name" {
			continue
		}
		partyIdx = append(partyIdx, i)
		parties = append(parties, col)
	}
	if len(parties) == 0 {
		return nil, fmt.Errorf("%s has no party columns", path)
	}

	var results []ElectionResult
	for _, rec := range records[headerIdx+1:] {
		if agsIdx >= len(rec) {
			continue
		}
		ags := strings.TrimSpace(rec[agsIdx])
		if ags == "" {
			continue
		}
		for k, idx := range partyIdx {
			var votes *int64
			if idx < len(rec) {
				// vote counts use dots as thousands separators
				votes = NormalizeInteger(strings.ReplaceAll(rec[idx], ".", ""))
			}
			results = append(results, ElectionResult{
				AGS:      ags,
				Election: election,
				Party:    parties[k],
				Votes:    votes,
			})
		}
	}
	return results, nil
}

// findElectionHeader locates the header row and the ags column inside it.
func findElectionHeader(records [][]string) (rowIdx, agsIdx int) {
	for i, rec := range records {
		for j, col := range rec {
			col = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
			if col == "ags" || col == "ars" || col == "regionalschluessel" {
				return i, j
			}
		}
		// only the comment preamble comes before the header
		if i > 20 {
			break
		}
	}
	return -1, -1
}

// ElectionLoader loads election results into zensus.fact_elections.
type ElectionLoader struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func NewElectionLoader(pool *pgxpool.Pool, logger *logrus.Logger) *ElectionLoader {
	return &ElectionLoader{pool: pool, logger: logger}
}

func (l *ElectionLoader) Load(ctx context.Context, path, election string) error {
	results, err := ParseElectionsCSV(path, election)
	if err != nil {
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"election": election,
		"rows":     len(results),
	}).Info("Loading election results")

	query := `
		INSERT INTO zensus.fact_elections (ags, election, party, votes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ags, election, party) DO UPDATE SET votes = EXCLUDED.votes`

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, res := range results {
		if _, err := tx.Exec(ctx, query, res.AGS, res.Election, res.Party, res.Votes); err != nil {
			return fmt.Errorf("failed to insert result %s/%s: %w", res.AGS, res.Party, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit election results: %w", err)
	}
	return nil
}
