package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseElectionsCSV(t *testing.T) {
	csv := "Bundestagswahl 2025;;\n" +
		"Endgueltiges Ergebnis;;\n" +
		"AGS;Name;SPD;CDU;GRUENE\n" +
		"11000000;Berlin;1.234;987;456\n" +
		"12000000;Brandenburg;321;–;12\n"
	path := writeTempCSV(t, "btw2025.csv", csv)

	results, err := ParseElectionsCSV(path, "BTW2025")
	require.NoError(t, err)
	require.Len(t, results, 6)

	assert.Equal(t, ElectionResult{AGS: "11000000", Election: "BTW2025", Party: "SPD", Votes: i64(1234)}, results[0])
	assert.Equal(t, "CDU", results[1].Party)
	assert.Equal(t, int64(987), *results[1].Votes)

	// suppressed count stays NULL
	assert.Equal(t, "CDU", results[4].Party)
	assert.Nil(t, results[4].Votes)
}

func TestParseElectionsCSV_NoHeader(t *testing.T) {
	path := writeTempCSV(t, "bad.csv", "foo;bar\n1;2\n")
	_, err := ParseElectionsCSV(path, "BTW2025")
	assert.Error(t, err)
}

func i64(v int64) *int64 { return &v }
