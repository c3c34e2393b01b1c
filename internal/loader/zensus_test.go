package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectTableMapping(t *testing.T) {
	table, size, dataset, err := DetectTableMapping("data/10km/Zensus2022_Bevoelkerungszahl_10km-Gitter.csv")
	require.NoError(t, err)
	assert.Equal(t, "fact_zensus_10km_bevoelkerungszahl", table)
	assert.Equal(t, "10km", size)
	assert.Equal(t, "Bevoelkerungszahl", dataset)

	table, size, _, err = DetectTableMapping("Zensus2022_Heizungsart_100m-Gitter.csv")
	require.NoError(t, err)
	assert.Equal(t, "fact_zensus_100m_heizungsart", table)
	assert.Equal(t, "100m", size)

	_, _, _, err = DetectTableMapping("random_file.csv")
	assert.Error(t, err)
}

func writeTempCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseZensusCSV(t *testing.T) {
	csv := "GITTER_ID_100m;x_mp_100m;y_mp_100m;Insgesamt;Durchschnitt;werterlaeuternde_Zeichen\n" +
		"CRS3035RES100mN123E456;4341150;2691750;120;12,5;\n" +
		"CRS3035RES100mN124E457;4341250;2691850;–;–;(x)\n"
	path := writeTempCSV(t, "Zensus2022_Nettokaltmiete_100m-Gitter.csv", csv)

	ds, err := ParseZensusCSV(path)
	require.NoError(t, err)

	assert.Equal(t, "fact_zensus_100m_nettokaltmiete", ds.Table)
	assert.Equal(t, []string{"insgesamt", "durchschnitt"}, ds.Columns)
	assert.Equal(t, kindInteger, ds.Kinds[0])
	assert.Equal(t, kindNumeric, ds.Kinds[1])

	require.Len(t, ds.Rows, 2)
	// grid id is rebuilt from the cell center, not taken from the CSV
	assert.Equal(t, "CRS3035RES100mN2691750E4341150", ds.Rows[0].gridID)
	assert.Equal(t, int64(120), ds.Rows[0].values[0])
	assert.InDelta(t, 12.5, ds.Rows[0].values[1].(float64), 1e-9)

	// suppressed cells become NULLs
	assert.Nil(t, ds.Rows[1].values[0])
	assert.Nil(t, ds.Rows[1].values[1])
}

func TestParseZensusCSV_FallsBackToGitterID(t *testing.T) {
	csv := "GITTER_ID_1km;Insgesamt\n" +
		"CRS3035RES1000mN2691500E4341500;73\n"
	path := writeTempCSV(t, "Zensus2022_Bevoelkerungszahl_1km-Gitter.csv", csv)

	ds, err := ParseZensusCSV(path)
	require.NoError(t, err)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "CRS3035RES1000mN2691500E4341500", ds.Rows[0].gridID)
}

func TestParseZensusCSV_NoFactColumns(t *testing.T) {
	csv := "GITTER_ID_1km;x_mp_1km;y_mp_1km\nCRS3035RES1000mN1E1;4341500;2691500\n"
	path := writeTempCSV(t, "Zensus2022_Leer_1km-Gitter.csv", csv)

	_, err := ParseZensusCSV(path)
	assert.Error(t, err)
}
