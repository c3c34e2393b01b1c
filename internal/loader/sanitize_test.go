package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeTableName(t *testing.T) {
	assert.Equal(t, "bevoelkerungszahl", SanitizeTableName("Bevoelkerungszahl"))
	assert.Equal(t, "durchschnittliche_nettokaltmiete", SanitizeTableName("Durchschnittliche Nettokaltmiete"))
	assert.Equal(t, "heizungsart_gebaeude", SanitizeTableName("Heizungsart--Gebäude"))
}

func TestSanitizeColumnName(t *testing.T) {
	assert.Equal(t, "anzahl_wohnungen", SanitizeColumnName("Anzahl Wohnungen"))
	assert.Equal(t, "fernheizung_fernwaerme", SanitizeColumnName("Fernheizung (Fernwärme)"))
	assert.Equal(t, "col_18_24_jahre", SanitizeColumnName("18-24 Jahre"))
	assert.Equal(t, "x", SanitizeColumnName("__x__"))
}

func TestNormalizeDecimal(t *testing.T) {
	v := NormalizeDecimal("129,1")
	require.NotNil(t, v)
	assert.InDelta(t, 129.1, *v, 1e-9)

	v = NormalizeDecimal("42")
	require.NotNil(t, v)
	assert.InDelta(t, 42.0, *v, 1e-9)

	assert.Nil(t, NormalizeDecimal("–"))
	assert.Nil(t, NormalizeDecimal("-"))
	assert.Nil(t, NormalizeDecimal(""))
	assert.Nil(t, NormalizeDecimal("abc"))
}

func TestNormalizeInteger(t *testing.T) {
	v := NormalizeInteger("120")
	require.NotNil(t, v)
	assert.Equal(t, int64(120), *v)

	// trailing comma without digits is still an integer
	v = NormalizeInteger("120,")
	require.NotNil(t, v)
	assert.Equal(t, int64(120), *v)

	// a real decimal part disqualifies the value
	assert.Nil(t, NormalizeInteger("129,1"))
	assert.Nil(t, NormalizeInteger("–"))
	assert.Nil(t, NormalizeInteger(""))
}

func TestGridID(t *testing.T) {
	assert.Equal(t, "CRS3035RES100mN2691700E4341100", GridID("100m", 2691700, 4341100))
	assert.Equal(t, "CRS3035RES1000mN2691500E4341500", GridID("1km", 2691500, 4341500))
	assert.Equal(t, "CRS3035RES10000mN2695000E4345000", GridID("10km", 2695000, 4345000))
}
