package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	return New([]Manufacturer{
		{
			ID: "19", NameHe: "טויוטה", NameEn: "Toyota",
			Models: []Model{
				{ID: "10182", NameHe: "קורולה", NameEn: "Corolla"},
				{ID: "10183", NameHe: "קורולה קרוס", NameEn: "Corolla Cross"},
				{ID: "10190", NameHe: "ראב 4", NameEn: "RAV4"},
			},
		},
		{
			ID: "27", NameHe: "מאזדה", NameEn: "Mazda",
			Models: []Model{
				{ID: "10300", NameHe: "3", NameEn: "Mazda 3"},
			},
		},
	})
}

func TestResolveManufacturerAndModel(t *testing.T) {
	t.Parallel()

	m, err := testCatalog().Resolve("Toyota RAV4 2022")
	require.NoError(t, err)
	require.Equal(t, "19", m.Manufacturer.ID)
	require.NotNil(t, m.Model)
	require.Equal(t, "10190", m.Model.ID)
	require.False(t, m.Hybrid)
	require.Equal(t, "https://www.yad2.co.il/vehicles/cars?manufacturer=19&model=10190", m.URL)
}

func TestResolveHebrewText(t *testing.T) {
	t.Parallel()

	m, err := testCatalog().Resolve("טויוטה ראב 4 היבריד מודל 2022")
	require.NoError(t, err)
	require.Equal(t, "19", m.Manufacturer.ID)
	require.Equal(t, "10190", m.Model.ID)
	require.True(t, m.Hybrid)
	require.Contains(t, m.URL, "carTag=5")
}

func TestResolveLongerNameWins(t *testing.T) {
	t.Parallel()

	m, err := testCatalog().Resolve("toyota corolla cross hybrid")
	require.NoError(t, err)
	require.Equal(t, "10183", m.Model.ID)
}

func TestResolveManufacturerOnly(t *testing.T) {
	t.Parallel()

	m, err := testCatalog().Resolve("mazda something unknown")
	require.NoError(t, err)
	require.Equal(t, "27", m.Manufacturer.ID)
	require.Nil(t, m.Model)
	require.Equal(t, "https://www.yad2.co.il/vehicles/cars?manufacturer=27", m.URL)
}

func TestResolveNoMatch(t *testing.T) {
	t.Parallel()

	_, err := testCatalog().Resolve("lada niva")
	require.ErrorIs(t, err, ErrNoMatch)

	_, err = testCatalog().Resolve("   ")
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestLoadSortsByNumericID(t *testing.T) {
	t.Parallel()

	doc := `{
		"last_updated": "2026-08-01T00:00:00",
		"manufacturers": {
			"102": {"id": "102", "name_he": "קיה", "name_en": "Kia", "models": {}},
			"19": {"id": "19", "name_he": "טויוטה", "name_en": "Toyota", "models": {
				"10190": {"id": "10190", "name_he": "ראב 4", "name_en": "RAV4"},
				"10182": {"id": "10182", "name_he": "קורולה", "name_en": "Corolla"}
			}}
		}
	}`
	path := filepath.Join(t.TempDir(), "mapping.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	ms := c.Manufacturers()
	require.Len(t, ms, 2)
	require.Equal(t, "19", ms[0].ID)
	require.Equal(t, "102", ms[1].ID)
	require.Equal(t, "10182", ms[0].Models[0].ID)
	require.Equal(t, "10190", ms[0].Models[1].ID)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
