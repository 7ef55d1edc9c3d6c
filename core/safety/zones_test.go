package safety

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadNoFlyZonesMissingFile(t *testing.T) {
	zones, err := LoadNoFlyZones(filepath.Join(t.TempDir(), "no_fly_zones.json"), nil)
	require.NoError(t, err)
	assert.Empty(t, zones)

	zones, err = LoadNoFlyZones("", nil)
	require.NoError(t, err)
	assert.Empty(t, zones)
}

func TestLoadNoFlyZonesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.json")
	data := `[{"name":"Airport","lat":40.6413,"lon":-73.7781,"radius":5},{"name":"Park","lat":40.7829,"lon":-73.9654,"radius":1.2}]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	zones, err := LoadNoFlyZones(path, nil)
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, "Airport", zones[0].Name)
	assert.Equal(t, 5.0, zones[0].RadiusKm)
	assert.Equal(t, 1.2, zones[1].RadiusKm)
}

func TestLoadNoFlyZonesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	data := "- name: Stadium\n  lat: 40.8296\n  lon: -73.9262\n  radius: 0.8\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	zones, err := LoadNoFlyZones(path, nil)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, 40.8296, zones[0].Lat)
}

func TestDecodeNoFlyZonesErrors(t *testing.T) {
	_, err := DecodeNoFlyZones(strings.NewReader(`[{"name":"x","lat":1,"lon":1,"radius":0}]`), "json")
	assert.ErrorContains(t, err, "radius")
	_, err = DecodeNoFlyZones(strings.NewReader(`[{"name":"x","lat":95,"lon":1,"radius":1}]`), "json")
	assert.ErrorContains(t, err, "out of range")
	_, err = DecodeNoFlyZones(strings.NewReader(`{}`), "toml")
	assert.ErrorContains(t, err, "unsupported")
	_, err = DecodeNoFlyZones(strings.NewReader(`not json`), "json")
	assert.Error(t, err)

	zones, err := DecodeNoFlyZones(strings.NewReader(""), "yaml")
	require.NoError(t, err)
	assert.Empty(t, zones)
}
